package config

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command needs. mode is "crawl", "db" or
// "cache".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "crawl":
		problems = append(problems, c.validateCrawl()...)
		if c.Output.Format != "csv" && c.Output.Format != "xlsx" {
			problems = append(problems, "output.format must be csv or xlsx")
		}
		if c.Output.Path == "" {
			problems = append(problems, "output.path is required")
		}
	case "db":
		problems = append(problems, c.validateStore()...)
		if c.Pipeline.RegionsFile == "" {
			problems = append(problems, "pipeline.regions_file is required")
		}
	case "cache":
		if c.Cache.DirectoryFile == "" || c.Cache.GeocodeFile == "" {
			problems = append(problems, "cache.directory_file and cache.geocode_file are required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateCrawl() []string {
	var problems []string
	if u, err := url.Parse(c.Directory.BaseURL); err != nil || !u.IsAbs() {
		problems = append(problems, "directory.base_url must be an absolute url")
	}
	if c.Cache.DirectoryFile == "" || c.Cache.GeocodeFile == "" {
		problems = append(problems, "cache.directory_file and cache.geocode_file are required")
	}
	if c.Fetch.TimeoutSecs <= 0 {
		problems = append(problems, "fetch.timeout_secs must be > 0")
	}
	if c.Fetch.MaxAttempts < 1 || c.Fetch.MaxAttempts > 10 {
		problems = append(problems, "fetch.max_attempts must be between 1 and 10")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		problems = append(problems, "fetch.requests_per_second must be >= 0")
	}
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 32 {
		problems = append(problems, "pipeline.concurrency must be between 1 and 32")
	}
	if c.Pipeline.RegionsFile == "" {
		problems = append(problems, "pipeline.regions_file is required")
	}
	return problems
}

func (c *Config) validateStore() []string {
	var problems []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	return problems
}

// ValidateStore checks only the store settings, for crawl --persist.
func (c *Config) ValidateStore() error {
	if problems := c.validateStore(); len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

const redacted = "********"

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	if c.Geocode.APIKey != "" {
		c.Geocode.APIKey = redacted
	}
	if u, err := url.Parse(c.Store.DatabaseURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			// url.UserPassword would percent-encode the mask.
			u.User = url.User(u.User.Username())
			c.Store.DatabaseURL = strings.Replace(u.String(), "@", ":"+redacted+"@", 1)
		}
	}
	return c
}
