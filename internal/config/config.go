package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DirectoryConfig selects the directory site and its search filter.
type DirectoryConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	ProgramID int    `yaml:"program_id" mapstructure:"program_id"`
	DegreeID  int    `yaml:"degree_id" mapstructure:"degree_id"`
}

// GeocodeConfig configures the Places Text Search geocoder. An empty APIKey
// disables geocoding.
type GeocodeConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// CacheConfig names the per-source cache files.
type CacheConfig struct {
	DirectoryFile string `yaml:"directory_file" mapstructure:"directory_file"`
	GeocodeFile   string `yaml:"geocode_file" mapstructure:"geocode_file"`
}

// FetchConfig configures outbound HTTP.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`

	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // per host, 0 = unlimited
}

// PipelineConfig configures the crawl run.
type PipelineConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	RegionsFile string `yaml:"regions_file" mapstructure:"regions_file"`
}

// OutputConfig configures the flat-file export.
type OutputConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the relational store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("directory.base_url", "https://www.internationalstudent.com")
	v.SetDefault("directory.program_id", 175)
	v.SetDefault("directory.degree_id", 4)
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com/maps/api/place/textsearch/json")
	v.SetDefault("geocode.api_key", "")
	v.SetDefault("cache.directory_file", "cache_schools.json")
	v.SetDefault("cache.geocode_file", "cache_GOOGLE.json")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_attempts", 1)
	v.SetDefault("fetch.user_agent", "school-atlas/1.0")
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.regions_file", "us census bureau regions and divisions.csv")
	v.SetDefault("output.path", "schools_output.csv")
	v.SetDefault("output.format", "csv")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "schoolinfo.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
