package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/school-atlas/internal/export"
	"github.com/sells-group/school-atlas/internal/model"
	"github.com/sells-group/school-atlas/internal/pipeline"
	"github.com/sells-group/school-atlas/internal/region"
	"github.com/sells-group/school-atlas/internal/store"
)

var (
	crawlRegions     []string
	crawlOutput      string
	crawlFormat      string
	crawlPersist     bool
	crawlConcurrency int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the directory and export school records",
	Long: `Crawls every region in the regions file (or the --regions subset),
extracts one record per school and writes them to the output file.

Examples:
  # Full crawl to CSV
  school-atlas crawl

  # Two states to XLSX, stored in the database as well
  school-atlas crawl --regions Michigan,UT --format xlsx --output schools.xlsx --persist`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyCrawlFlags(cmd)

		if err := cfg.Validate("crawl"); err != nil {
			return err
		}
		if crawlPersist {
			if err := cfg.ValidateStore(); err != nil {
				return err
			}
		}

		all, err := region.Load(ctx, cfg.Pipeline.RegionsFile)
		if err != nil {
			return eris.Wrap(err, "crawl: load regions")
		}
		regions := all
		if len(crawlRegions) > 0 {
			var unknown []string
			regions, unknown = region.Filter(all, crawlRegions)
			if len(unknown) > 0 {
				return eris.Errorf("crawl: unknown regions: %s", strings.Join(unknown, ", "))
			}
		}

		zap.L().Info("crawl: starting",
			zap.Strings("regions", region.Names(regions)),
			zap.Int("concurrency", cfg.Pipeline.Concurrency),
		)

		c, err := pipeline.Build(cfg)
		if err != nil {
			return eris.Wrap(err, "crawl: build pipeline")
		}

		res, runErr := c.Driver.Run(ctx, regions)
		if res == nil {
			return runErr
		}

		if err := export.WriteFile(cfg.Output.Path, cfg.Output.Format, res.Records); err != nil {
			return eris.Wrap(err, "crawl: export")
		}
		zap.L().Info("crawl: wrote output",
			zap.String("path", cfg.Output.Path),
			zap.String("format", cfg.Output.Format),
			zap.Int("records", len(res.Records)),
		)

		if crawlPersist {
			if err := persist(cmd, all, res); err != nil {
				return err
			}
		}

		pages, geocodes := c.Pages.Stats(), c.Geocodes.Stats()
		zap.L().Info("crawl: cache usage",
			zap.Int64("directory_hits", pages.Hits),
			zap.Int64("directory_fetches", pages.Fetches),
			zap.Int64("geocode_hits", geocodes.Hits),
			zap.Int64("geocode_fetches", geocodes.Fetches),
		)
		return runErr
	},
}

func applyCrawlFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Path = crawlOutput
	}
	if flags.Changed("format") {
		cfg.Output.Format = crawlFormat
	}
	if flags.Changed("concurrency") {
		cfg.Pipeline.Concurrency = crawlConcurrency
	}
}

func persist(cmd *cobra.Command, regions []model.Region, res *pipeline.Result) error {
	ctx := cmd.Context()

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return eris.Wrap(err, "crawl: open store")
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	if _, err := st.ReplaceRegions(ctx, regions); err != nil {
		return err
	}
	n, err := st.InsertInstitutions(ctx, res.RunID, res.Records)
	if err != nil {
		return err
	}
	zap.L().Info("crawl: persisted records",
		zap.String("run_id", res.RunID),
		zap.String("driver", cfg.Store.Driver),
		zap.Int64("rows", n),
	)
	return nil
}

func init() {
	crawlCmd.Flags().StringSliceVar(&crawlRegions, "regions", nil, "comma-separated state names or codes to crawl (default: all)")
	crawlCmd.Flags().StringVar(&crawlOutput, "output", "", "output file path (overrides output.path)")
	crawlCmd.Flags().StringVar(&crawlFormat, "format", "", "output format: csv or xlsx (overrides output.format)")
	crawlCmd.Flags().BoolVar(&crawlPersist, "persist", false, "also insert records into the configured store")
	crawlCmd.Flags().IntVar(&crawlConcurrency, "concurrency", 0, "detail pages extracted in parallel (overrides pipeline.concurrency)")
	rootCmd.AddCommand(crawlCmd)
}
