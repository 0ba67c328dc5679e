package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/school-atlas/internal/region"
	"github.com/sells-group/school-atlas/internal/store"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the relational store",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the states and schools tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.ValidateStore(); err != nil {
			return err
		}

		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "db migrate")
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "db migrate")
		}
		zap.L().Info("db: schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var dbLoadRegionsCmd = &cobra.Command{
	Use:   "load-regions",
	Short: "Load the census regions file into the states table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("db"); err != nil {
			return err
		}

		regions, err := region.Load(ctx, cfg.Pipeline.RegionsFile)
		if err != nil {
			return eris.Wrap(err, "db load-regions")
		}

		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "db load-regions")
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "db load-regions")
		}
		n, err := st.ReplaceRegions(ctx, regions)
		if err != nil {
			return eris.Wrap(err, "db load-regions")
		}
		zap.L().Info("db: regions loaded", zap.Int64("rows", n), zap.String("file", cfg.Pipeline.RegionsFile))
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd, dbLoadRegionsCmd)
	rootCmd.AddCommand(dbCmd)
}
