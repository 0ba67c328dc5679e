package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/school-atlas/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the request caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts and sizes of both cache files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("cache"); err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Cache", "File", "Entries", "Bytes"})
		for _, c := range cacheFiles() {
			st := cache.OpenFileStore(c.path).Stats()
			t.AppendRow(table.Row{c.name, st.Path, st.Entries, st.Bytes})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

var cacheKeysCmd = &cobra.Command{
	Use:       "keys {directory|geocode}",
	Short:     "List the request keys stored in one cache file",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"directory", "geocode"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		for _, c := range cacheFiles() {
			if c.name != args[0] {
				continue
			}
			for _, key := range cache.OpenFileStore(c.path).Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		}
		return eris.Errorf("cache: unknown cache %q", args[0])
	},
}

type cacheFile struct{ name, path string }

func cacheFiles() []cacheFile {
	return []cacheFile{
		{"directory", cfg.Cache.DirectoryFile},
		{"geocode", cfg.Cache.GeocodeFile},
	}
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheKeysCmd)
	rootCmd.AddCommand(cacheCmd)
}
