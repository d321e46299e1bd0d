package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgienger/devdesk/internal/config"
)

func newInitCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and a default config file",
		Long: `Creates config.yaml in the data directory if it does not exist, then opens
the database and brings its schema up to date. Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			cfgPath := o.cfgFile
			if cfgPath == "" {
				cfgPath = filepath.Join(cfg.DataDir, config.FileName)
			}
			written, err := config.WriteDefault(cfgPath)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context(), o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			if o.jsonOut {
				return printJSON(out, map[string]any{
					"database":       e.db.Path(),
					"config":         cfgPath,
					"config_written": written,
					"migration":      e.report,
				})
			}

			if written {
				fmt.Fprintf(out, "Wrote %s\n", cfgPath)
			}
			fmt.Fprintf(out, "Database: %s\n", e.db.Path())
			if e.report.Fresh {
				fmt.Fprintln(out, "Created a new database.")
			} else {
				fmt.Fprintln(out, "Database already initialized.")
			}
			if len(e.report.AddedColumns) > 0 {
				fmt.Fprintf(out, "Added columns: %s\n", strings.Join(e.report.AddedColumns, ", "))
			}
			if len(e.report.RebuiltIndexes) > 0 {
				fmt.Fprintf(out, "Rebuilt search indexes: %s\n", strings.Join(e.report.RebuiltIndexes, ", "))
			}
			if e.report.SeededAdmin {
				fmt.Fprintf(out, "Seeded administrator %q. Change its password with:\n  devdesk user passwd %s\n",
					e.cfg.Bootstrap.Username, e.cfg.Bootstrap.Username)
			}
			return nil
		},
	}
}
