// Package cli implements the devdesk command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tgienger/devdesk/internal/config"
)

// BuildInfo is stamped into the binary via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("devdesk %s (commit: %s, built: %s)", b.Version, b.Commit, b.Date)
}

// options are the global flags shared by every command.
type options struct {
	cfgFile  string
	dataDir  string
	logLevel string
	jsonOut  bool
}

// NewRootCmd builds the command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "devdesk",
		Short: "Local-first development desk",
		Long: `devdesk keeps users, teams, tasks, development phases, documents and
notes in one SQLite file under your data directory.

Quick start:
  devdesk init                 Create the database and default config
  devdesk tui                  Open the terminal UI
  devdesk bridge               Serve JSON-lines requests on stdin/stdout
  devdesk search "login bug"   Search tasks and documents`,
		Version:      info.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(info.String() + "\n")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default is <data-dir>/config.yaml)")
	pf.StringVar(&opts.dataDir, "data-dir", "", "data directory (default is $XDG_DATA_HOME/devdesk)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&opts.jsonOut, "json", false, "output as JSON")

	root.AddCommand(newInitCmd(opts))
	root.AddCommand(newTUICmd(opts))
	root.AddCommand(newBridgeCmd(opts))
	root.AddCommand(newBackupCmd(opts))
	root.AddCommand(newSearchCmd(opts))
	root.AddCommand(newReindexCmd(opts))
	root.AddCommand(newUserCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd(info))
	return root
}

// Execute runs the root command.
func Execute(info BuildInfo) error {
	return NewRootCmd(info).Execute()
}

// configFile is the file to read: --config, else config.yaml in
// --data-dir, else empty for the default lookup.
func (o *options) configFile() string {
	if o.cfgFile != "" {
		return o.cfgFile
	}
	if o.dataDir != "" {
		return filepath.Join(o.dataDir, config.FileName)
	}
	return ""
}

func (o *options) loadConfig() (*config.Config, error) {
	v := config.NewViper(o.configFile())
	if o.dataDir != "" {
		v.Set("data_dir", o.dataDir)
	}
	if o.logLevel != "" {
		v.Set("log.level", o.logLevel)
	}
	return config.Load(v)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
