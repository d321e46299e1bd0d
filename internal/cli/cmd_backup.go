package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newBackupCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create and list database backups",
	}
	cmd.AddCommand(newBackupCreateCmd(o), newBackupListCmd(o), newBackupPruneCmd(o))
	return cmd
}

func newBackupCreateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Write a backup now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			info, err := e.backups.Create(cmd.Context())
			if info.Path == "" {
				return err
			}
			if o.jsonOut {
				if perr := printJSON(cmd.OutOrStdout(), info); perr != nil {
					return perr
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s (%d bytes)\n", info.Path, info.Size)
			if info.Uploaded {
				fmt.Fprintln(cmd.OutOrStdout(), "Uploaded to object storage.")
			}
			return err
		},
	}
}

func newBackupListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			list, err := e.backups.List(cmd.Context())
			if err != nil {
				return err
			}
			if o.jsonOut {
				return printJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s\n", e.backups.Dir())
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCREATED\tSIZE")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", b.Name, b.CreatedAt.Local().Format(time.DateTime), b.Size)
			}
			return tw.Flush()
		},
	}
}

func newBackupPruneCmd(o *options) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if keep == 0 {
				keep = e.cfg.Backup.Keep
			}
			removed, err := e.backups.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			if o.jsonOut {
				return printJSON(cmd.OutOrStdout(), removed)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d backup(s)\n", len(removed))
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "number of backups to keep (default backup.keep)")
	return cmd
}
