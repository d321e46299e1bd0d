package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newBridgeCmd(o *options) *cobra.Command {
	var listOps bool
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Serve record operations as JSON lines on stdin/stdout",
		Long: `Reads one JSON request per line from stdin:

  {"id":"1","op":"tasks.getAll","payload":{"status":"pending"}}

and writes one response per line to stdout:

  {"id":"1","success":true,"data":[...]}

Failures carry success=false, an error message and a code. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx, o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if listOps {
				if o.jsonOut {
					return printJSON(cmd.OutOrStdout(), e.bridge.Routes())
				}
				for _, op := range e.bridge.Routes() {
					fmt.Fprintln(cmd.OutOrStdout(), op)
				}
				return nil
			}

			stopBackups, err := e.startScheduler()
			if err != nil {
				return err
			}
			defer stopBackups()

			e.logger.Info("bridge ready", "ops", len(e.bridge.Routes()))
			err = e.bridge.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&listOps, "list", false, "print the available operations and exit")
	return cmd
}
