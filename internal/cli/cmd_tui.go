package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/ui"
)

// logFileName receives logs while the TUI owns the terminal.
const logFileName = "devdesk.log"

func newTUICmd(o *options) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal UI",
		Long: `Opens the task and development-phase views. New tasks, checklist items and
comments are recorded as the chosen user (default: the bootstrap admin).
Logs are appended to devdesk.log in the data directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
			logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer logFile.Close()

			ctx := cmd.Context()
			e, err := openEnv(ctx, o, logFile)
			if err != nil {
				return err
			}
			defer e.Close()

			if username == "" {
				username = e.cfg.Bootstrap.Username
			}
			user, err := e.services.Users.GetByUsername(ctx, username)
			if err != nil {
				return err
			}
			if user == nil {
				return apperrors.NotFound("user", username)
			}

			stopBackups, err := e.startScheduler()
			if err != nil {
				return err
			}
			defer stopBackups()

			e.logger.Info("tui started", "user", user.Username)
			p := tea.NewProgram(ui.NewApp(e.bridge, user.ID), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("run tui: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "act as this user (default: bootstrap.username)")
	return cmd
}
