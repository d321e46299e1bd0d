package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apperrors "github.com/tgienger/devdesk/internal/errors"
)

func newUserCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserPasswdCmd(o))
	return cmd
}

func newUserPasswdCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <username>",
		Short: "Set a user's password",
		Long: `Prompts for the new password twice when stdin is a terminal. Otherwise the
first line of stdin is used, so scripts can pipe a password in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			u, err := e.services.Users.GetByUsername(ctx, args[0])
			if err != nil {
				return err
			}
			if u == nil {
				return apperrors.NotFound("user", args[0])
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, err := e.services.Users.ChangePassword(ctx, u.ID, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", u.Username)
			return nil
		},
	}
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "New password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		fmt.Fprint(prompt, "Repeat password: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
		return checkPassword(string(first))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return checkPassword(strings.TrimRight(line, "\r\n"))
}

func checkPassword(p string) (string, error) {
	if p == "" {
		return "", apperrors.Invalid("password", "must not be empty")
	}
	return p, nil
}
