package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/devdesk/internal/ui/styles"
)

// Client sends one bridge operation and decodes the result into out.
// *bridge.Dispatcher satisfies it.
type Client interface {
	Call(ctx context.Context, op string, in, out any) error
}

// callTimeout bounds a single bridge call from the UI.
const callTimeout = 5 * time.Second

func call(c Client, op string, in, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return c.Call(ctx, op, in, out)
}

// SwitchView asks the app to show the other view.
type SwitchView struct{}

// errMsg reports a failed bridge call to the view that made it.
type errMsg struct {
	op  string
	err error
}

func (e errMsg) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }

// send runs op in a command and turns failure into an errMsg and success
// into next().
func send(c Client, op string, in any, next func() tea.Msg) tea.Cmd {
	return func() tea.Msg {
		if err := call(c, op, in, nil); err != nil {
			return errMsg{op: op, err: err}
		}
		return next()
	}
}

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// swapped returns a copy of ids with positions i and j exchanged.
func swapped(ids []string, i, j int) []string {
	out := append([]string(nil), ids...)
	out[i], out[j] = out[j], out[i]
	return out
}

type binding struct {
	key  string
	desc string
}

// helpLine renders the one-line key hint shown under a list. At narrow
// widths only the "? help" hint is shown.
func helpLine(s *styles.Styles, width int, items []binding) string {
	contentWidth := styles.ContentWidth(width)
	if contentWidth > 0 && contentWidth < 50 {
		return s.Help.Render(s.HelpKey.Render("?") + " help")
	}
	parts := make([]string, len(items))
	for i, b := range items {
		parts[i] = s.HelpKey.Render(b.key) + " " + b.desc
	}
	return s.Help.Render(strings.Join(parts, " • "))
}

// helpPopup renders the full key list in a centered panel.
func helpPopup(s *styles.Styles, width, height int, items []binding) string {
	lines := []string{s.Title.Render("Keyboard Shortcuts"), ""}
	for _, b := range items {
		lines = append(lines, fmt.Sprintf("%s %s", s.HelpKey.Render(fmt.Sprintf("%-6s", b.key)), b.desc))
	}
	lines = append(lines, "", s.TitleMuted.Render("Press any key to close"))

	centered := lipgloss.Place(styles.ContentWidth(width), height,
		lipgloss.Center, lipgloss.Center,
		s.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
	return styles.CenterView(centered, width, height)
}

// confirmDelete renders the y/n prompt shown before a delete.
func confirmDelete(s *styles.Styles, width, height int, what, name string) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Foreground(styles.Current.Error).Render("Delete "+what+"?"),
		"",
		s.TitleMuted.Render(fmt.Sprintf("%q will be removed.", name)),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" Y - Yes "),
			"  ",
			s.Button.Render(" N - No "),
		),
	)
	centered := lipgloss.Place(styles.ContentWidth(width), height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, width, height)
}

// errorLine renders the last bridge failure, if any.
func errorLine(s *styles.Styles, err error) string {
	if err == nil {
		return ""
	}
	return s.ErrorText.Render("✗ " + err.Error())
}
