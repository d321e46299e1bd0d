package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/devdesk/internal/ui/keys"
	"github.com/tgienger/devdesk/internal/ui/styles"
)

type formResult int

const (
	formEditing formResult = iota
	formSubmitted
	formCancelled
)

// titleForm is the title + description form used to create phases,
// checklist items and tasks.
type titleForm struct {
	heading  string
	button   string
	title    textinput.Model
	desc     textinput.Model
	focusIdx int // 0=title, 1=desc, 2=confirm
	keys     keys.KeyMap
}

func newTitleForm(heading, button, placeholder string) titleForm {
	title := textinput.New()
	title.Placeholder = placeholder
	title.CharLimit = 200

	desc := textinput.New()
	desc.Placeholder = "Description (optional)"
	desc.CharLimit = 500

	return titleForm{
		heading: heading,
		button:  button,
		title:   title,
		desc:    desc,
		keys:    keys.DefaultKeyMap(),
	}
}

func (f *titleForm) open() tea.Cmd {
	f.focusIdx = 0
	f.title.Reset()
	f.desc.Reset()
	f.updateFocus()
	return textinput.Blink
}

func (f *titleForm) values() (title, desc string) {
	return strings.TrimSpace(f.title.Value()), strings.TrimSpace(f.desc.Value())
}

// update handles one key. A submit with an empty title is ignored.
func (f *titleForm) update(msg tea.KeyMsg) (formResult, tea.Cmd) {
	switch {
	case key.Matches(msg, f.keys.Back):
		return formCancelled, nil

	case key.Matches(msg, f.keys.Save):
		return f.submit(), nil

	case msg.String() == "shift+tab":
		f.focusIdx = (f.focusIdx + 2) % 3
		f.updateFocus()
		return formEditing, nil

	case key.Matches(msg, f.keys.Tab):
		f.focusIdx = (f.focusIdx + 1) % 3
		f.updateFocus()
		return formEditing, nil

	case key.Matches(msg, f.keys.Enter):
		if f.focusIdx < 2 {
			f.focusIdx++
			f.updateFocus()
			return formEditing, nil
		}
		return f.submit(), nil
	}

	var cmd tea.Cmd
	switch f.focusIdx {
	case 0:
		f.title, cmd = f.title.Update(msg)
	case 1:
		f.desc, cmd = f.desc.Update(msg)
	}
	return formEditing, cmd
}

func (f *titleForm) submit() formResult {
	if title, _ := f.values(); title == "" {
		return formEditing
	}
	return formSubmitted
}

func (f *titleForm) updateFocus() {
	f.title.Blur()
	f.desc.Blur()
	switch f.focusIdx {
	case 0:
		f.title.Focus()
	case 1:
		f.desc.Focus()
	}
}

func (f *titleForm) view(s *styles.Styles, width, height int) string {
	contentWidth := styles.ContentWidth(width)

	titleStyle := s.Input
	descStyle := s.Input
	btnStyle := s.Button
	switch f.focusIdx {
	case 0:
		titleStyle = s.InputFocused
	case 1:
		descStyle = s.InputFocused
	case 2:
		btnStyle = s.ButtonFocused
	}

	inputWidth := clamp(contentWidth-6, 20, 50)

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render(f.heading),
		"",
		"Title:",
		titleStyle.Width(inputWidth).Render(f.title.View()),
		"",
		"Description:",
		descStyle.Width(inputWidth).Render(f.desc.View()),
		"",
		btnStyle.Render(" "+f.button+" "),
		"",
		s.TitleMuted.Render("Tab: next • Ctrl+S: save • Esc: cancel"),
	)

	centered := lipgloss.Place(contentWidth, height,
		lipgloss.Center, lipgloss.Center,
		form,
	)
	return styles.CenterView(centered, width, height)
}
