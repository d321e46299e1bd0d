package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/devdesk/internal/models"
	"github.com/tgienger/devdesk/internal/ui/styles"
	"github.com/tgienger/devdesk/internal/ui/views"
)

// Currently active view
type View int

const (
	ViewTasks View = iota
	ViewPhases
)

// lastViewKey is the setting that remembers the view to reopen.
const lastViewKey = "ui.last_view"

var viewNames = map[View]string{
	ViewTasks:  "tasks",
	ViewPhases: "phases",
}

type App struct {
	client      views.Client
	currentView View
	taskList    *views.TaskListView
	phaseList   *views.PhaseListView
	styles      *styles.Styles
	width       int
	height      int
}

// NewApp creates the application for the signed-in user. Every read and
// write goes through client.
func NewApp(client views.Client, userID string) *App {
	return &App{
		client:      client,
		currentView: ViewTasks,
		taskList:    views.NewTaskListView(client, userID),
		phaseList:   views.NewPhaseListView(client, userID),
		styles:      styles.NewStyles(),
	}
}

// CurrentView reports which view is showing.
func (a *App) CurrentView() View { return a.currentView }

func (a *App) Init() tea.Cmd {
	// Reopen the view used last
	var st *models.Setting
	if err := a.call("settings.get", map[string]string{"key": lastViewKey}, &st); err == nil && st != nil {
		if st.Value == viewNames[ViewPhases] {
			a.currentView = ViewPhases
		}
	}
	return tea.Batch(a.taskList.Init(), a.phaseList.Init())
}

func (a *App) call(op string, in, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.client.Call(ctx, op, in, out)
}

func (a *App) switchView() tea.Cmd {
	if a.currentView == ViewTasks {
		a.currentView = ViewPhases
	} else {
		a.currentView = ViewTasks
	}
	_ = a.call("settings.set", map[string]string{"key": lastViewKey, "value": viewNames[a.currentView]}, nil)

	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: a.width, Height: a.height}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Both views persist, so both track the size. One line goes to the tab header.
		inner := tea.WindowSizeMsg{Width: msg.Width, Height: max(msg.Height-1, 0)}
		a.taskList.Update(inner)
		a.phaseList.Update(inner)
		return a, nil

	case views.SwitchView:
		return a, a.switchView()

	case tea.KeyMsg:
		var cmd tea.Cmd
		switch a.currentView {
		case ViewPhases:
			_, cmd = a.phaseList.Update(msg)
		default:
			_, cmd = a.taskList.Update(msg)
		}
		return a, cmd
	}

	// Load results are addressed by type, so both views see them.
	_, taskCmd := a.taskList.Update(msg)
	_, phaseCmd := a.phaseList.Update(msg)
	return a, tea.Batch(taskCmd, phaseCmd)
}

func (a *App) View() string {
	body := a.taskList.View()
	if a.currentView == ViewPhases {
		body = a.phaseList.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, a.renderTabs(), body)
}

func (a *App) renderTabs() string {
	tab := func(v View, label string) string {
		if v == a.currentView {
			return a.styles.TabActive.Render(label)
		}
		return a.styles.Tab.Render(label)
	}
	return styles.CenterView(
		lipgloss.JoinHorizontal(lipgloss.Top, tab(ViewTasks, "Tasks"), tab(ViewPhases, "Phases")),
		a.width, 1,
	)
}
