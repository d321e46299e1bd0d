package views

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/devdesk/internal/models"
	"github.com/tgienger/devdesk/internal/ui/keys"
	"github.com/tgienger/devdesk/internal/ui/styles"
)

type phaseItem struct {
	phase models.DevelopmentPhase
}

func (i phaseItem) Title() string       { return i.phase.Title }
func (i phaseItem) Description() string { return i.phase.Description }
func (i phaseItem) FilterValue() string { return i.phase.Title }

type phaseDelegate struct {
	styles *styles.Styles
	width  int
}

func (d phaseDelegate) Height() int                               { return 2 }
func (d phaseDelegate) Spacing() int                              { return 1 }
func (d phaseDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d phaseDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	p, ok := item.(phaseItem)
	if !ok {
		return
	}

	width := max(d.width-4, 20)
	lineStyle := d.styles.ListItem
	if index == m.Index() {
		lineStyle = d.styles.ListSelected
	}

	title := p.phase.Title
	if p.phase.Icon != "" {
		title = p.phase.Icon + " " + title
	}
	barWidth := clamp(width-24, 10, 40)
	progress := fmt.Sprintf("%s %3d%%  %d/%d",
		styles.ProgressBar(p.phase.CompletionPercentage, barWidth),
		p.phase.CompletionPercentage,
		p.phase.CompletedCount,
		p.phase.TasksCount,
	)

	fmt.Fprintf(w, "%s\n%s", lineStyle.Width(width).Render(title), d.styles.ListItem.Render(progress))
}

type phasesLoadedMsg struct {
	phases   []models.DevelopmentPhase
	selected int
}

type checklistLoadedMsg struct {
	phaseID string
	tasks   []models.DevelopmentTask
	cursor  int
}

// PhaseListView shows the development phases with their completion and
// opens a phase's checklist.
type PhaseListView struct {
	client   Client
	userID   string
	list     list.Model
	delegate *phaseDelegate
	styles   *styles.Styles
	keys     keys.KeyMap
	width    int
	height   int
	loaded   bool
	err      error

	// Checklist of the opened phase
	phase  *models.DevelopmentPhase
	tasks  []models.DevelopmentTask
	cursor int
	offset int

	creating bool
	form     titleForm

	confirmingDelete bool
	deleteTargetID   string
	deleteTargetName string

	showHelpPopup bool
}

func NewPhaseListView(client Client, userID string) *PhaseListView {
	s := styles.NewStyles()
	delegate := &phaseDelegate{styles: s, width: 80}

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Development Phases"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = s.Title
	l.SetShowHelp(false)

	return &PhaseListView{
		client:   client,
		userID:   userID,
		list:     l,
		delegate: delegate,
		styles:   s,
		keys:     keys.DefaultKeyMap(),
	}
}

func (v *PhaseListView) Init() tea.Cmd {
	return v.loadPhases(0)
}

func (v *PhaseListView) loadPhases(selectIdx int) tea.Cmd {
	return func() tea.Msg {
		var phases []models.DevelopmentPhase
		if err := call(v.client, "development.getPhases", nil, &phases); err != nil {
			return errMsg{op: "development.getPhases", err: err}
		}
		return phasesLoadedMsg{phases: phases, selected: selectIdx}
	}
}

func (v *PhaseListView) loadChecklist(phaseID string, cursor int) tea.Cmd {
	return func() tea.Msg {
		var tasks []models.DevelopmentTask
		if err := call(v.client, "development.getTasks", map[string]string{"phase_id": phaseID}, &tasks); err != nil {
			return errMsg{op: "development.getTasks", err: err}
		}
		return checklistLoadedMsg{phaseID: phaseID, tasks: tasks, cursor: cursor}
	}
}

func (v *PhaseListView) inPhase() bool { return v.phase != nil }

func (v *PhaseListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(msg.Width)
		v.delegate.width = contentWidth
		v.list.SetSize(contentWidth-4, msg.Height-7)
		return v, nil

	case phasesLoadedMsg:
		items := make([]list.Item, len(msg.phases))
		for i, p := range msg.phases {
			items[i] = phaseItem{phase: p}
		}
		v.list.SetItems(items)
		if len(items) > 0 {
			v.list.Select(clamp(msg.selected, 0, len(items)-1))
		}
		v.loaded = true
		v.err = nil
		return v, nil

	case checklistLoadedMsg:
		if v.phase == nil || v.phase.ID != msg.phaseID {
			return v, nil
		}
		v.tasks = msg.tasks
		v.cursor = clamp(msg.cursor, 0, max(len(v.tasks)-1, 0))
		v.ensureVisible()
		v.err = nil
		return v, nil

	case errMsg:
		v.err = msg
		return v, nil

	case tea.KeyMsg:
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}
		if v.confirmingDelete {
			return v.updateConfirmDelete(msg)
		}
		if v.creating {
			return v.updateCreating(msg)
		}
		if v.inPhase() {
			return v.updateChecklist(msg)
		}

		switch {
		case key.Matches(msg, v.keys.Quit):
			return v, tea.Quit
		case key.Matches(msg, v.keys.Back):
			return v, nil
		case key.Matches(msg, v.keys.Switch):
			return v, func() tea.Msg { return SwitchView{} }
		case key.Matches(msg, v.keys.Help):
			v.showHelpPopup = true
			return v, nil
		case key.Matches(msg, v.keys.New):
			v.creating = true
			v.form = newTitleForm("New Phase", "Create", "Phase title")
			return v, v.form.open()
		case key.Matches(msg, v.keys.Enter):
			if item, ok := v.list.SelectedItem().(phaseItem); ok {
				p := item.phase
				v.phase = &p
				v.tasks = nil
				v.cursor = 0
				v.offset = 0
				return v, v.loadChecklist(p.ID, 0)
			}
			return v, nil
		case key.Matches(msg, v.keys.Delete):
			if item, ok := v.list.SelectedItem().(phaseItem); ok {
				v.confirmingDelete = true
				v.deleteTargetID = item.phase.ID
				v.deleteTargetName = item.phase.Title
			}
			return v, nil
		case key.Matches(msg, v.keys.MoveUp):
			return v, v.movePhase(-1)
		case key.Matches(msg, v.keys.MoveDown):
			return v, v.movePhase(1)
		}
	}

	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

func (v *PhaseListView) phaseIDs() []string {
	items := v.list.Items()
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.(phaseItem).phase.ID
	}
	return ids
}

// movePhase swaps the selected phase with its neighbour and saves the
// whole order.
func (v *PhaseListView) movePhase(delta int) tea.Cmd {
	i := v.list.Index()
	j := i + delta
	ids := v.phaseIDs()
	if i < 0 || j < 0 || j >= len(ids) {
		return nil
	}
	return send(v.client, "development.reorderPhases", map[string]any{"ids": swapped(ids, i, j)},
		func() tea.Msg { return v.loadPhases(j)() })
}

func (v *PhaseListView) updateChecklist(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit
	case key.Matches(msg, v.keys.Back):
		v.phase = nil
		return v, v.loadPhases(v.list.Index())
	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(v.tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
	case key.Matches(msg, v.keys.Toggle):
		if t, ok := v.selectedTask(); ok {
			cursor := v.cursor
			return v, send(v.client, "development.toggleTask", map[string]string{"id": t.ID},
				func() tea.Msg { return v.loadChecklist(t.PhaseID, cursor)() })
		}
	case key.Matches(msg, v.keys.New):
		v.creating = true
		v.form = newTitleForm("New Item in "+v.phase.Title, "Add", "What needs doing?")
		return v, v.form.open()
	case key.Matches(msg, v.keys.Delete):
		if t, ok := v.selectedTask(); ok {
			v.confirmingDelete = true
			v.deleteTargetID = t.ID
			v.deleteTargetName = t.Title
		}
	case key.Matches(msg, v.keys.MoveUp):
		return v, v.moveTask(-1)
	case key.Matches(msg, v.keys.MoveDown):
		return v, v.moveTask(1)
	}
	return v, nil
}

func (v *PhaseListView) selectedTask() (models.DevelopmentTask, bool) {
	if v.cursor < 0 || v.cursor >= len(v.tasks) {
		return models.DevelopmentTask{}, false
	}
	return v.tasks[v.cursor], true
}

func (v *PhaseListView) moveTask(delta int) tea.Cmd {
	i := v.cursor
	j := i + delta
	if i < 0 || j < 0 || j >= len(v.tasks) {
		return nil
	}
	ids := make([]string, len(v.tasks))
	for k, t := range v.tasks {
		ids[k] = t.ID
	}
	phaseID := v.phase.ID
	return send(v.client, "development.reorderTasks", map[string]any{"phase_id": phaseID, "ids": swapped(ids, i, j)},
		func() tea.Msg { return v.loadChecklist(phaseID, j)() })
}

func (v *PhaseListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		id := v.deleteTargetID
		if v.inPhase() {
			phaseID := v.phase.ID
			cursor := max(v.cursor-1, 0)
			return v, send(v.client, "development.deleteTask", map[string]string{"id": id},
				func() tea.Msg { return v.loadChecklist(phaseID, cursor)() })
		}
		idx := max(v.list.Index()-1, 0)
		return v, send(v.client, "development.deletePhase", map[string]string{"id": id},
			func() tea.Msg { return v.loadPhases(idx)() })
	case "n", "N", "esc":
		v.confirmingDelete = false
	}
	return v, nil
}

func (v *PhaseListView) updateCreating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	result, cmd := v.form.update(msg)
	switch result {
	case formCancelled:
		v.creating = false
		return v, nil
	case formSubmitted:
		v.creating = false
		title, desc := v.form.values()
		if v.inPhase() {
			phaseID := v.phase.ID
			in := models.NewDevelopmentTask{PhaseID: phaseID, Title: title, Description: desc}
			if v.userID != "" {
				in.CreatorID = &v.userID
			}
			last := len(v.tasks)
			return v, send(v.client, "development.createTask", in,
				func() tea.Msg { return v.loadChecklist(phaseID, last)() })
		}
		last := len(v.list.Items())
		return v, send(v.client, "development.createPhase", models.NewPhase{Title: title, Description: desc},
			func() tea.Msg { return v.loadPhases(last)() })
	}
	return v, cmd
}

// ensureVisible keeps the checklist cursor inside the scroll window.
func (v *PhaseListView) ensureVisible() {
	visible := max(v.height-8, 3)
	if v.cursor < v.offset {
		v.offset = v.cursor
	}
	if v.cursor >= v.offset+visible {
		v.offset = v.cursor - visible + 1
	}
}

var phaseHelp = []binding{
	{"↵", "open"},
	{"n", "new"},
	{"d", "delete"},
	{"K/J", "move"},
	{"tab", "tasks"},
	{"q", "quit"},
}

var checklistHelp = []binding{
	{"space", "toggle"},
	{"n", "new"},
	{"d", "delete"},
	{"K/J", "move"},
	{"esc", "back"},
	{"q", "quit"},
}

// View renders the view
func (v *PhaseListView) View() string {
	switch {
	case v.showHelpPopup:
		if v.inPhase() {
			return helpPopup(v.styles, v.width, v.height, checklistHelp)
		}
		return helpPopup(v.styles, v.width, v.height, phaseHelp)
	case v.confirmingDelete:
		what := "phase"
		if v.inPhase() {
			what = "item"
		}
		return confirmDelete(v.styles, v.width, v.height, what, v.deleteTargetName)
	case v.creating:
		return v.form.view(v.styles, v.width, v.height)
	case v.inPhase():
		return v.renderChecklist()
	case !v.loaded:
		return v.styles.TitleMuted.Render("Loading...")
	case len(v.list.Items()) == 0:
		return v.renderEmpty()
	}

	content := v.list.View() + "\n" + errorLine(v.styles, v.err) + "\n" + helpLine(v.styles, v.width, phaseHelp)
	return styles.CenterView(content, v.width, v.height)
}

func (v *PhaseListView) renderEmpty() string {
	s := v.styles
	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Render("No Phases"),
		"",
		s.TitleMuted.Render("Press 'n' to plan your first phase"),
		"",
		s.ButtonPrimary.Render(" New Phase "),
		"",
		errorLine(s, v.err),
	)
	centered := lipgloss.Place(styles.ContentWidth(v.width), v.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *PhaseListView) renderChecklist() string {
	s := v.styles
	width := max(styles.ContentWidth(v.width)-4, 20)

	done := 0
	for _, t := range v.tasks {
		if t.IsCompleted {
			done++
		}
	}
	pct := 0
	if len(v.tasks) > 0 {
		pct = done * 100 / len(v.tasks)
	}

	lines := []string{
		s.Title.Render(v.phase.Title),
		s.TitleMuted.Render(fmt.Sprintf("%s %d%%  %d/%d done", styles.ProgressBar(pct, clamp(width-24, 10, 40)), pct, done, len(v.tasks))),
		"",
	}
	if len(v.tasks) == 0 {
		lines = append(lines, s.TitleMuted.Render("Nothing here yet. Press 'n' to add an item."))
	}

	visible := max(v.height-8, 3)
	end := min(v.offset+visible, len(v.tasks))
	for i := v.offset; i < end; i++ {
		t := v.tasks[i]
		box := "[ ]"
		if t.IsCompleted {
			box = lipgloss.NewStyle().Foreground(styles.Current.Success).Render("[x]")
		}
		style := s.ListItem
		if i == v.cursor {
			style = s.ListSelected
		}
		lines = append(lines, style.Width(width).Render(box+" "+t.Title))
	}

	lines = append(lines, "", errorLine(s, v.err), helpLine(s, v.width, checklistHelp))
	return styles.CenterView(lipgloss.JoinVertical(lipgloss.Left, lines...), v.width, v.height)
}
