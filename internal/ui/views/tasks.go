package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/devdesk/internal/models"
	"github.com/tgienger/devdesk/internal/ui/keys"
	"github.com/tgienger/devdesk/internal/ui/styles"
)

// FocusArea represents which part of the UI has focus
type FocusArea int

const (
	FocusTaskList FocusArea = iota
	FocusSearchInput
	FocusTagDropdown
)

// searchLimit caps the number of hits shown for a search.
const searchLimit = 50

type tasksLoadedMsg struct {
	query string
	tasks []models.Task
}

type tagsLoadedMsg struct {
	tags []models.Tag
}

type usersLoadedMsg struct {
	names map[string]string
}

type commentsLoadedMsg struct {
	taskID   string
	comments []models.Comment
}

// TaskListView lists tasks with search and a tag filter, and shows a
// task's details and comment thread.
type TaskListView struct {
	client Client
	userID string
	styles *styles.Styles
	keys   keys.KeyMap

	width  int
	height int

	tasks     []models.Task
	tags      []models.Tag
	usernames map[string]string
	loaded    bool
	err       error

	// UI state
	focus       FocusArea
	cursor      int
	scrollY     int
	searchInput textinput.Model
	selectedTag *string // nil = no filter

	// Tag dropdown state
	tagDropdownOpen bool
	tagCursor       int

	creating bool
	form     titleForm

	confirmingDelete bool
	deleteTargetID   string
	deleteTargetName string

	// Task detail
	viewingTask         bool
	viewTaskComments    []models.Comment
	commentInput        textarea.Model
	commentInputFocused bool

	showHelpPopup bool
}

func NewTaskListView(client Client, userID string) *TaskListView {
	search := textinput.New()
	search.Placeholder = "Search..."
	search.CharLimit = 100

	commentInput := textarea.New()
	commentInput.Placeholder = "Add a comment..."
	commentInput.CharLimit = 2000
	commentInput.SetWidth(50)
	commentInput.SetHeight(3)
	commentInput.ShowLineNumbers = false

	return &TaskListView{
		client:       client,
		userID:       userID,
		styles:       styles.NewStyles(),
		keys:         keys.DefaultKeyMap(),
		usernames:    map[string]string{},
		searchInput:  search,
		commentInput: commentInput,
	}
}

// Init initializes the view
func (v *TaskListView) Init() tea.Cmd {
	return tea.Batch(v.loadTasks(), v.loadTags, v.loadUsers)
}

// loadTasks lists tasks, or searches them when the search box has text.
func (v *TaskListView) loadTasks() tea.Cmd {
	query := strings.TrimSpace(v.searchInput.Value())
	var tagID string
	if v.selectedTag != nil {
		tagID = *v.selectedTag
	}
	return func() tea.Msg {
		var tasks []models.Task
		if query == "" {
			if err := call(v.client, "tasks.getAll", models.TaskFilter{TagID: tagID}, &tasks); err != nil {
				return errMsg{op: "tasks.getAll", err: err}
			}
			return tasksLoadedMsg{tasks: tasks}
		}
		if err := call(v.client, "tasks.search", map[string]any{"query": query, "limit": searchLimit}, &tasks); err != nil {
			return errMsg{op: "tasks.search", err: err}
		}
		if tagID != "" {
			tasks = withTag(tasks, tagID)
		}
		return tasksLoadedMsg{query: query, tasks: tasks}
	}
}

func withTag(tasks []models.Task, tagID string) []models.Task {
	out := tasks[:0]
	for _, t := range tasks {
		for _, tag := range t.Tags {
			if tag.ID == tagID {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func (v *TaskListView) loadTags() tea.Msg {
	var tags []models.Tag
	if err := call(v.client, "tags.getAll", nil, &tags); err != nil {
		return errMsg{op: "tags.getAll", err: err}
	}
	return tagsLoadedMsg{tags: tags}
}

func (v *TaskListView) loadUsers() tea.Msg {
	var users []models.User
	if err := call(v.client, "users.getAll", nil, &users); err != nil {
		return errMsg{op: "users.getAll", err: err}
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return usersLoadedMsg{names: names}
}

func (v *TaskListView) loadComments(taskID string) tea.Cmd {
	return func() tea.Msg {
		var comments []models.Comment
		if err := call(v.client, "comments.getForTask", map[string]string{"task_id": taskID}, &comments); err != nil {
			return errMsg{op: "comments.getForTask", err: err}
		}
		return commentsLoadedMsg{taskID: taskID, comments: comments}
	}
}

func (v *TaskListView) selected() (models.Task, bool) {
	if v.cursor < 0 || v.cursor >= len(v.tasks) {
		return models.Task{}, false
	}
	return v.tasks[v.cursor], true
}

func (v *TaskListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.ensureVisible()
		return v, nil

	case tasksLoadedMsg:
		// Drop results of a search the user has typed past.
		if msg.query != strings.TrimSpace(v.searchInput.Value()) {
			return v, nil
		}
		v.tasks = msg.tasks
		v.cursor = clamp(v.cursor, 0, max(len(v.tasks)-1, 0))
		v.ensureVisible()
		v.loaded = true
		v.err = nil
		return v, nil

	case tagsLoadedMsg:
		v.tags = msg.tags
		return v, nil

	case usersLoadedMsg:
		v.usernames = msg.names
		return v, nil

	case commentsLoadedMsg:
		if t, ok := v.selected(); ok && t.ID == msg.taskID {
			v.viewTaskComments = msg.comments
		}
		return v, nil

	case errMsg:
		v.err = msg
		v.loaded = true
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
		if v.viewingTask {
			return v.updateViewingTask(msg)
		}
		if v.tagDropdownOpen {
			return v.updateTagDropdown(msg)
		}
		return v.updateNormal(msg)
	}

	if v.viewingTask && v.commentInputFocused {
		var cmd tea.Cmd
		v.commentInput, cmd = v.commentInput.Update(msg)
		return v, cmd
	}
	return v, nil
}

func (v *TaskListView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Don't process hotkeys while typing a search
	if v.focus == FocusSearchInput {
		switch {
		case key.Matches(msg, v.keys.Back), key.Matches(msg, v.keys.Enter):
			v.searchInput.Blur()
			v.focus = FocusTaskList
			return v, nil
		default:
			var cmd tea.Cmd
			v.searchInput, cmd = v.searchInput.Update(msg)
			v.cursor = 0
			v.scrollY = 0
			return v, tea.Batch(cmd, v.loadTasks())
		}
	}

	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Back):
		if v.searchInput.Value() != "" || v.selectedTag != nil {
			v.searchInput.Reset()
			v.selectedTag = nil
			return v, v.loadTasks()
		}
		return v, nil

	case key.Matches(msg, v.keys.Switch):
		return v, func() tea.Msg { return SwitchView{} }

	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(v.tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if t, ok := v.selected(); ok {
			v.viewingTask = true
			v.viewTaskComments = nil
			return v, v.loadComments(t.ID)
		}
		return v, nil

	case key.Matches(msg, v.keys.New):
		v.creating = true
		v.form = newTitleForm("New Task", "Create", "Task title")
		return v, v.form.open()

	case key.Matches(msg, v.keys.Delete):
		if t, ok := v.selected(); ok {
			v.confirmingDelete = true
			v.deleteTargetID = t.ID
			v.deleteTargetName = t.Title
		}
		return v, nil

	case key.Matches(msg, v.keys.Status):
		return v, v.advanceStatus()

	case key.Matches(msg, v.keys.Search):
		v.focus = FocusSearchInput
		v.searchInput.Focus()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Filter):
		v.focus = FocusTagDropdown
		v.tagDropdownOpen = true
		v.tagCursor = 0
		return v, nil

	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
		return v, nil
	}

	return v, nil
}

// advanceStatus moves the selected task to the next status in the cycle.
func (v *TaskListView) advanceStatus() tea.Cmd {
	t, ok := v.selected()
	if !ok {
		return nil
	}
	next := t.Status.Next()
	return send(v.client, "tasks.changeStatus", map[string]any{"id": t.ID, "status": next},
		func() tea.Msg { return v.loadTasks()() })
}

func (v *TaskListView) updateTagDropdown(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.tagDropdownOpen = false
		v.focus = FocusTaskList
		return v, nil

	case key.Matches(msg, v.keys.Up):
		if v.tagCursor > 0 {
			v.tagCursor--
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.tagCursor < len(v.tags) { // +1 for "None" option
			v.tagCursor++
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if v.tagCursor == 0 {
			v.selectedTag = nil
		} else {
			tagID := v.tags[v.tagCursor-1].ID
			v.selectedTag = &tagID
		}
		v.tagDropdownOpen = false
		v.focus = FocusTaskList
		v.cursor = 0
		v.scrollY = 0
		return v, v.loadTasks()
	}

	return v, nil
}

func (v *TaskListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		v.viewingTask = false
		return v, send(v.client, "tasks.delete", map[string]string{"id": v.deleteTargetID},
			func() tea.Msg { return v.loadTasks()() })
	case "n", "N", "esc":
		v.confirmingDelete = false
	}
	return v, nil
}

func (v *TaskListView) updateCreating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	result, cmd := v.form.update(msg)
	switch result {
	case formCancelled:
		v.creating = false
		return v, nil
	case formSubmitted:
		v.creating = false
		title, desc := v.form.values()
		in := models.NewTask{Title: title, Description: desc, CreatorID: v.userID}
		return v, send(v.client, "tasks.create", in, func() tea.Msg { return v.loadTasks()() })
	}
	return v, cmd
}

func (v *TaskListView) updateViewingTask(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if v.commentInputFocused {
		switch {
		case key.Matches(msg, v.keys.Back):
			v.commentInputFocused = false
			v.commentInput.Blur()
			return v, nil
		case key.Matches(msg, v.keys.Save):
			return v, v.submitComment()
		default:
			var cmd tea.Cmd
			v.commentInput, cmd = v.commentInput.Update(msg)
			return v, cmd
		}
	}

	switch {
	case key.Matches(msg, v.keys.Back):
		v.viewingTask = false
		v.viewTaskComments = nil
		return v, nil
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit
	case key.Matches(msg, v.keys.Status):
		return v, v.advanceStatus()
	case key.Matches(msg, v.keys.Delete):
		if t, ok := v.selected(); ok {
			v.confirmingDelete = true
			v.deleteTargetID = t.ID
			v.deleteTargetName = t.Title
		}
		return v, nil
	case key.Matches(msg, v.keys.Comment):
		v.commentInputFocused = true
		v.commentInput.Focus()
		return v, textarea.Blink
	}
	return v, nil
}

func (v *TaskListView) submitComment() tea.Cmd {
	content := strings.TrimSpace(v.commentInput.Value())
	t, ok := v.selected()
	if content == "" || !ok {
		return nil
	}

	v.commentInput.Reset()
	v.commentInputFocused = false
	v.commentInput.Blur()

	in := models.NewComment{TaskID: t.ID, AuthorID: v.userID, Content: content}
	return send(v.client, "comments.create", in, func() tea.Msg { return v.loadComments(t.ID)() })
}

func (v *TaskListView) visibleItems() int {
	// Each task item is 2 lines + 1 margin
	return max((v.height-12)/3, 1)
}

func (v *TaskListView) ensureVisible() {
	visible := v.visibleItems()
	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	}
	if v.cursor >= v.scrollY+visible {
		v.scrollY = v.cursor - visible + 1
	}
}

var taskHelp = []binding{
	{"↵", "open"},
	{"n", "new"},
	{"s", "status"},
	{"d", "delete"},
	{"/", "search"},
	{"f", "tag"},
	{"tab", "phases"},
	{"q", "quit"},
}

// View renders the view
func (v *TaskListView) View() string {
	switch {
	case v.showHelpPopup:
		return helpPopup(v.styles, v.width, v.height, taskHelp)
	case v.confirmingDelete:
		return confirmDelete(v.styles, v.width, v.height, "task", v.deleteTargetName)
	case v.creating:
		return v.form.view(v.styles, v.width, v.height)
	case v.viewingTask:
		return v.renderTaskView()
	case !v.loaded:
		return v.styles.TitleMuted.Render("Loading...")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		v.renderHeader(),
		"",
		v.renderTaskList(),
		errorLine(v.styles, v.err),
		helpLine(v.styles, v.width, taskHelp),
	)
	return styles.CenterView(content, v.width, v.height)
}

func (v *TaskListView) renderHeader() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	isNarrow := contentWidth < 60

	searchStyle := s.Input
	if v.focus == FocusSearchInput {
		searchStyle = s.InputFocused
	}
	searchBox := searchStyle.Width(clamp(contentWidth-8, 10, 30)).Render(v.searchInput.View())

	tagStyle := s.Button
	if v.focus == FocusTagDropdown {
		tagStyle = s.ButtonFocused
	}
	tagLabel := "All"
	if v.selectedTag != nil {
		for _, t := range v.tags {
			if t.ID == *v.selectedTag {
				tagLabel = t.Name
				break
			}
		}
	}
	if !isNarrow {
		tagLabel = "Tags: " + tagLabel
	}
	tagBtn := tagStyle.Render(tagLabel + " ▼")

	var header string
	if isNarrow {
		header = lipgloss.JoinVertical(lipgloss.Left, searchBox, tagBtn)
	} else {
		header = lipgloss.JoinHorizontal(lipgloss.Center, searchBox, "  ", tagBtn)
	}

	dropdown := ""
	if v.tagDropdownOpen {
		dropdown = "\n" + v.renderTagDropdown()
	}

	return lipgloss.JoinVertical(lipgloss.Left, s.Title.Render("Tasks"), header+dropdown)
}

func (v *TaskListView) renderTagDropdown() string {
	s := v.styles

	noneStyle := s.ListItem
	if v.tagCursor == 0 {
		noneStyle = s.ListSelected
	}
	items := []string{noneStyle.Render("None")}

	for i, tag := range v.tags {
		itemStyle := s.ListItem
		if v.tagCursor == i+1 {
			itemStyle = s.ListSelected
		}
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(tag.Color)).Render("●")
		items = append(items, itemStyle.Render(dot+" "+tag.Name))
	}

	return s.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, items...))
}

func (v *TaskListView) renderTaskList() string {
	s := v.styles
	if len(v.tasks) == 0 {
		if v.searchInput.Value() != "" {
			return s.TitleMuted.Render("No matches.")
		}
		return s.TitleMuted.Render("No tasks. Press 'n' to create one.")
	}

	var items []string
	end := min(v.scrollY+v.visibleItems(), len(v.tasks))
	for i := v.scrollY; i < end; i++ {
		items = append(items, v.renderTaskItem(v.tasks[i], i == v.cursor && v.focus == FocusTaskList))
	}
	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func statusBadge(st models.Status) string {
	return lipgloss.NewStyle().Foreground(styles.StatusColor(st)).Render(string(st))
}

func priorityBadge(p models.Priority) string {
	return lipgloss.NewStyle().Foreground(styles.PriorityColor(p)).Render(string(p))
}

func tagLine(s *styles.Styles, tags []models.Tag) string {
	if len(tags) == 0 {
		return s.TitleMuted.Render("no tags")
	}
	parts := make([]string, len(tags))
	for i, tag := range tags {
		parts[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(tag.Color)).Render(tag.Name)
	}
	return strings.Join(parts, " ")
}

func (v *TaskListView) renderTaskItem(task models.Task, selected bool) string {
	s := v.styles
	width := max(styles.ContentWidth(v.width)-4, 20)

	lineStyle := s.ListItem
	if selected {
		lineStyle = s.ListSelected
	}

	title := lineStyle.Width(width).Render(fmt.Sprintf("[%s] %s", priorityBadge(task.Priority), task.Title))
	meta := lineStyle.Width(width).Render(statusBadge(task.Status) + "  " + tagLine(s, task.Tags))
	return lipgloss.JoinVertical(lipgloss.Left, title, meta) + "\n"
}

func (v *TaskListView) authorName(id string) string {
	if name, ok := v.usernames[id]; ok {
		return name
	}
	return id
}

func (v *TaskListView) renderTaskView() string {
	task, ok := v.selected()
	if !ok {
		return ""
	}

	s := v.styles
	textWidth := clamp(styles.ContentWidth(v.width)-10, 20, 70)
	v.commentInput.SetWidth(clamp(textWidth, 20, 50))
	labelStyle := s.TitleMuted

	descText := task.Description
	if descText == "" {
		descText = s.TitleMuted.Render("No description")
	}

	var commentsContent string
	if len(v.viewTaskComments) == 0 {
		commentsContent = s.TitleMuted.Render("No comments yet")
	} else {
		var lines []string
		for _, c := range v.viewTaskComments {
			stamp := time.Unix(c.CreatedAt, 0).Format("Jan 2, 2006 3:04 PM")
			indent := ""
			if c.ParentCommentID != nil {
				indent = "  ↳ "
			}
			lines = append(lines, lipgloss.JoinVertical(lipgloss.Left,
				s.TitleMuted.Render(indent+v.authorName(c.AuthorID)+" · "+stamp),
				lipgloss.NewStyle().Width(textWidth).Render(c.Content),
			))
		}
		commentsContent = lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	commentInputStyle := s.Input
	help := []binding{{"c", "comment"}, {"s", "status"}, {"d", "delete"}, {"esc", "back"}}
	if v.commentInputFocused {
		commentInputStyle = s.InputFocused
		help = []binding{{"ctrl+s", "submit"}, {"esc", "cancel"}}
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.MarginBottom(1).Render(task.Title),
		labelStyle.Render("Status")+"   "+statusBadge(task.Status),
		labelStyle.Render("Priority")+" "+priorityBadge(task.Priority),
		labelStyle.Render("Type")+"     "+string(task.Type),
		"",
		labelStyle.Render("Tags"),
		tagLine(s, task.Tags),
		"",
		labelStyle.Render("Description"),
		lipgloss.NewStyle().Width(textWidth).Render(descText),
		"",
		labelStyle.Render("Comments"),
		commentsContent,
		"",
		commentInputStyle.Render(v.commentInput.View()),
		errorLine(s, v.err),
		helpLine(s, v.width, help),
	)

	padded := lipgloss.NewStyle().Padding(1, 2).Render(content)
	return styles.CenterView(padded, v.width, v.height)
}
