package bridge

import (
	"context"

	"github.com/tgienger/devdesk/internal/backup"
	"github.com/tgienger/devdesk/internal/db"
	"github.com/tgienger/devdesk/internal/models"
	"github.com/tgienger/devdesk/internal/service"
)

// Payload shapes shared by several ops.
type (
	idArg struct {
		ID string `json:"id"`
	}
	updateArg[P any] struct {
		ID    string `json:"id"`
		Patch P      `json:"patch"`
	}
	searchArg struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}
	taskScopeArg struct {
		TaskID string `json:"task_id,omitempty"`
	}
	reorderArg struct {
		PhaseID string   `json:"phase_id,omitempty"`
		IDs     []string `json:"ids"`
	}
	memberArg struct {
		TeamID string `json:"team_id"`
		UserID string `json:"user_id"`
		Role   string `json:"role,omitempty"`
	}
	taskTagArg struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	reactionArg struct {
		TargetType models.ReactionTarget `json:"target_type"`
		TargetID   string                `json:"target_id"`
		UserID     string                `json:"user_id,omitempty"`
		Type       string                `json:"type,omitempty"`
	}
	recipientArg struct {
		RecipientID string `json:"recipient_id"`
		UnreadOnly  bool   `json:"unread_only,omitempty"`
	}
	settingArg struct {
		Key   string `json:"key"`
		Value string `json:"value,omitempty"`
	}
)

// DBStatus answers system.checkDbStatus.
type DBStatus struct {
	Ready        bool   `json:"ready"`
	Path         string `json:"path"`
	Driver       string `json:"driver"`
	SearchMirror bool   `json:"search_mirror"`
	Error        string `json:"error,omitempty"`
}

// Deps are the collaborators the routes call into.
type Deps struct {
	DB       *db.DB
	Services *service.Services
	Backup   *backup.Manager // nil leaves backup.* unregistered
}

// New returns a dispatcher with every route registered.
func New(deps Deps) *Dispatcher {
	d := NewDispatcher(deps.DB.Logger())
	RegisterAll(d, deps)
	return d
}

// RegisterAll binds every record operation to d.
func RegisterAll(d *Dispatcher, deps Deps) {
	svc := deps.Services
	registerUsers(d, svc.Users)
	registerTeams(d, svc.Teams)
	registerTasks(d, svc.Tasks)
	registerTags(d, svc.Tags)
	registerComments(d, svc.Comments)
	registerDevelopment(d, svc.Development)
	registerDocuments(d, svc.Documents)
	registerNotifications(d, svc.Notifications)
	registerSnippets(d, svc.Snippets)
	registerScreenshots(d, svc.Screenshots)
	registerSettings(d, svc.Settings)
	if deps.Backup != nil {
		registerBackup(d, deps.Backup)
	}
	registerSystem(d, deps.DB, svc)
}

func registerUsers(d *Dispatcher, s *service.UserService) {
	d.Register("users.getAll", bind(func(ctx context.Context, f models.UserFilter) (any, error) {
		return s.List(ctx, f)
	}))
	d.Register("users.get", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Get(ctx, a.ID)
	}))
	d.Register("users.getByUsername", bind(func(ctx context.Context, a struct {
		Username string `json:"username"`
	}) (any, error) {
		return s.GetByUsername(ctx, a.Username)
	}))
	d.Register("users.getProfile", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Profile(ctx, a.ID)
	}))
	d.Register("users.create", bind(func(ctx context.Context, in models.NewUser) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("users.update", bind(func(ctx context.Context, a updateArg[models.UserPatch]) (any, error) {
		return s.Update(ctx, a.ID, a.Patch)
	}))
	d.Register("users.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
	d.Register("users.search", bind(func(ctx context.Context, a searchArg) (any, error) {
		return s.Search(ctx, a.Query)
	}))
	d.Register("users.changeRole", bind(func(ctx context.Context, a struct {
		ID   string      `json:"id"`
		Role models.Role `json:"role"`
	}) (any, error) {
		return s.ChangeRole(ctx, a.ID, a.Role)
	}))
	d.Register("users.changePassword", bind(func(ctx context.Context, a struct {
		ID       string `json:"id"`
		Password string `json:"password"`
	}) (any, error) {
		return s.ChangePassword(ctx, a.ID, a.Password)
	}))
	d.Register("users.authenticate", bind(func(ctx context.Context, a struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}) (any, error) {
		return s.Authenticate(ctx, a.Username, a.Password)
	}))
	d.Register("users.getSetting", bind(func(ctx context.Context, a struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	}) (any, error) {
		v, ok, err := s.Setting(ctx, a.ID, a.Path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": v, "found": ok}, nil
	}))
}

func registerTeams(d *Dispatcher, s *service.TeamService) {
	d.Register("teams.getAll", noArgs(func(ctx context.Context) (any, error) {
		return s.List(ctx)
	}))
	d.Register("teams.get", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Get(ctx, a.ID)
	}))
	d.Register("teams.create", bind(func(ctx context.Context, in models.NewTeam) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("teams.update", bind(func(ctx context.Context, a updateArg[models.TeamPatch]) (any, error) {
		return s.Update(ctx, a.ID, a.Patch)
	}))
	d.Register("teams.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
	d.Register("teams.addMember", bind(func(ctx context.Context, a memberArg) (any, error) {
		return s.AddMember(ctx, a.TeamID, a.UserID, a.Role)
	}))
	d.Register("teams.removeMember", bind(func(ctx context.Context, a memberArg) (any, error) {
		return s.RemoveMember(ctx, a.TeamID, a.UserID)
	}))
	d.Register("teams.getMembers", bind(func(ctx context.Context, a memberArg) (any, error) {
		return s.ListMembers(ctx, a.TeamID)
	}))
}

func registerTasks(d *Dispatcher, s *service.TaskService) {
	d.Register("tasks.getAll", bind(func(ctx context.Context, f models.TaskFilter) (any, error) {
		return s.List(ctx, f)
	}))
	d.Register("tasks.get", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Get(ctx, a.ID)
	}))
	d.Register("tasks.create", bind(func(ctx context.Context, in models.NewTask) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("tasks.update", bind(func(ctx context.Context, a updateArg[models.TaskPatch]) (any, error) {
		return s.Update(ctx, a.ID, a.Patch)
	}))
	d.Register("tasks.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
	d.Register("tasks.changeStatus", bind(func(ctx context.Context, a struct {
		ID     string        `json:"id"`
		Status models.Status `json:"status"`
	}) (any, error) {
		return s.ChangeStatus(ctx, a.ID, a.Status)
	}))
	d.Register("tasks.getTags", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Tags(ctx, a.ID)
	}))
	d.Register("tasks.addTag", bind(func(ctx context.Context, a taskTagArg) (any, error) {
		return s.AddTag(ctx, a.ID, a.Name)
	}))
	d.Register("tasks.removeTag", bind(func(ctx context.Context, a taskTagArg) (any, error) {
		return s.RemoveTag(ctx, a.ID, a.Name)
	}))
	d.Register("tasks.search", bind(func(ctx context.Context, a searchArg) (any, error) {
		return s.Search(ctx, a.Query, a.Limit)
	}))
	d.Register("tasks.getSubtasks", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Subtasks(ctx, a.ID)
	}))
}

func registerTags(d *Dispatcher, s *service.TagService) {
	d.Register("tags.getAll", noArgs(func(ctx context.Context) (any, error) {
		return s.List(ctx)
	}))
	d.Register("tags.get", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Get(ctx, a.ID)
	}))
	d.Register("tags.getByName", bind(func(ctx context.Context, a taskTagArg) (any, error) {
		return s.GetByName(ctx, a.Name)
	}))
	d.Register("tags.create", bind(func(ctx context.Context, in models.NewTag) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("tags.update", bind(func(ctx context.Context, a updateArg[models.TagPatch]) (any, error) {
		return s.Update(ctx, a.ID, a.Patch)
	}))
	d.Register("tags.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
}

func registerComments(d *Dispatcher, s *service.CommentService) {
	d.Register("comments.getForTask", bind(func(ctx context.Context, a taskScopeArg) (any, error) {
		return s.ListForTask(ctx, a.TaskID)
	}))
	d.Register("comments.get", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Get(ctx, a.ID)
	}))
	d.Register("comments.create", bind(func(ctx context.Context, in models.NewComment) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("comments.update", bind(func(ctx context.Context, a struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}) (any, error) {
		return s.Update(ctx, a.ID, a.Content)
	}))
	d.Register("comments.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
	d.Register("comments.react", bind(func(ctx context.Context, in models.NewReaction) (any, error) {
		return s.React(ctx, in)
	}))
	d.Register("comments.unreact", bind(func(ctx context.Context, a reactionArg) (any, error) {
		return s.Unreact(ctx, a.TargetType, a.TargetID, a.UserID, a.Type)
	}))
	d.Register("comments.getReactions", bind(func(ctx context.Context, a reactionArg) (any, error) {
		return s.ListReactions(ctx, a.TargetType, a.TargetID)
	}))
}

func registerDevelopment(d *Dispatcher, s *service.DevelopmentService) {
	d.Register("development.getPhases", noArgs(func(ctx context.Context) (any, error) {
		return s.ListPhases(ctx)
	}))
	d.Register("development.getPhase", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.GetPhase(ctx, a.ID)
	}))
	d.Register("development.createPhase", bind(func(ctx context.Context, in models.NewPhase) (any, error) {
		return s.CreatePhase(ctx, in)
	}))
	d.Register("development.updatePhase", bind(func(ctx context.Context, a updateArg[models.PhasePatch]) (any, error) {
		return s.UpdatePhase(ctx, a.ID, a.Patch)
	}))
	d.Register("development.deletePhase", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.DeletePhase(ctx, a.ID)
	}))
	d.Register("development.reorderPhases", bind(func(ctx context.Context, a reorderArg) (any, error) {
		return s.ReorderPhases(ctx, a.IDs)
	}))
	d.Register("development.getTasks", bind(func(ctx context.Context, a reorderArg) (any, error) {
		return s.ListTasks(ctx, a.PhaseID)
	}))
	d.Register("development.getTask", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.GetTask(ctx, a.ID)
	}))
	d.Register("development.createTask", bind(func(ctx context.Context, in models.NewDevelopmentTask) (any, error) {
		return s.CreateTask(ctx, in)
	}))
	d.Register("development.updateTask", bind(func(ctx context.Context, a updateArg[models.DevelopmentTaskPatch]) (any, error) {
		return s.UpdateTask(ctx, a.ID, a.Patch)
	}))
	d.Register("development.deleteTask", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.DeleteTask(ctx, a.ID)
	}))
	d.Register("development.toggleTask", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.ToggleTaskCompletion(ctx, a.ID)
	}))
	d.Register("development.reorderTasks", bind(func(ctx context.Context, a reorderArg) (any, error) {
		return s.ReorderTasks(ctx, a.PhaseID, a.IDs)
	}))
}

func registerDocuments(d *Dispatcher, s *service.DocumentService) {
	d.Register("documents.getAll", noArgs(func(ctx context.Context) (any, error) {
		return s.List(ctx)
	}))
	d.Register("documents.get", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Get(ctx, a.ID)
	}))
	d.Register("documents.create", bind(func(ctx context.Context, in models.NewDocument) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("documents.update", bind(func(ctx context.Context, a updateArg[models.DocumentPatch]) (any, error) {
		return s.Update(ctx, a.ID, a.Patch)
	}))
	d.Register("documents.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
	d.Register("documents.getVersions", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Versions(ctx, a.ID)
	}))
	d.Register("documents.getVersion", bind(func(ctx context.Context, a struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}) (any, error) {
		return s.Version(ctx, a.ID, a.Version)
	}))
	d.Register("documents.search", bind(func(ctx context.Context, a searchArg) (any, error) {
		return s.Search(ctx, a.Query, a.Limit)
	}))
}

func registerNotifications(d *Dispatcher, s *service.NotificationService) {
	d.Register("notifications.getForRecipient", bind(func(ctx context.Context, a recipientArg) (any, error) {
		return s.ListForRecipient(ctx, a.RecipientID, a.UnreadOnly)
	}))
	d.Register("notifications.create", bind(func(ctx context.Context, in models.NewNotification) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("notifications.markRead", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.MarkRead(ctx, a.ID)
	}))
	d.Register("notifications.markAllRead", bind(func(ctx context.Context, a recipientArg) (any, error) {
		n, err := s.MarkAllRead(ctx, a.RecipientID)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"updated": n}, nil
	}))
	d.Register("notifications.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
	d.Register("notifications.unreadCount", bind(func(ctx context.Context, a recipientArg) (any, error) {
		n, err := s.UnreadCount(ctx, a.RecipientID)
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": n}, nil
	}))
}

func registerSnippets(d *Dispatcher, s *service.SnippetService) {
	d.Register("codeSnippets.getAll", bind(func(ctx context.Context, a taskScopeArg) (any, error) {
		return s.List(ctx, a.TaskID)
	}))
	d.Register("codeSnippets.get", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Get(ctx, a.ID)
	}))
	d.Register("codeSnippets.create", bind(func(ctx context.Context, in models.NewCodeSnippet) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("codeSnippets.update", bind(func(ctx context.Context, a updateArg[models.CodeSnippetPatch]) (any, error) {
		return s.Update(ctx, a.ID, a.Patch)
	}))
	d.Register("codeSnippets.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
}

func registerScreenshots(d *Dispatcher, s *service.ScreenshotService) {
	d.Register("screenshots.getAll", bind(func(ctx context.Context, a taskScopeArg) (any, error) {
		return s.List(ctx, a.TaskID)
	}))
	d.Register("screenshots.get", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Get(ctx, a.ID)
	}))
	d.Register("screenshots.create", bind(func(ctx context.Context, in models.NewScreenshot) (any, error) {
		return s.Create(ctx, in)
	}))
	d.Register("screenshots.update", bind(func(ctx context.Context, a updateArg[models.ScreenshotPatch]) (any, error) {
		return s.Update(ctx, a.ID, a.Patch)
	}))
	d.Register("screenshots.delete", bind(func(ctx context.Context, a idArg) (any, error) {
		return s.Delete(ctx, a.ID)
	}))
}

func registerSettings(d *Dispatcher, s *service.SettingsService) {
	d.Register("settings.get", bind(func(ctx context.Context, a settingArg) (any, error) {
		return s.Get(ctx, a.Key)
	}))
	d.Register("settings.getAll", noArgs(func(ctx context.Context) (any, error) {
		return s.All(ctx)
	}))
	d.Register("settings.set", bind(func(ctx context.Context, a settingArg) (any, error) {
		return s.Set(ctx, a.Key, a.Value)
	}))
	d.Register("settings.delete", bind(func(ctx context.Context, a settingArg) (any, error) {
		return s.Delete(ctx, a.Key)
	}))
}

func registerBackup(d *Dispatcher, m *backup.Manager) {
	d.Register("backup.create", noArgs(func(ctx context.Context) (any, error) {
		return m.Create(ctx)
	}))
	d.Register("backup.list", noArgs(func(ctx context.Context) (any, error) {
		return m.List(ctx)
	}))
	d.Register("backup.prune", bind(func(ctx context.Context, a struct {
		Keep int `json:"keep"`
	}) (any, error) {
		removed, err := m.Prune(ctx, a.Keep)
		if err != nil {
			return nil, err
		}
		if removed == nil {
			removed = []string{}
		}
		return map[string][]string{"removed": removed}, nil
	}))
}

func registerSystem(d *Dispatcher, store *db.DB, svc *service.Services) {
	d.Register("system.checkDbStatus", noArgs(func(ctx context.Context) (any, error) {
		st := DBStatus{
			Path:         store.Path(),
			Driver:       string(store.Driver()),
			SearchMirror: svc.Search.MirrorHealthy(),
		}
		var users int
		if err := store.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
			st.Error = err.Error()
			return st, nil
		}
		st.Ready = true
		return st, nil
	}))
}
