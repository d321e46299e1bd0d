// Package models defines the records devdesk stores and the DTOs its
// services accept.
package models

// Role is a user's global role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDeveloper, RoleViewer:
		return true
	}
	return false
}

// TaskType classifies a task.
type TaskType string

const (
	TypeFeature       TaskType = "feature"
	TypeBug           TaskType = "bug"
	TypeImprovement   TaskType = "improvement"
	TypeDocumentation TaskType = "documentation"
	TypeOther         TaskType = "other"
)

func (t TaskType) Valid() bool {
	switch t {
	case TypeFeature, TypeBug, TypeImprovement, TypeDocumentation, TypeOther:
		return true
	}
	return false
}

// Priority of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Status is a task's lifecycle state.
//
// pending -> in_progress -> completed | paused | cancelled; paused -> in_progress.
// Services accept any known status regardless of the current one.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPaused     Status = "paused"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusPaused, StatusCancelled}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Next returns the status that follows s when cycling through Statuses.
func (s Status) Next() Status {
	for i, v := range Statuses {
		if v == s {
			return Statuses[(i+1)%len(Statuses)]
		}
	}
	return StatusPending
}

// ReactionTarget is the kind of record a reaction is attached to.
type ReactionTarget string

const (
	TargetTask    ReactionTarget = "task"
	TargetComment ReactionTarget = "comment"
)

func (t ReactionTarget) Valid() bool {
	return t == TargetTask || t == TargetComment
}

// User represents an account. PasswordHash is nil for accounts provisioned
// externally and is never serialized.
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	FullName     string   `json:"full_name"`
	Email        string   `json:"email"`
	PasswordHash *string  `json:"-"`
	PhoneNumber  *string  `json:"phone_number,omitempty"`
	AvatarURL    *string  `json:"avatar_url,omitempty"`
	Role         Role     `json:"role"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    *int64   `json:"updated_at,omitempty"`
	Settings     Metadata `json:"settings"`
}

// UserProfile is a user with their teams and task statistics.
type UserProfile struct {
	User          *User          `json:"user"`
	Teams         []ProfileTeam  `json:"teams"`
	AssignedTasks int            `json:"assigned_tasks"`
	CreatedTasks  int            `json:"created_tasks"`
	TasksByStatus map[Status]int `json:"tasks_by_status"`
}

// ProfileTeam is a team as seen from one member.
type ProfileTeam struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Team represents a group of users with a leader.
type Team struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	LeaderID    string   `json:"leader_id"`
	CreatedAt   int64    `json:"created_at"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// TeamMember associates a user with a team.
type TeamMember struct {
	TeamID   string `json:"team_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt int64  `json:"joined_at"`
}

// Task represents a unit of work, optionally nested under a parent task.
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Type         TaskType `json:"type"`
	Priority     Priority `json:"priority"`
	Status       Status   `json:"status"`
	CreatorID    string   `json:"creator_id"`
	AssigneeID   *string  `json:"assignee_id,omitempty"`
	ParentTaskID *string  `json:"parent_task_id,omitempty"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
	DueDate      *int64   `json:"due_date,omitempty"`
	Metadata     Metadata `json:"metadata,omitempty"`
	Tags         []Tag    `json:"tags"` // populated when loading tasks
}

// Tag represents a tag that can be applied to tasks
type Tag struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	CreatedAt int64  `json:"created_at"`
}

// Comment represents a comment on a task. Replies point at their parent.
type Comment struct {
	ID              string   `json:"id"`
	TaskID          string   `json:"task_id"`
	AuthorID        string   `json:"author_id"`
	Content         string   `json:"content"`
	ParentCommentID *string  `json:"parent_comment_id,omitempty"`
	CreatedAt       int64    `json:"created_at"`
	UpdatedAt       int64    `json:"updated_at"`
	Metadata        Metadata `json:"metadata,omitempty"`
}

// Reaction is a typed reaction by a user on a task or comment.
type Reaction struct {
	ID         string         `json:"id"`
	TargetType ReactionTarget `json:"target_type"`
	TargetID   string         `json:"target_id"`
	UserID     string         `json:"user_id"`
	Type       string         `json:"type"`
	CreatedAt  int64          `json:"created_at"`
}

// Document holds the current content of a versioned document.
type Document struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	AuthorID  string   `json:"author_id"`
	Version   int      `json:"version"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// DocumentVersion is an immutable snapshot appended on every edit.
type DocumentVersion struct {
	DocumentID string `json:"document_id"`
	Version    int    `json:"version"`
	Content    string `json:"content"`
	EditorID   string `json:"editor_id"`
	Changes    string `json:"changes"`
	CreatedAt  int64  `json:"created_at"`
}

// Notification is addressed to a single recipient.
type Notification struct {
	ID          string   `json:"id"`
	RecipientID string   `json:"recipient_id"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Data        Metadata `json:"data,omitempty"`
	Read        bool     `json:"read"`
	CreatedAt   int64    `json:"created_at"`
}

// DevelopmentPhase groups development tasks. TasksCount and
// CompletionPercentage are computed on read.
type DevelopmentPhase struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Icon                 string   `json:"icon"`
	Color                string   `json:"color"`
	OrderIndex           int      `json:"order_index"`
	CreatedAt            int64    `json:"created_at"`
	UpdatedAt            int64    `json:"updated_at"`
	Metadata             Metadata `json:"metadata,omitempty"`
	TasksCount           int      `json:"tasks_count"`
	CompletedCount       int      `json:"completed_count"`
	CompletionPercentage int      `json:"completion_percentage"`
}

// DevelopmentTask is a checklist item inside a phase.
type DevelopmentTask struct {
	ID          string   `json:"id"`
	PhaseID     string   `json:"phase_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IsCompleted bool     `json:"is_completed"`
	OrderIndex  int      `json:"order_index"`
	DueDate     *int64   `json:"due_date,omitempty"`
	CreatorID   *string  `json:"creator_id,omitempty"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// CodeSnippet is a stored piece of source code, optionally tied to a task.
type CodeSnippet struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Language    string   `json:"language"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	TaskID      *string  `json:"task_id,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// Screenshot references an image file on disk.
type Screenshot struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	FilePath      string   `json:"file_path"`
	ThumbnailPath string   `json:"thumbnail_path"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	CreatedAt     int64    `json:"created_at"`
	TaskID        *string  `json:"task_id,omitempty"`
	Metadata      Metadata `json:"metadata,omitempty"`
}

// Setting is an application-wide key/value pair.
type Setting struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
}
