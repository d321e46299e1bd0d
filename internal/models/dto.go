package models

// Create DTOs carry the caller-supplied fields of a new record. Patch
// structs list the optional fields of an update; a nil pointer leaves the
// stored value untouched. For optional references an empty string clears
// the reference, and for due dates zero clears the date.

type NewUser struct {
	Username    string   `json:"username"`
	FullName    string   `json:"full_name"`
	Email       string   `json:"email"`
	Password    string   `json:"password,omitempty"`
	PhoneNumber *string  `json:"phone_number,omitempty"`
	AvatarURL   *string  `json:"avatar_url,omitempty"`
	Role        Role     `json:"role"`
	Settings    Metadata `json:"settings,omitempty"`
}

type UserPatch struct {
	Username    *string   `json:"username,omitempty"`
	FullName    *string   `json:"full_name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Password    *string   `json:"password,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Role        *Role     `json:"role,omitempty"`
	Settings    *Metadata `json:"settings,omitempty"`
}

type UserFilter struct {
	Role Role `json:"role,omitempty"`
}

type NewTeam struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	LeaderID    string   `json:"leader_id"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

type TeamPatch struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	LeaderID    *string   `json:"leader_id,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

type NewTask struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Type         TaskType `json:"type"`
	Priority     Priority `json:"priority"`
	Status       Status   `json:"status"`
	CreatorID    string   `json:"creator_id"`
	AssigneeID   *string  `json:"assignee_id,omitempty"`
	ParentTaskID *string  `json:"parent_task_id,omitempty"`
	DueDate      *int64   `json:"due_date,omitempty"`
	Metadata     Metadata `json:"metadata,omitempty"`
	Tags         []string `json:"tags,omitempty"` // tag ids
}

type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Type        *TaskType `json:"type,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	AssigneeID  *string   `json:"assignee_id,omitempty"`
	DueDate     *int64    `json:"due_date,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	Tags        *[]string `json:"tags,omitempty"` // replaces the whole set
}

type TaskFilter struct {
	Status       Status `json:"status,omitempty"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	CreatorID    string `json:"creator_id,omitempty"`
	ParentTaskID string `json:"parent_task_id,omitempty"`
	TagID        string `json:"tag_id,omitempty"`
}

type NewTag struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type TagPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

type NewComment struct {
	TaskID          string   `json:"task_id"`
	AuthorID        string   `json:"author_id"`
	Content         string   `json:"content"`
	ParentCommentID *string  `json:"parent_comment_id,omitempty"`
	Metadata        Metadata `json:"metadata,omitempty"`
}

type NewReaction struct {
	TargetType ReactionTarget `json:"target_type"`
	TargetID   string         `json:"target_id"`
	UserID     string         `json:"user_id"`
	Type       string         `json:"type"`
}

type NewDocument struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	AuthorID string   `json:"author_id"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// DocumentPatch edits a document. EditorID and Changes describe the edit
// and are recorded in the appended version.
type DocumentPatch struct {
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
	EditorID string    `json:"editor_id"`
	Changes  string    `json:"changes"`
}

type NewNotification struct {
	RecipientID string   `json:"recipient_id"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Data        Metadata `json:"data,omitempty"`
}

type NewPhase struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
	OrderIndex  *int     `json:"order_index,omitempty"` // defaults to the end
	Metadata    Metadata `json:"metadata,omitempty"`
}

type PhasePatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Icon        *string   `json:"icon,omitempty"`
	Color       *string   `json:"color,omitempty"`
	OrderIndex  *int      `json:"order_index,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

type NewDevelopmentTask struct {
	PhaseID     string   `json:"phase_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IsCompleted bool     `json:"is_completed"`
	OrderIndex  *int     `json:"order_index,omitempty"` // defaults to the end
	DueDate     *int64   `json:"due_date,omitempty"`
	CreatorID   *string  `json:"creator_id,omitempty"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

type DevelopmentTaskPatch struct {
	PhaseID     *string   `json:"phase_id,omitempty"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	IsCompleted *bool     `json:"is_completed,omitempty"`
	OrderIndex  *int      `json:"order_index,omitempty"`
	DueDate     *int64    `json:"due_date,omitempty"`
	AssigneeID  *string   `json:"assignee_id,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

type NewCodeSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Language    string   `json:"language"`
	TaskID      *string  `json:"task_id,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

type CodeSnippetPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Code        *string   `json:"code,omitempty"`
	Language    *string   `json:"language,omitempty"`
	TaskID      *string   `json:"task_id,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// NewScreenshot registers an image. Zero Width and Height are read from
// the file.
type NewScreenshot struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	FilePath      string   `json:"file_path"`
	ThumbnailPath string   `json:"thumbnail_path"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	TaskID        *string  `json:"task_id,omitempty"`
	Metadata      Metadata `json:"metadata,omitempty"`
}

type ScreenshotPatch struct {
	Title         *string   `json:"title,omitempty"`
	Description   *string   `json:"description,omitempty"`
	ThumbnailPath *string   `json:"thumbnail_path,omitempty"`
	TaskID        *string   `json:"task_id,omitempty"`
	Metadata      *Metadata `json:"metadata,omitempty"`
}
