package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

func TestTaskCreateDefaults(t *testing.T) {
	svc, _ := newTestServices(t)
	alice := createUser(t, svc, "alice")

	task := createTask(t, svc, alice, "  Write docs  ")
	assert.Equal(t, "Write docs", task.Title)
	assert.Equal(t, models.TypeFeature, task.Type)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	assert.Empty(t, task.Tags)
	assert.NotNil(t, task.Tags)
}

func TestTaskCreateValidation(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")

	tests := []struct {
		name  string
		in    models.NewTask
		field string
	}{
		{"empty title", models.NewTask{CreatorID: alice.ID}, "title"},
		{"bad type", models.NewTask{Title: "x", CreatorID: alice.ID, Type: "epic"}, "type"},
		{"bad priority", models.NewTask{Title: "x", CreatorID: alice.ID, Priority: "urgent"}, "priority"},
		{"bad status", models.NewTask{Title: "x", CreatorID: alice.ID, Status: "done"}, "status"},
		{"unknown creator", models.NewTask{Title: "x", CreatorID: "ghost"}, "creator_id"},
		{"unknown assignee", models.NewTask{Title: "x", CreatorID: alice.ID, AssigneeID: ptr("ghost")}, "assignee_id"},
		{"unknown parent", models.NewTask{Title: "x", CreatorID: alice.ID, ParentTaskID: ptr("ghost")}, "parent_task_id"},
		{"unknown tag", models.NewTask{Title: "x", CreatorID: alice.ID, Tags: []string{"ghost"}}, "tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Tasks.Create(ctx, tt.in)
			ae, ok := apperrors.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, apperrors.CodeInvalid, ae.Code)
			assert.Equal(t, tt.field, ae.Field)
		})
	}

	all, err := svc.Tasks.List(ctx, models.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "failed creates leave nothing behind")
}

func TestTaskUpdatePatch(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")
	task, err := svc.Tasks.Create(ctx, models.NewTask{
		Title:       "Original",
		Description: "keep me",
		CreatorID:   alice.ID,
		AssigneeID:  &alice.ID,
		DueDate:     ptr(int64(1_800_000_000)),
	})
	require.NoError(t, err)

	ok, err := svc.Tasks.Update(ctx, task.ID, models.TaskPatch{
		Title:    ptr("Renamed"),
		Priority: ptr(models.PriorityHigh),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := svc.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	assert.Equal(t, "keep me", got.Description)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Greater(t, got.UpdatedAt, task.UpdatedAt)

	// Empty assignee and zero due date clear the fields.
	ok, err = svc.Tasks.Update(ctx, task.ID, models.TaskPatch{AssigneeID: ptr(""), DueDate: ptr(int64(0))})
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = svc.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssigneeID)
	assert.Nil(t, got.DueDate)

	ok, err = svc.Tasks.Update(ctx, "missing", models.TaskPatch{Title: ptr("x")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTaskStatusOnlyPatchKeepsOtherFields(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")
	bob := createUser(t, svc, "bob")
	task, err := svc.Tasks.Create(ctx, models.NewTask{
		Title:       "Ship release",
		Description: "tag and publish",
		Priority:    models.PriorityHigh,
		CreatorID:   alice.ID,
		AssigneeID:  &bob.ID,
	})
	require.NoError(t, err)

	ok, err := svc.Tasks.Update(ctx, task.ID, models.TaskPatch{Status: ptr(models.StatusCompleted)})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := svc.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "Ship release", got.Title)
	assert.Equal(t, "tag and publish", got.Description)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, bob.ID, *got.AssigneeID)
	assert.Greater(t, got.UpdatedAt, task.UpdatedAt)
}

func TestTaskChangeStatusAllowsAnyKnownStatus(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")
	task := createTask(t, svc, alice, "Status")

	for _, st := range []models.Status{models.StatusCompleted, models.StatusPending, models.StatusCancelled} {
		ok, err := svc.Tasks.ChangeStatus(ctx, task.ID, st)
		require.NoError(t, err)
		assert.True(t, ok)
		got, err := svc.Tasks.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, st, got.Status)
	}

	_, err := svc.Tasks.ChangeStatus(ctx, task.ID, "archived")
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestTaskTags(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")
	backend, err := svc.Tags.Create(ctx, models.NewTag{Name: "backend", Color: "#00f"})
	require.NoError(t, err)

	task, err := svc.Tasks.Create(ctx, models.NewTask{Title: "Tagged", CreatorID: alice.ID, Tags: []string{backend.ID}})
	require.NoError(t, err)
	require.Len(t, task.Tags, 1)
	assert.Equal(t, "backend", task.Tags[0].Name)

	ok, err := svc.Tasks.AddTag(ctx, task.ID, "urgent")
	require.NoError(t, err)
	assert.True(t, ok)
	created, err := svc.Tags.GetByName(ctx, "URGENT")
	require.NoError(t, err)
	require.NotNil(t, created, "AddTag creates missing tags")

	// Adding the same tag twice is a no-op.
	_, err = svc.Tasks.AddTag(ctx, task.ID, "urgent")
	require.NoError(t, err)
	tags, err := svc.Tasks.Tags(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	byTag, err := svc.Tasks.List(ctx, models.TaskFilter{TagID: created.ID})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, task.ID, byTag[0].ID)

	ok, err = svc.Tasks.RemoveTag(ctx, task.ID, "backend")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Tasks.Update(ctx, task.ID, models.TaskPatch{Tags: &[]string{}})
	require.NoError(t, err)
	assert.True(t, ok)
	tags, err = svc.Tasks.Tags(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)

	ok, err = svc.Tasks.AddTag(ctx, "missing", "urgent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTaskListFilters(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")
	bob := createUser(t, svc, "bob")

	parent := createTask(t, svc, alice, "Parent")
	child, err := svc.Tasks.Create(ctx, models.NewTask{
		Title: "Child", CreatorID: bob.ID, ParentTaskID: &parent.ID, Status: models.StatusInProgress,
	})
	require.NoError(t, err)

	all, err := svc.Tasks.List(ctx, models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, child.ID, all[0].ID, "newest first")

	byCreator, err := svc.Tasks.List(ctx, models.TaskFilter{CreatorID: alice.ID})
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
	assert.Equal(t, parent.ID, byCreator[0].ID)

	byStatus, err := svc.Tasks.List(ctx, models.TaskFilter{Status: models.StatusInProgress})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)

	subs, err := svc.Tasks.Subtasks(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, child.ID, subs[0].ID)
}

func TestTaskDeleteCascades(t *testing.T) {
	svc, d := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")

	parent := createTask(t, svc, alice, "Parent")
	child, err := svc.Tasks.Create(ctx, models.NewTask{Title: "Child", CreatorID: alice.ID, ParentTaskID: &parent.ID})
	require.NoError(t, err)
	_, err = svc.Tasks.AddTag(ctx, parent.ID, "doomed")
	require.NoError(t, err)
	root, err := svc.Comments.Create(ctx, models.NewComment{TaskID: parent.ID, AuthorID: alice.ID, Content: "root"})
	require.NoError(t, err)
	_, err = svc.Comments.Create(ctx, models.NewComment{
		TaskID: parent.ID, AuthorID: alice.ID, Content: "reply", ParentCommentID: &root.ID,
	})
	require.NoError(t, err)
	_, err = svc.Comments.React(ctx, models.NewReaction{
		TargetType: models.TargetComment, TargetID: root.ID, UserID: alice.ID, Type: "like",
	})
	require.NoError(t, err)
	snippet, err := svc.Snippets.Create(ctx, models.NewCodeSnippet{
		Title: "s", Code: "x := 1", Language: "go", TaskID: &parent.ID,
	})
	require.NoError(t, err)

	ok, err := svc.Tasks.Delete(ctx, parent.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	for table, want := range map[string]int{"task_tags": 0, "comments": 0, "reactions": 0, "tasks": 1} {
		n, err := count(ctx, d, `SELECT COUNT(*) FROM `+table)
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}

	orphan, err := svc.Tasks.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.ParentTaskID, "subtasks are detached")

	detached, err := svc.Snippets.Get(ctx, snippet.ID)
	require.NoError(t, err)
	assert.Nil(t, detached.TaskID)

	ok, err = svc.Tasks.Delete(ctx, parent.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTaskSearch(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")

	login := createTask(t, svc, alice, "Fix login redirect")
	_, err := svc.Tasks.Create(ctx, models.NewTask{
		Title: "Refactor storage", Description: "the login flow touches this too", CreatorID: alice.ID,
	})
	require.NoError(t, err)
	createTask(t, svc, alice, "Unrelated chore")

	found, err := svc.Tasks.Search(ctx, "log", 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, login.ID, found[0].ID, "title match ranks first")

	found, err = svc.Tasks.Search(ctx, "   ", 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = svc.Tasks.Search(ctx, `"login`, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, found, "quotes are escaped, not parsed")

	_, err = svc.Tasks.Delete(ctx, login.ID)
	require.NoError(t, err)
	found, err = svc.Tasks.Search(ctx, "login", 0)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
