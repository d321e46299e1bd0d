package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
	"github.com/tgienger/devdesk/internal/search"
)

// TaskService manages tasks, their tag associations and subtasks.
type TaskService struct {
	base
}

const taskColumns = `id, title, COALESCE(description, ''), type, priority, status, creator_id,
	assignee_id, parent_task_id, created_at, updated_at, due_date, metadata`

func scanTask(r rowScanner) (*models.Task, error) {
	var (
		t                models.Task
		assignee, parent sql.NullString
		due              sql.NullInt64
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &t.Type, &t.Priority, &t.Status, &t.CreatorID,
		&assignee, &parent, &t.CreatedAt, &t.UpdatedAt, &due, &t.Metadata); err != nil {
		return nil, err
	}
	t.AssigneeID = fromNull(assignee)
	t.ParentTaskID = fromNull(parent)
	t.DueDate = fromNullInt(due)
	return &t, nil
}

func (s *TaskService) withTags(ctx context.Context, q db.Querier, tasks []models.Task) error {
	for i := range tasks {
		tags, err := tagsForTask(ctx, q, tasks[i].ID)
		if err != nil {
			return err
		}
		tasks[i].Tags = tags
	}
	return nil
}

// List returns tasks matching f, newest first, each with its tags.
func (s *TaskService) List(ctx context.Context, f models.TaskFilter) ([]models.Task, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		where = append(where, "assignee_id = ?")
		args = append(args, f.AssigneeID)
	}
	if f.CreatorID != "" {
		where = append(where, "creator_id = ?")
		args = append(args, f.CreatorID)
	}
	if f.ParentTaskID != "" {
		where = append(where, "parent_task_id = ?")
		args = append(args, f.ParentTaskID)
	}
	if f.TagID != "" {
		where = append(where, "id IN (SELECT task_id FROM task_tags WHERE tag_id = ?)")
		args = append(args, f.TagID)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, s.fail("list tasks", err)
	}
	tasks, err := scanAll(rows, scanTask)
	if err != nil {
		return nil, s.fail("list tasks", err)
	}
	if err := s.withTags(ctx, s.db, tasks); err != nil {
		return nil, s.fail("list tasks", err)
	}
	return tasks, nil
}

// Subtasks lists the direct children of a task.
func (s *TaskService) Subtasks(ctx context.Context, parentID string) ([]models.Task, error) {
	return s.List(ctx, models.TaskFilter{ParentTaskID: parentID})
}

// Get retrieves a task by ID with its tags, nil when absent.
func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	t, err := getTask(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get task", err, "id", id)
	}
	return t, nil
}

func getTask(ctx context.Context, q db.Querier, id string) (*models.Task, error) {
	t, err := queryOne(q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id), scanTask)
	if err != nil || t == nil {
		return nil, err
	}
	tags, err := tagsForTask(ctx, q, id)
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return t, nil
}

func validateTaskEnums(typ *models.TaskType, prio *models.Priority, status *models.Status) error {
	if typ != nil && !typ.Valid() {
		return apperrors.Invalid("type", fmt.Sprintf("unknown task type %q", *typ))
	}
	if prio != nil && !prio.Valid() {
		return apperrors.Invalid("priority", fmt.Sprintf("unknown priority %q", *prio))
	}
	if status != nil && !status.Valid() {
		return apperrors.Invalid("status", fmt.Sprintf("unknown status %q", *status))
	}
	return nil
}

// requireRef fails with INVALID when id is set but absent from table.
func requireRef(ctx context.Context, q db.Querier, table, field string, id *string) error {
	if id == nil || *id == "" {
		return nil
	}
	ok, err := exists(ctx, q, table, *id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Invalid(field, fmt.Sprintf("%s %q does not exist", strings.TrimSuffix(table, "s"), *id))
	}
	return nil
}

// Create inserts a task and its tag associations in one transaction.
func (s *TaskService) Create(ctx context.Context, in models.NewTask) (*models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperrors.Invalid("title", "must not be empty")
	}
	if in.Type == "" {
		in.Type = models.TypeFeature
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if in.Status == "" {
		in.Status = models.StatusPending
	}
	if err := validateTaskEnums(&in.Type, &in.Priority, &in.Status); err != nil {
		return nil, err
	}
	if in.CreatorID == "" {
		return nil, apperrors.Invalid("creator_id", "must not be empty")
	}

	id := newID()
	now := s.now()
	var created *models.Task
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := requireRef(ctx, q, "users", "creator_id", &in.CreatorID); err != nil {
			return err
		}
		if err := requireRef(ctx, q, "users", "assignee_id", in.AssigneeID); err != nil {
			return err
		}
		if err := requireRef(ctx, q, "tasks", "parent_task_id", in.ParentTaskID); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO tasks (id, title, description, type, priority, status, creator_id, assignee_id,
				parent_task_id, created_at, updated_at, due_date, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.Title, in.Description, in.Type, in.Priority, in.Status, in.CreatorID,
			nullable(in.AssigneeID), nullable(in.ParentTaskID), now, now, nullableInt(in.DueDate), in.Metadata)
		if err != nil {
			return apperrors.FromConstraint(err)
		}
		if err := setTaskTags(ctx, q, id, in.Tags); err != nil {
			return err
		}
		created, err = getTask(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, s.fail("create task", err, "title", in.Title)
	}
	s.search.Index(taskRecord(created))
	return created, nil
}

func taskRecord(t *models.Task) search.Record {
	return search.Record{Kind: search.KindTask, ID: t.ID, Title: t.Title, Body: t.Description}
}

// Update applies patch. Only set fields change; updated_at is always
// re-stamped. It reports false when the task does not exist.
func (s *TaskService) Update(ctx context.Context, id string, patch models.TaskPatch) (bool, error) {
	if err := validateTaskEnums(patch.Type, patch.Priority, patch.Status); err != nil {
		return false, err
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return false, apperrors.Invalid("title", "must not be empty")
	}

	var updated *models.Task
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		t, err := getTask(ctx, q, id)
		if err != nil || t == nil {
			return err
		}
		if patch.Title != nil {
			t.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Type != nil {
			t.Type = *patch.Type
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.AssigneeID != nil {
			if err := requireRef(ctx, q, "users", "assignee_id", patch.AssigneeID); err != nil {
				return err
			}
			t.AssigneeID = cleared(patch.AssigneeID)
		}
		if patch.DueDate != nil {
			t.DueDate = clearedInt(patch.DueDate)
		}
		if patch.Metadata != nil {
			t.Metadata = *patch.Metadata
		}

		_, err = q.Exec(ctx, `
			UPDATE tasks SET title = ?, description = ?, type = ?, priority = ?, status = ?,
				assignee_id = ?, due_date = ?, metadata = ?, updated_at = ?
			WHERE id = ?
		`, t.Title, t.Description, t.Type, t.Priority, t.Status, nullable(t.AssigneeID),
			nullableInt(t.DueDate), t.Metadata, s.now(), id)
		if err != nil {
			return apperrors.FromConstraint(err)
		}
		if patch.Tags != nil {
			if err := setTaskTags(ctx, q, id, *patch.Tags); err != nil {
				return err
			}
		}
		updated = t
		return nil
	})
	if err != nil {
		return false, s.fail("update task", err, "id", id)
	}
	if updated == nil {
		return false, nil
	}
	s.search.Index(taskRecord(updated))
	return true, nil
}

// ChangeStatus sets the status. Any known status may follow any other.
func (s *TaskService) ChangeStatus(ctx context.Context, id string, status models.Status) (bool, error) {
	return s.Update(ctx, id, models.TaskPatch{Status: &status})
}

// Delete removes a task with its tag associations, comments and
// reactions. Subtasks, snippets and screenshots are detached.
func (s *TaskService) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		ok, err := exists(ctx, q, "tasks", id)
		if err != nil || !ok {
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM task_tags WHERE task_id = ?`,
			`DELETE FROM reactions WHERE target_type = 'task' AND target_id = ?`,
			`DELETE FROM reactions WHERE target_type = 'comment'
				AND target_id IN (SELECT id FROM comments WHERE task_id = ?)`,
			`UPDATE comments SET parent_comment_id = NULL WHERE task_id = ?`,
			`DELETE FROM comments WHERE task_id = ?`,
			`UPDATE tasks SET parent_task_id = NULL WHERE parent_task_id = ?`,
			`UPDATE code_snippets SET task_id = NULL WHERE task_id = ?`,
			`UPDATE screenshots SET task_id = NULL WHERE task_id = ?`,
		} {
			if _, err := q.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		n, err := q.Exec(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, s.fail("delete task", err, "id", id)
	}
	if deleted {
		s.search.Remove(search.KindTask, id)
	}
	return deleted, nil
}

// Tags returns the tags attached to a task.
func (s *TaskService) Tags(ctx context.Context, taskID string) ([]models.Tag, error) {
	tags, err := tagsForTask(ctx, s.db, taskID)
	if err != nil {
		return nil, s.fail("task tags", err, "id", taskID)
	}
	return tags, nil
}

// AddTag attaches a tag by name, creating the tag when it does not exist.
// It reports false when the task does not exist.
func (s *TaskService) AddTag(ctx context.Context, taskID, name string) (bool, error) {
	found := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		ok, err := exists(ctx, q, "tasks", taskID)
		if err != nil || !ok {
			return err
		}
		found = true
		tag, err := tagByName(ctx, q, name)
		if err != nil {
			return err
		}
		if tag == nil {
			if tag, err = insertTag(ctx, q, models.NewTag{Name: name}, s.now()); err != nil {
				return err
			}
		}
		_, err = q.Exec(ctx, `INSERT OR IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)`, taskID, tag.ID)
		return err
	})
	if err != nil {
		return false, s.fail("add task tag", err, "id", taskID, "tag", name)
	}
	return found, nil
}

// RemoveTag detaches a tag by name. It reports whether an association was
// removed.
func (s *TaskService) RemoveTag(ctx context.Context, taskID, name string) (bool, error) {
	n, err := s.db.Exec(ctx, `
		DELETE FROM task_tags
		WHERE task_id = ? AND tag_id IN (SELECT id FROM tags WHERE LOWER(name) = LOWER(?))
	`, taskID, strings.TrimSpace(name))
	if err != nil {
		return false, s.fail("remove task tag", err, "id", taskID, "tag", name)
	}
	return n > 0, nil
}

// Search runs a prefix full-text search over titles and descriptions and
// returns tasks best match first.
func (s *TaskService) Search(ctx context.Context, text string, limit int) ([]models.Task, error) {
	ids, err := s.search.Search(ctx, search.Query{Kind: search.KindTask, Text: text, Limit: limit})
	if err != nil {
		return nil, s.fail("search tasks", err, "query", text)
	}
	tasks := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		t, err := getTask(ctx, s.db, id)
		if err != nil {
			return nil, s.fail("search tasks", err, "query", text)
		}
		// The mirror can lag behind deletes.
		if t != nil {
			tasks = append(tasks, *t)
		}
	}
	return tasks, nil
}
