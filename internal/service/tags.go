package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

// TagService manages the global tag vocabulary.
type TagService struct {
	base
}

const tagColumns = `id, name, COALESCE(color, ''), created_at`

func scanTag(r rowScanner) (*models.Tag, error) {
	var t models.Tag
	if err := r.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns all tags ordered by name.
func (s *TagService) List(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY name`)
	if err != nil {
		return nil, s.fail("list tags", err)
	}
	tags, err := scanAll(rows, scanTag)
	if err != nil {
		return nil, s.fail("list tags", err)
	}
	return tags, nil
}

// Get retrieves a tag by ID, nil when absent.
func (s *TagService) Get(ctx context.Context, id string) (*models.Tag, error) {
	t, err := queryOne(s.db.QueryRow(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id), scanTag)
	if err != nil {
		return nil, s.fail("get tag", err, "id", id)
	}
	return t, nil
}

// GetByName retrieves a tag by its name (case-insensitive), nil when absent.
func (s *TagService) GetByName(ctx context.Context, name string) (*models.Tag, error) {
	t, err := tagByName(ctx, s.db, name)
	if err != nil {
		return nil, s.fail("get tag by name", err, "name", name)
	}
	return t, nil
}

func tagByName(ctx context.Context, q db.Querier, name string) (*models.Tag, error) {
	return queryOne(q.QueryRow(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE LOWER(name) = LOWER(?)`, strings.TrimSpace(name)), scanTag)
}

// insertTag creates a tag inside q, rejecting names that already exist in
// any letter case.
func insertTag(ctx context.Context, q db.Querier, in models.NewTag, now int64) (*models.Tag, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.Invalid("name", "must not be empty")
	}
	existing, err := tagByName(ctx, q, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Duplicate("tag", "name", name)
	}
	t := &models.Tag{ID: newID(), Name: name, Color: in.Color, CreatedAt: now}
	_, err = q.Exec(ctx, `INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, nullable(&t.Color), t.CreatedAt)
	if err != nil {
		return nil, apperrors.FromConstraint(err)
	}
	return t, nil
}

// Create creates a new tag
func (s *TagService) Create(ctx context.Context, in models.NewTag) (*models.Tag, error) {
	t, err := insertTag(ctx, s.db, in, s.now())
	if err != nil {
		return nil, s.fail("create tag", err, "name", in.Name)
	}
	return t, nil
}

// Update renames or recolors a tag. It reports false when absent.
func (s *TagService) Update(ctx context.Context, id string, patch models.TagPatch) (bool, error) {
	found := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		t, err := queryOne(q.QueryRow(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id), scanTag)
		if err != nil || t == nil {
			return err
		}
		found = true
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return apperrors.Invalid("name", "must not be empty")
			}
			other, err := tagByName(ctx, q, name)
			if err != nil {
				return err
			}
			if other != nil && other.ID != id {
				return apperrors.Duplicate("tag", "name", name)
			}
			t.Name = name
		}
		if patch.Color != nil {
			t.Color = *patch.Color
		}
		_, err = q.Exec(ctx, `UPDATE tags SET name = ?, color = ? WHERE id = ?`, t.Name, nullable(&t.Color), id)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return false, s.fail("update tag", err, "id", id)
	}
	return found, nil
}

// Delete removes a tag and its task and development task associations.
func (s *TagService) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM task_tags WHERE tag_id = ?`, id); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `DELETE FROM development_tags WHERE tag_id = ?`, id); err != nil {
			return err
		}
		n, err := q.Exec(ctx, `DELETE FROM tags WHERE id = ?`, id)
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, s.fail("delete tag", err, "id", id)
	}
	return deleted, nil
}

// tagsForTask loads the tags attached to a task.
func tagsForTask(ctx context.Context, q db.Querier, taskID string) ([]models.Tag, error) {
	rows, err := q.Query(ctx, `
		SELECT t.id, t.name, COALESCE(t.color, ''), t.created_at
		FROM tags t
		JOIN task_tags tt ON t.id = tt.tag_id
		WHERE tt.task_id = ?
		ORDER BY t.name
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load tags for task %s: %w", taskID, err)
	}
	return scanAll(rows, scanTag)
}

// setTaskTags replaces the tag set of a task.
func setTaskTags(ctx context.Context, q db.Querier, taskID string, tagIDs []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM task_tags WHERE task_id = ?`, taskID); err != nil {
		return err
	}
	seen := make(map[string]bool, len(tagIDs))
	for _, tagID := range tagIDs {
		if seen[tagID] {
			continue
		}
		seen[tagID] = true
		ok, err := exists(ctx, q, "tags", tagID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Invalid("tags", fmt.Sprintf("tag %q does not exist", tagID))
		}
		if _, err := q.Exec(ctx, `INSERT INTO task_tags (task_id, tag_id) VALUES (?, ?)`, taskID, tagID); err != nil {
			return err
		}
	}
	return nil
}
