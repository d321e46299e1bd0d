package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

// SnippetService manages stored code snippets.
type SnippetService struct {
	base
}

const snippetColumns = `id, title, COALESCE(description, ''), code, language, created_at, updated_at, task_id, metadata`

func scanSnippet(r rowScanner) (*models.CodeSnippet, error) {
	var (
		c    models.CodeSnippet
		task sql.NullString
	)
	if err := r.Scan(&c.ID, &c.Title, &c.Description, &c.Code, &c.Language, &c.CreatedAt, &c.UpdatedAt, &task, &c.Metadata); err != nil {
		return nil, err
	}
	c.TaskID = fromNull(task)
	return &c, nil
}

func getSnippet(ctx context.Context, q db.Querier, id string) (*models.CodeSnippet, error) {
	return queryOne(q.QueryRow(ctx, `SELECT `+snippetColumns+` FROM code_snippets WHERE id = ?`, id), scanSnippet)
}

// List returns snippets, newest first. A non-empty taskID limits the
// result to that task.
func (s *SnippetService) List(ctx context.Context, taskID string) ([]models.CodeSnippet, error) {
	query := `SELECT ` + snippetColumns + ` FROM code_snippets`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	rows, err := s.db.Query(ctx, query+` ORDER BY created_at DESC, rowid DESC`, args...)
	if err != nil {
		return nil, s.fail("list snippets", err)
	}
	out, err := scanAll(rows, scanSnippet)
	if err != nil {
		return nil, s.fail("list snippets", err)
	}
	return out, nil
}

func (s *SnippetService) Get(ctx context.Context, id string) (*models.CodeSnippet, error) {
	c, err := getSnippet(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get snippet", err, "id", id)
	}
	return c, nil
}

func (s *SnippetService) Create(ctx context.Context, in models.NewCodeSnippet) (*models.CodeSnippet, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Language = strings.TrimSpace(in.Language)
	switch {
	case in.Title == "":
		return nil, apperrors.Invalid("title", "must not be empty")
	case in.Code == "":
		return nil, apperrors.Invalid("code", "must not be empty")
	case in.Language == "":
		return nil, apperrors.Invalid("language", "must not be empty")
	}
	now := s.now()
	c := &models.CodeSnippet{
		ID:          newID(),
		Title:       in.Title,
		Description: in.Description,
		Code:        in.Code,
		Language:    in.Language,
		CreatedAt:   now,
		UpdatedAt:   now,
		TaskID:      cleared(in.TaskID),
		Metadata:    in.Metadata,
	}
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := requireRef(ctx, q, "tasks", "task_id", c.TaskID); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO code_snippets (id, title, description, code, language, created_at, updated_at, task_id, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.Title, c.Description, c.Code, c.Language, c.CreatedAt, c.UpdatedAt, nullable(c.TaskID), c.Metadata)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return nil, s.fail("create snippet", err, "title", in.Title)
	}
	return c, nil
}

func (s *SnippetService) Update(ctx context.Context, id string, patch models.CodeSnippetPatch) (bool, error) {
	found := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		c, err := getSnippet(ctx, q, id)
		if err != nil || c == nil {
			return err
		}
		found = true
		if patch.Title != nil {
			if strings.TrimSpace(*patch.Title) == "" {
				return apperrors.Invalid("title", "must not be empty")
			}
			c.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			c.Description = *patch.Description
		}
		if patch.Code != nil {
			c.Code = *patch.Code
		}
		if patch.Language != nil {
			c.Language = *patch.Language
		}
		if patch.TaskID != nil {
			if err := requireRef(ctx, q, "tasks", "task_id", patch.TaskID); err != nil {
				return err
			}
			c.TaskID = cleared(patch.TaskID)
		}
		if patch.Metadata != nil {
			c.Metadata = *patch.Metadata
		}
		_, err = q.Exec(ctx, `
			UPDATE code_snippets SET title = ?, description = ?, code = ?, language = ?, task_id = ?,
				metadata = ?, updated_at = ?
			WHERE id = ?
		`, c.Title, c.Description, c.Code, c.Language, nullable(c.TaskID), c.Metadata, s.now(), id)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return false, s.fail("update snippet", err, "id", id)
	}
	return found, nil
}

func (s *SnippetService) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.db.Exec(ctx, `DELETE FROM code_snippets WHERE id = ?`, id)
	if err != nil {
		return false, s.fail("delete snippet", err, "id", id)
	}
	return n > 0, nil
}
