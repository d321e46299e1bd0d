package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

// CommentService manages task comments and reactions on tasks and comments.
type CommentService struct {
	base
}

const commentColumns = `id, task_id, author_id, content, parent_comment_id, created_at, updated_at, metadata`

func scanComment(r rowScanner) (*models.Comment, error) {
	var (
		c      models.Comment
		parent sql.NullString
	)
	if err := r.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &parent, &c.CreatedAt, &c.UpdatedAt, &c.Metadata); err != nil {
		return nil, err
	}
	c.ParentCommentID = fromNull(parent)
	return &c, nil
}

func getComment(ctx context.Context, q db.Querier, id string) (*models.Comment, error) {
	return queryOne(q.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id), scanComment)
}

// ListForTask returns a task's comments in thread order: each top-level
// comment oldest first, followed by its replies depth first.
func (s *CommentService) ListForTask(ctx context.Context, taskID string) ([]models.Comment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+commentColumns+` FROM comments WHERE task_id = ? ORDER BY created_at, rowid
	`, taskID)
	if err != nil {
		return nil, s.fail("list comments", err, "task", taskID)
	}
	all, err := scanAll(rows, scanComment)
	if err != nil {
		return nil, s.fail("list comments", err, "task", taskID)
	}
	return threaded(all), nil
}

// threaded orders comments so replies follow their parent. Comments whose
// parent is missing are treated as top level.
func threaded(all []models.Comment) []models.Comment {
	ids := make(map[string]bool, len(all))
	for _, c := range all {
		ids[c.ID] = true
	}
	children := make(map[string][]models.Comment)
	var roots []models.Comment
	for _, c := range all {
		if c.ParentCommentID != nil && ids[*c.ParentCommentID] {
			children[*c.ParentCommentID] = append(children[*c.ParentCommentID], c)
			continue
		}
		roots = append(roots, c)
	}

	out := make([]models.Comment, 0, len(all))
	var walk func(cs []models.Comment)
	walk = func(cs []models.Comment) {
		for _, c := range cs {
			out = append(out, c)
			walk(children[c.ID])
		}
	}
	walk(roots)
	return out
}

func (s *CommentService) Get(ctx context.Context, id string) (*models.Comment, error) {
	c, err := getComment(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get comment", err, "id", id)
	}
	return c, nil
}

// Create adds a comment. A reply's parent must belong to the same task.
func (s *CommentService) Create(ctx context.Context, in models.NewComment) (*models.Comment, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, apperrors.Invalid("content", "must not be empty")
	}
	now := s.now()
	c := &models.Comment{
		ID:              newID(),
		TaskID:          in.TaskID,
		AuthorID:        in.AuthorID,
		Content:         in.Content,
		ParentCommentID: cleared(in.ParentCommentID),
		CreatedAt:       now,
		UpdatedAt:       now,
		Metadata:        in.Metadata,
	}
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := requireRef(ctx, q, "tasks", "task_id", &in.TaskID); err != nil {
			return err
		}
		if err := requireRef(ctx, q, "users", "author_id", &in.AuthorID); err != nil {
			return err
		}
		if c.ParentCommentID != nil {
			parent, err := getComment(ctx, q, *c.ParentCommentID)
			if err != nil {
				return err
			}
			if parent == nil || parent.TaskID != in.TaskID {
				return apperrors.Invalid("parent_comment_id",
					fmt.Sprintf("comment %q is not on task %q", *c.ParentCommentID, in.TaskID))
			}
		}
		_, err := q.Exec(ctx, `
			INSERT INTO comments (id, task_id, author_id, content, parent_comment_id, created_at, updated_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.TaskID, c.AuthorID, c.Content, nullable(c.ParentCommentID), c.CreatedAt, c.UpdatedAt, c.Metadata)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return nil, s.fail("create comment", err, "task", in.TaskID)
	}
	return c, nil
}

// Update replaces a comment's content. It reports false when absent.
func (s *CommentService) Update(ctx context.Context, id, content string) (bool, error) {
	if strings.TrimSpace(content) == "" {
		return false, apperrors.Invalid("content", "must not be empty")
	}
	n, err := s.db.Exec(ctx, `UPDATE comments SET content = ?, updated_at = ? WHERE id = ?`, content, s.now(), id)
	if err != nil {
		return false, s.fail("update comment", err, "id", id)
	}
	return n > 0, nil
}

// Delete removes a comment with all replies beneath it and their reactions.
func (s *CommentService) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		rows, err := q.Query(ctx, `
			WITH RECURSIVE thread(id, depth) AS (
				SELECT id, 0 FROM comments WHERE id = ?
				UNION ALL
				SELECT c.id, t.depth + 1 FROM comments c JOIN thread t ON c.parent_comment_id = t.id
			)
			SELECT id FROM thread ORDER BY depth DESC
		`, id)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var cid string
			if err := rows.Scan(&cid); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, cid)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		// Deepest first so no row outlives its parent.
		for _, cid := range ids {
			if _, err := q.Exec(ctx, `DELETE FROM reactions WHERE target_type = 'comment' AND target_id = ?`, cid); err != nil {
				return err
			}
			if _, err := q.Exec(ctx, `DELETE FROM comments WHERE id = ?`, cid); err != nil {
				return err
			}
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, s.fail("delete comment", err, "id", id)
	}
	return deleted, nil
}

func scanReaction(r rowScanner) (*models.Reaction, error) {
	var x models.Reaction
	if err := r.Scan(&x.ID, &x.TargetType, &x.TargetID, &x.UserID, &x.Type, &x.CreatedAt); err != nil {
		return nil, err
	}
	return &x, nil
}

// React records a reaction. The same user may not react twice with the
// same type on one target.
func (s *CommentService) React(ctx context.Context, in models.NewReaction) (*models.Reaction, error) {
	switch {
	case !in.TargetType.Valid():
		return nil, apperrors.Invalid("target_type", fmt.Sprintf("unknown target type %q", in.TargetType))
	case in.TargetID == "":
		return nil, apperrors.Invalid("target_id", "must not be empty")
	case in.UserID == "":
		return nil, apperrors.Invalid("user_id", "must not be empty")
	case strings.TrimSpace(in.Type) == "":
		return nil, apperrors.Invalid("type", "must not be empty")
	}
	x := &models.Reaction{
		ID:         newID(),
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		UserID:     in.UserID,
		Type:       in.Type,
		CreatedAt:  s.now(),
	}
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		table := "tasks"
		if in.TargetType == models.TargetComment {
			table = "comments"
		}
		if err := requireRef(ctx, q, table, "target_id", &in.TargetID); err != nil {
			return err
		}
		if err := requireRef(ctx, q, "users", "user_id", &in.UserID); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO reactions (id, target_type, target_id, user_id, type, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, x.ID, x.TargetType, x.TargetID, x.UserID, x.Type, x.CreatedAt)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return nil, s.fail("react", err, "target", in.TargetID)
	}
	return x, nil
}

// Unreact removes a user's reaction of the given type.
func (s *CommentService) Unreact(ctx context.Context, target models.ReactionTarget, targetID, userID, typ string) (bool, error) {
	n, err := s.db.Exec(ctx, `
		DELETE FROM reactions WHERE target_type = ? AND target_id = ? AND user_id = ? AND type = ?
	`, target, targetID, userID, typ)
	if err != nil {
		return false, s.fail("unreact", err, "target", targetID)
	}
	return n > 0, nil
}

func (s *CommentService) ListReactions(ctx context.Context, target models.ReactionTarget, targetID string) ([]models.Reaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, target_type, target_id, user_id, type, created_at FROM reactions
		WHERE target_type = ? AND target_id = ? ORDER BY created_at, rowid
	`, target, targetID)
	if err != nil {
		return nil, s.fail("list reactions", err, "target", targetID)
	}
	out, err := scanAll(rows, scanReaction)
	if err != nil {
		return nil, s.fail("list reactions", err, "target", targetID)
	}
	return out, nil
}
