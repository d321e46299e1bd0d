package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

// DevelopmentService manages the development planner: ordered phases
// holding ordered checklist tasks.
type DevelopmentService struct {
	base
}

// Errors that abort a reorder transaction.
var (
	errUnknownID    = errors.New("unknown id in reorder")
	errPartialOrder = errors.New("reorder must list every row once")
)

const phaseSelect = `
	SELECT p.id, p.title, COALESCE(p.description, ''), COALESCE(p.icon, ''), COALESCE(p.color, ''),
		p.order_index, p.created_at, p.updated_at, p.metadata,
		(SELECT COUNT(*) FROM development_tasks t WHERE t.phase_id = p.id),
		(SELECT COUNT(*) FROM development_tasks t WHERE t.phase_id = p.id AND t.is_completed = 1)
	FROM development_phases p`

func scanPhase(r rowScanner) (*models.DevelopmentPhase, error) {
	var p models.DevelopmentPhase
	if err := r.Scan(&p.ID, &p.Title, &p.Description, &p.Icon, &p.Color, &p.OrderIndex,
		&p.CreatedAt, &p.UpdatedAt, &p.Metadata, &p.TasksCount, &p.CompletedCount); err != nil {
		return nil, err
	}
	p.CompletionPercentage = completion(p.CompletedCount, p.TasksCount)
	return &p, nil
}

// completion is the rounded percentage of done out of total, 0 when empty.
func completion(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// ListPhases returns every phase in order with derived progress.
func (s *DevelopmentService) ListPhases(ctx context.Context) ([]models.DevelopmentPhase, error) {
	rows, err := s.db.Query(ctx, phaseSelect+` ORDER BY p.order_index, p.created_at`)
	if err != nil {
		return nil, s.fail("list phases", err)
	}
	phases, err := scanAll(rows, scanPhase)
	if err != nil {
		return nil, s.fail("list phases", err)
	}
	return phases, nil
}

func (s *DevelopmentService) GetPhase(ctx context.Context, id string) (*models.DevelopmentPhase, error) {
	p, err := getPhase(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get phase", err, "id", id)
	}
	return p, nil
}

func getPhase(ctx context.Context, q db.Querier, id string) (*models.DevelopmentPhase, error) {
	return queryOne(q.QueryRow(ctx, phaseSelect+` WHERE p.id = ?`, id), scanPhase)
}

// nextOrder returns one past the highest order_index in table, optionally
// scoped to a phase.
func nextOrder(ctx context.Context, q db.Querier, table, phaseID string) (int, error) {
	query := `SELECT COALESCE(MAX(order_index) + 1, 0) FROM ` + table
	var args []any
	if phaseID != "" {
		query += ` WHERE phase_id = ?`
		args = append(args, phaseID)
	}
	return count(ctx, q, query, args...)
}

// CreatePhase appends a phase unless an explicit order is given.
func (s *DevelopmentService) CreatePhase(ctx context.Context, in models.NewPhase) (*models.DevelopmentPhase, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperrors.Invalid("title", "must not be empty")
	}
	id := newID()
	now := s.now()
	var created *models.DevelopmentPhase
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		order := 0
		if in.OrderIndex != nil {
			order = *in.OrderIndex
		} else {
			var err error
			if order, err = nextOrder(ctx, q, "development_phases", ""); err != nil {
				return err
			}
		}
		_, err := q.Exec(ctx, `
			INSERT INTO development_phases (id, title, description, icon, color, order_index, created_at, updated_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.Title, in.Description, in.Icon, in.Color, order, now, now, in.Metadata)
		if err != nil {
			return apperrors.FromConstraint(err)
		}
		created, err = getPhase(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, s.fail("create phase", err, "title", in.Title)
	}
	return created, nil
}

func (s *DevelopmentService) UpdatePhase(ctx context.Context, id string, patch models.PhasePatch) (bool, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return false, apperrors.Invalid("title", "must not be empty")
	}
	found := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		p, err := getPhase(ctx, q, id)
		if err != nil || p == nil {
			return err
		}
		found = true
		if patch.Title != nil {
			p.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Icon != nil {
			p.Icon = *patch.Icon
		}
		if patch.Color != nil {
			p.Color = *patch.Color
		}
		if patch.OrderIndex != nil {
			p.OrderIndex = *patch.OrderIndex
		}
		if patch.Metadata != nil {
			p.Metadata = *patch.Metadata
		}
		_, err = q.Exec(ctx, `
			UPDATE development_phases SET title = ?, description = ?, icon = ?, color = ?, order_index = ?,
				metadata = ?, updated_at = ?
			WHERE id = ?
		`, p.Title, p.Description, p.Icon, p.Color, p.OrderIndex, p.Metadata, s.now(), id)
		return err
	})
	if err != nil {
		return false, s.fail("update phase", err, "id", id)
	}
	return found, nil
}

// DeletePhase removes a phase with its tasks and their tag associations.
func (s *DevelopmentService) DeletePhase(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		for _, stmt := range []string{
			`DELETE FROM development_tags WHERE task_id IN (SELECT id FROM development_tasks WHERE phase_id = ?)`,
			`DELETE FROM development_tasks WHERE phase_id = ?`,
		} {
			if _, err := q.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		n, err := q.Exec(ctx, `DELETE FROM development_phases WHERE id = ?`, id)
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, s.fail("delete phase", err, "id", id)
	}
	return deleted, nil
}

// reorder assigns each id its position in ids. ids must name every row in
// scope exactly once; an unknown, repeated or missing id rolls every
// assignment back and reports false.
func (s *DevelopmentService) reorder(ctx context.Context, op, countStmt, stmt string, ids []string, scope ...any) (bool, error) {
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		total, err := count(ctx, q, countStmt, scope...)
		if err != nil {
			return err
		}
		if total != len(ids) {
			return fmt.Errorf("%w: got %d ids for %d rows", errPartialOrder, len(ids), total)
		}
		seen := make(map[string]struct{}, len(ids))
		now := s.now()
		for i, id := range ids {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("%w: %q", errPartialOrder, id)
			}
			seen[id] = struct{}{}
			n, err := q.Exec(ctx, stmt, append([]any{i, now, id}, scope...)...)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %q", errUnknownID, id)
			}
		}
		return nil
	})
	if errors.Is(err, errUnknownID) || errors.Is(err, errPartialOrder) {
		s.logger.Warn(op+" rejected", "error", err)
		return false, nil
	}
	if err != nil {
		return false, s.fail(op, err)
	}
	return true, nil
}

// ReorderPhases sets order_index of each phase to its position in ids.
func (s *DevelopmentService) ReorderPhases(ctx context.Context, ids []string) (bool, error) {
	return s.reorder(ctx, "reorder phases",
		`SELECT COUNT(*) FROM development_phases`,
		`UPDATE development_phases SET order_index = ?, updated_at = ? WHERE id = ?`, ids)
}

const devTaskColumns = `id, phase_id, title, COALESCE(description, ''), is_completed, order_index,
	due_date, creator_id, assignee_id, created_at, updated_at, metadata`

func scanDevTask(r rowScanner) (*models.DevelopmentTask, error) {
	var (
		t                 models.DevelopmentTask
		due               sql.NullInt64
		creator, assignee sql.NullString
	)
	if err := r.Scan(&t.ID, &t.PhaseID, &t.Title, &t.Description, &t.IsCompleted, &t.OrderIndex,
		&due, &creator, &assignee, &t.CreatedAt, &t.UpdatedAt, &t.Metadata); err != nil {
		return nil, err
	}
	t.DueDate = fromNullInt(due)
	t.CreatorID = fromNull(creator)
	t.AssigneeID = fromNull(assignee)
	return &t, nil
}

func getDevTask(ctx context.Context, q db.Querier, id string) (*models.DevelopmentTask, error) {
	return queryOne(q.QueryRow(ctx, `SELECT `+devTaskColumns+` FROM development_tasks WHERE id = ?`, id), scanDevTask)
}

// ListTasks returns the tasks of a phase in order.
func (s *DevelopmentService) ListTasks(ctx context.Context, phaseID string) ([]models.DevelopmentTask, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+devTaskColumns+` FROM development_tasks WHERE phase_id = ? ORDER BY order_index, created_at
	`, phaseID)
	if err != nil {
		return nil, s.fail("list development tasks", err, "phase", phaseID)
	}
	tasks, err := scanAll(rows, scanDevTask)
	if err != nil {
		return nil, s.fail("list development tasks", err, "phase", phaseID)
	}
	return tasks, nil
}

func (s *DevelopmentService) GetTask(ctx context.Context, id string) (*models.DevelopmentTask, error) {
	t, err := getDevTask(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get development task", err, "id", id)
	}
	return t, nil
}

// CreateTask appends a task to its phase unless an explicit order is given.
func (s *DevelopmentService) CreateTask(ctx context.Context, in models.NewDevelopmentTask) (*models.DevelopmentTask, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperrors.Invalid("title", "must not be empty")
	}
	if in.PhaseID == "" {
		return nil, apperrors.Invalid("phase_id", "must not be empty")
	}
	id := newID()
	now := s.now()
	var created *models.DevelopmentTask
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := requireRef(ctx, q, "development_phases", "phase_id", &in.PhaseID); err != nil {
			return err
		}
		if err := requireRef(ctx, q, "users", "creator_id", in.CreatorID); err != nil {
			return err
		}
		if err := requireRef(ctx, q, "users", "assignee_id", in.AssigneeID); err != nil {
			return err
		}
		order := 0
		if in.OrderIndex != nil {
			order = *in.OrderIndex
		} else {
			var err error
			if order, err = nextOrder(ctx, q, "development_tasks", in.PhaseID); err != nil {
				return err
			}
		}
		_, err := q.Exec(ctx, `
			INSERT INTO development_tasks (id, phase_id, title, description, is_completed, order_index,
				due_date, creator_id, assignee_id, created_at, updated_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.PhaseID, in.Title, in.Description, in.IsCompleted, order, nullableInt(in.DueDate),
			nullable(in.CreatorID), nullable(in.AssigneeID), now, now, in.Metadata)
		if err != nil {
			return apperrors.FromConstraint(err)
		}
		created, err = getDevTask(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, s.fail("create development task", err, "title", in.Title)
	}
	return created, nil
}

// UpdateTask applies patch. Moving a task to another phase requires that
// phase to exist.
func (s *DevelopmentService) UpdateTask(ctx context.Context, id string, patch models.DevelopmentTaskPatch) (bool, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return false, apperrors.Invalid("title", "must not be empty")
	}
	found := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		t, err := getDevTask(ctx, q, id)
		if err != nil || t == nil {
			return err
		}
		found = true
		if patch.PhaseID != nil && *patch.PhaseID != t.PhaseID {
			ok, err := exists(ctx, q, "development_phases", *patch.PhaseID)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.Invalid("phase_id", "phase does not exist")
			}
			t.PhaseID = *patch.PhaseID
		}
		if patch.Title != nil {
			t.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.IsCompleted != nil {
			t.IsCompleted = *patch.IsCompleted
		}
		if patch.OrderIndex != nil {
			t.OrderIndex = *patch.OrderIndex
		}
		if patch.DueDate != nil {
			t.DueDate = clearedInt(patch.DueDate)
		}
		if patch.AssigneeID != nil {
			if err := requireRef(ctx, q, "users", "assignee_id", patch.AssigneeID); err != nil {
				return err
			}
			t.AssigneeID = cleared(patch.AssigneeID)
		}
		if patch.Metadata != nil {
			t.Metadata = *patch.Metadata
		}
		_, err = q.Exec(ctx, `
			UPDATE development_tasks SET phase_id = ?, title = ?, description = ?, is_completed = ?,
				order_index = ?, due_date = ?, assignee_id = ?, metadata = ?, updated_at = ?
			WHERE id = ?
		`, t.PhaseID, t.Title, t.Description, t.IsCompleted, t.OrderIndex, nullableInt(t.DueDate),
			nullable(t.AssigneeID), t.Metadata, s.now(), id)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return false, s.fail("update development task", err, "id", id)
	}
	return found, nil
}

func (s *DevelopmentService) DeleteTask(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM development_tags WHERE task_id = ?`, id); err != nil {
			return err
		}
		n, err := q.Exec(ctx, `DELETE FROM development_tasks WHERE id = ?`, id)
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, s.fail("delete development task", err, "id", id)
	}
	return deleted, nil
}

// ToggleTaskCompletion flips is_completed and returns the updated task,
// nil when absent.
func (s *DevelopmentService) ToggleTaskCompletion(ctx context.Context, id string) (*models.DevelopmentTask, error) {
	var t *models.DevelopmentTask
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		n, err := q.Exec(ctx, `
			UPDATE development_tasks SET is_completed = 1 - is_completed, updated_at = ? WHERE id = ?
		`, s.now(), id)
		if err != nil || n == 0 {
			return err
		}
		t, err = getDevTask(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, s.fail("toggle development task", err, "id", id)
	}
	return t, nil
}

// ReorderTasks sets order_index of each task in a phase to its position in
// ids. Ids outside the phase count as unknown, and ids must cover the
// whole phase.
func (s *DevelopmentService) ReorderTasks(ctx context.Context, phaseID string, ids []string) (bool, error) {
	return s.reorder(ctx, "reorder development tasks",
		`SELECT COUNT(*) FROM development_tasks WHERE phase_id = ?`,
		`UPDATE development_tasks SET order_index = ?, updated_at = ? WHERE id = ? AND phase_id = ?`, ids, phaseID)
}
