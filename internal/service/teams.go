package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

// TeamService manages teams and their membership.
type TeamService struct {
	base
}

const teamColumns = `id, name, COALESCE(description, ''), leader_id, created_at, metadata`

func scanTeam(r rowScanner) (*models.Team, error) {
	var t models.Team
	if err := r.Scan(&t.ID, &t.Name, &t.Description, &t.LeaderID, &t.CreatedAt, &t.Metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanMember(r rowScanner) (*models.TeamMember, error) {
	var m models.TeamMember
	if err := r.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *TeamService) List(ctx context.Context) ([]models.Team, error) {
	rows, err := s.db.Query(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY name`)
	if err != nil {
		return nil, s.fail("list teams", err)
	}
	teams, err := scanAll(rows, scanTeam)
	if err != nil {
		return nil, s.fail("list teams", err)
	}
	return teams, nil
}

// Get retrieves a team by ID, nil when absent.
func (s *TeamService) Get(ctx context.Context, id string) (*models.Team, error) {
	t, err := getTeam(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get team", err, "id", id)
	}
	return t, nil
}

func getTeam(ctx context.Context, q db.Querier, id string) (*models.Team, error) {
	return queryOne(q.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, id), scanTeam)
}

// Create inserts a team. The leader joins as a member with the "leader" role.
func (s *TeamService) Create(ctx context.Context, in models.NewTeam) (*models.Team, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperrors.Invalid("name", "must not be empty")
	}
	if in.LeaderID == "" {
		return nil, apperrors.Invalid("leader_id", "must not be empty")
	}

	t := &models.Team{
		ID:          newID(),
		Name:        in.Name,
		Description: in.Description,
		LeaderID:    in.LeaderID,
		CreatedAt:   s.now(),
		Metadata:    in.Metadata,
	}
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := requireRef(ctx, q, "users", "leader_id", &in.LeaderID); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO teams (id, name, description, leader_id, created_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`, t.ID, t.Name, t.Description, t.LeaderID, t.CreatedAt, t.Metadata)
		if err != nil {
			return apperrors.FromConstraint(err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES (?, ?, 'leader', ?)
		`, t.ID, t.LeaderID, t.CreatedAt)
		return err
	})
	if err != nil {
		return nil, s.fail("create team", err, "name", in.Name)
	}
	return t, nil
}

// Update applies patch. It reports false when the team does not exist.
func (s *TeamService) Update(ctx context.Context, id string, patch models.TeamPatch) (bool, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return false, apperrors.Invalid("name", "must not be empty")
	}
	found := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		t, err := getTeam(ctx, q, id)
		if err != nil || t == nil {
			return err
		}
		found = true
		if patch.Name != nil {
			t.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.LeaderID != nil {
			if err := requireRef(ctx, q, "users", "leader_id", patch.LeaderID); err != nil {
				return err
			}
			if *patch.LeaderID == "" {
				return apperrors.Invalid("leader_id", "must not be empty")
			}
			t.LeaderID = *patch.LeaderID
		}
		if patch.Metadata != nil {
			t.Metadata = *patch.Metadata
		}
		_, err = q.Exec(ctx, `UPDATE teams SET name = ?, description = ?, leader_id = ?, metadata = ? WHERE id = ?`,
			t.Name, t.Description, t.LeaderID, t.Metadata, id)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return false, s.fail("update team", err, "id", id)
	}
	return found, nil
}

// Delete removes a team after its memberships.
func (s *TeamService) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM team_members WHERE team_id = ?`, id); err != nil {
			return err
		}
		n, err := q.Exec(ctx, `DELETE FROM teams WHERE id = ?`, id)
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, s.fail("delete team", err, "id", id)
	}
	return deleted, nil
}

// AddMember adds a user to a team, or changes the role of an existing
// member. Role defaults to "member".
func (s *TeamService) AddMember(ctx context.Context, teamID, userID, role string) (*models.TeamMember, error) {
	if role == "" {
		role = "member"
	}
	m := &models.TeamMember{TeamID: teamID, UserID: userID, Role: role, JoinedAt: s.now()}
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		ok, err := exists(ctx, q, "teams", teamID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NotFound("team", teamID)
		}
		if err := requireRef(ctx, q, "users", "user_id", &userID); err != nil {
			return err
		}
		var joined int64
		err = q.QueryRow(ctx, `SELECT joined_at FROM team_members WHERE team_id = ? AND user_id = ?`,
			teamID, userID).Scan(&joined)
		switch {
		case err == nil:
			m.JoinedAt = joined
			_, err = q.Exec(ctx, `UPDATE team_members SET role = ? WHERE team_id = ? AND user_id = ?`,
				role, teamID, userID)
			return err
		case errors.Is(err, sql.ErrNoRows):
			_, err = q.Exec(ctx, `INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
				teamID, userID, role, m.JoinedAt)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return nil, s.fail("add team member", err, "team", teamID, "user", userID)
	}
	return m, nil
}

// RemoveMember reports whether the user was a member. The leader cannot be
// removed while they lead the team.
func (s *TeamService) RemoveMember(ctx context.Context, teamID, userID string) (bool, error) {
	removed := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		t, err := getTeam(ctx, q, teamID)
		if err != nil || t == nil {
			return err
		}
		if t.LeaderID == userID {
			return apperrors.BusinessRule("cannot remove member", "user leads the team")
		}
		n, err := q.Exec(ctx, `DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
		removed = n > 0
		return err
	})
	if err != nil {
		return false, s.fail("remove team member", err, "team", teamID, "user", userID)
	}
	return removed, nil
}

func (s *TeamService) ListMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	rows, err := s.db.Query(ctx, `
		SELECT team_id, user_id, role, joined_at FROM team_members
		WHERE team_id = ? ORDER BY joined_at, user_id
	`, teamID)
	if err != nil {
		return nil, s.fail("list team members", err, "team", teamID)
	}
	members, err := scanAll(rows, scanMember)
	if err != nil {
		return nil, s.fail("list team members", err, "team", teamID)
	}
	return members, nil
}
