package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

// UserService manages accounts.
type UserService struct {
	base
}

const userColumns = `id, username, full_name, email, password, phone_number, avatar_url, role, created_at, updated_at, settings`

func scanUser(r rowScanner) (*models.User, error) {
	var (
		u                       models.User
		password, phone, avatar sql.NullString
		updatedAt               sql.NullInt64
	)
	if err := r.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &password, &phone, &avatar,
		&u.Role, &u.CreatedAt, &updatedAt, &u.Settings); err != nil {
		return nil, err
	}
	u.PasswordHash = fromNull(password)
	u.PhoneNumber = fromNull(phone)
	u.AvatarURL = fromNull(avatar)
	u.UpdatedAt = fromNullInt(updatedAt)
	return &u, nil
}

// List returns users, newest first.
func (s *UserService) List(ctx context.Context, f models.UserFilter) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if f.Role != "" {
		query += ` WHERE role = ?`
		args = append(args, f.Role)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, s.fail("list users", err)
	}
	users, err := scanAll(rows, scanUser)
	if err != nil {
		return nil, s.fail("list users", err)
	}
	return users, nil
}

// Get returns the user or nil when absent.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.get(ctx, s.db, id)
}

func (s *UserService) get(ctx context.Context, q db.Querier, id string) (*models.User, error) {
	u, err := queryOne(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id), scanUser)
	if err != nil {
		return nil, s.fail("get user", err, "id", id)
	}
	return u, nil
}

// GetByUsername returns the user or nil when absent.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := queryOne(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username), scanUser)
	if err != nil {
		return nil, s.fail("get user by username", err, "username", username)
	}
	return u, nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperrors.Invalid("email", fmt.Sprintf("%q is not an email address", email))
	}
	return nil
}

// checkUnique fails with a DUPLICATE error naming field when another user
// (other than exceptID) already holds value, ignoring case.
func checkUnique(ctx context.Context, q db.Querier, field, value, exceptID string) error {
	n, err := count(ctx, q, fmt.Sprintf(`SELECT COUNT(*) FROM users WHERE LOWER(%s) = LOWER(?) AND id <> ?`, field), value, exceptID)
	if err != nil {
		return fmt.Errorf("check %s uniqueness: %w", field, err)
	}
	if n > 0 {
		return apperrors.Duplicate("user", field, value)
	}
	return nil
}

func (s *UserService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Create registers a user. An empty password creates an account that
// cannot authenticate locally.
func (s *UserService) Create(ctx context.Context, in models.NewUser) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = models.RoleDeveloper
	}

	switch {
	case in.Username == "":
		return nil, apperrors.Invalid("username", "must not be empty")
	case in.FullName == "":
		return nil, apperrors.Invalid("full_name", "must not be empty")
	case !in.Role.Valid():
		return nil, apperrors.Invalid("role", fmt.Sprintf("unknown role %q", in.Role))
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if in.Settings == nil {
		in.Settings = models.Metadata{}
	}

	var hash any
	if in.Password != "" {
		h, err := s.hash(in.Password)
		if err != nil {
			return nil, s.fail("create user", err)
		}
		hash = h
	}

	id := newID()
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := checkUnique(ctx, q, "username", in.Username, ""); err != nil {
			return err
		}
		if err := checkUnique(ctx, q, "email", in.Email, ""); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO users (id, username, full_name, email, password, phone_number, avatar_url, role, created_at, settings)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.Username, in.FullName, in.Email, hash, nullable(in.PhoneNumber), nullable(in.AvatarURL),
			in.Role, s.now(), in.Settings)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return nil, s.fail("create user", err, "username", in.Username)
	}
	return s.Get(ctx, id)
}

// Update applies patch and returns the updated user. A missing id is a
// NOT_FOUND error.
func (s *UserService) Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	var hash *string
	if patch.Password != nil {
		if *patch.Password == "" {
			return nil, apperrors.Invalid("password", "must not be empty")
		}
		h, err := s.hash(*patch.Password)
		if err != nil {
			return nil, s.fail("update user", err, "id", id)
		}
		hash = &h
	}

	err := s.db.Transaction(ctx, func(q db.Querier) error {
		u, err := s.get(ctx, q, id)
		if err != nil {
			return err
		}
		if u == nil {
			return apperrors.NotFound("user", id)
		}

		if patch.Username != nil && *patch.Username != u.Username {
			name := strings.TrimSpace(*patch.Username)
			if name == "" {
				return apperrors.Invalid("username", "must not be empty")
			}
			if err := checkUnique(ctx, q, "username", name, id); err != nil {
				return err
			}
			u.Username = name
		}
		if patch.Email != nil && *patch.Email != u.Email {
			email := strings.TrimSpace(*patch.Email)
			if err := validateEmail(email); err != nil {
				return err
			}
			if err := checkUnique(ctx, q, "email", email, id); err != nil {
				return err
			}
			u.Email = email
		}
		if patch.FullName != nil {
			if strings.TrimSpace(*patch.FullName) == "" {
				return apperrors.Invalid("full_name", "must not be empty")
			}
			u.FullName = strings.TrimSpace(*patch.FullName)
		}
		if patch.Role != nil {
			if !patch.Role.Valid() {
				return apperrors.Invalid("role", fmt.Sprintf("unknown role %q", *patch.Role))
			}
			u.Role = *patch.Role
		}
		if patch.PhoneNumber != nil {
			u.PhoneNumber = patch.PhoneNumber
		}
		if patch.AvatarURL != nil {
			u.AvatarURL = patch.AvatarURL
		}
		if patch.Settings != nil {
			u.Settings = *patch.Settings
			if u.Settings == nil {
				u.Settings = models.Metadata{}
			}
		}
		if hash != nil {
			u.PasswordHash = hash
		}

		_, err = q.Exec(ctx, `
			UPDATE users SET username = ?, full_name = ?, email = ?, password = ?, phone_number = ?,
				avatar_url = ?, role = ?, settings = ?, updated_at = ?
			WHERE id = ?
		`, u.Username, u.FullName, u.Email, nullable(u.PasswordHash), nullable(u.PhoneNumber),
			nullable(u.AvatarURL), u.Role, u.Settings, s.now(), id)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return nil, s.fail("update user", err, "id", id)
	}
	return s.Get(ctx, id)
}

// ChangeRole sets the user's role.
func (s *UserService) ChangeRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	return s.Update(ctx, id, models.UserPatch{Role: &role})
}

// ChangePassword replaces the password hash. It reports false when the
// user does not exist.
func (s *UserService) ChangePassword(ctx context.Context, id, password string) (bool, error) {
	if password == "" {
		return false, apperrors.Invalid("password", "must not be empty")
	}
	hash, err := s.hash(password)
	if err != nil {
		return false, s.fail("change password", err, "id", id)
	}
	n, err := s.db.Exec(ctx, `UPDATE users SET password = ?, updated_at = ? WHERE id = ?`, hash, s.now(), id)
	if err != nil {
		return false, s.fail("change password", err, "id", id)
	}
	return n > 0, nil
}

// VerifyPassword reports whether plain matches the stored bcrypt hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Authenticate returns the user when the credentials match, nil otherwise.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	u, err := s.GetByUsername(ctx, username)
	if err != nil || u == nil {
		return nil, err
	}
	if u.PasswordHash == nil || !VerifyPassword(*u.PasswordHash, password) {
		s.logger.Info("authentication failed", "username", username)
		return nil, nil
	}
	return u, nil
}

// Search matches username, full name and email by substring.
func (s *UserService) Search(ctx context.Context, text string) ([]models.User, error) {
	like := "%" + escapeLike(strings.TrimSpace(text)) + "%"
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE username LIKE ? ESCAPE '\' OR full_name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'
		ORDER BY full_name ASC
	`, like, like, like)
	if err != nil {
		return nil, s.fail("search users", err)
	}
	users, err := scanAll(rows, scanUser)
	if err != nil {
		return nil, s.fail("search users", err)
	}
	return users, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Profile returns the user with their teams and task statistics, or nil
// when absent.
func (s *UserService) Profile(ctx context.Context, id string) (*models.UserProfile, error) {
	u, err := s.Get(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	p := &models.UserProfile{User: u, Teams: []models.ProfileTeam{}, TasksByStatus: map[models.Status]int{}}

	rows, err := s.db.Query(ctx, `
		SELECT t.id, t.name, tm.role
		FROM teams t
		JOIN team_members tm ON t.id = tm.team_id
		WHERE tm.user_id = ?
		ORDER BY t.name
	`, id)
	if err != nil {
		return nil, s.fail("user profile", err, "id", id)
	}
	p.Teams, err = scanAll(rows, func(r rowScanner) (*models.ProfileTeam, error) {
		var t models.ProfileTeam
		return &t, r.Scan(&t.ID, &t.Name, &t.Role)
	})
	if err != nil {
		return nil, s.fail("user profile", err, "id", id)
	}

	rows, err = s.db.Query(ctx, `SELECT status, COUNT(*) FROM tasks WHERE assignee_id = ? GROUP BY status`, id)
	if err != nil {
		return nil, s.fail("user profile", err, "id", id)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			st models.Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, s.fail("user profile", err, "id", id)
		}
		p.TasksByStatus[st] = n
		p.AssignedTasks += n
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("user profile", err, "id", id)
	}

	p.CreatedTasks, err = count(ctx, s.db, `SELECT COUNT(*) FROM tasks WHERE creator_id = ?`, id)
	if err != nil {
		return nil, s.fail("user profile", err, "id", id)
	}
	return p, nil
}

// userGuards are references that block deleting a user.
var userGuards = []struct {
	query string
	what  string
}{
	{`SELECT COUNT(*) FROM tasks WHERE assignee_id = ?`, "assigned tasks"},
	{`SELECT COUNT(*) FROM teams WHERE leader_id = ?`, "teams led"},
	{`SELECT COUNT(*) FROM tasks WHERE creator_id = ?`, "created tasks"},
	{`SELECT COUNT(*) FROM documents WHERE author_id = ?`, "authored documents"},
	{`SELECT COUNT(*) FROM document_versions WHERE editor_id = ?`, "document edits"},
	{`SELECT COUNT(*) FROM comments WHERE author_id = ?`, "comments"},
}

// Delete removes a user and their memberships, notifications and
// reactions. It refuses with a BUSINESS_RULE error while the user is
// referenced by tasks, teams they lead or authored content.
func (s *UserService) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		ok, err := exists(ctx, q, "users", id)
		if err != nil || !ok {
			return err
		}
		for _, g := range userGuards {
			n, err := count(ctx, q, g.query, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return apperrors.BusinessRule("cannot delete user",
					fmt.Sprintf("user has %d %s", n, g.what))
			}
		}
		for _, stmt := range []string{
			`DELETE FROM team_members WHERE user_id = ?`,
			`DELETE FROM notifications WHERE recipient_id = ?`,
			`DELETE FROM reactions WHERE user_id = ?`,
			`UPDATE development_tasks SET creator_id = NULL WHERE creator_id = ?`,
			`UPDATE development_tasks SET assignee_id = NULL WHERE assignee_id = ?`,
		} {
			if _, err := q.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		n, err := q.Exec(ctx, `DELETE FROM users WHERE id = ?`, id)
		deleted = n > 0
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrBusinessRule) {
			s.logger.Warn("user delete refused", "id", id, "error", err)
			return false, err
		}
		return false, s.fail("delete user", err, "id", id)
	}
	return deleted, nil
}

// Setting reads a value from the user's settings document by gjson path,
// for example "editor.theme". ok is false when the user or path is absent.
func (s *UserService) Setting(ctx context.Context, id, path string) (value any, ok bool, err error) {
	u, err := s.Get(ctx, id)
	if err != nil || u == nil {
		return nil, false, err
	}
	res := gjson.Get(u.Settings.JSON(), path)
	if !res.Exists() {
		return nil, false, nil
	}
	return res.Value(), true, nil
}
