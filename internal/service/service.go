// Package service holds the record services: each maps DTOs onto
// parameterized SQL against the storage handle, validates input and keeps
// related rows consistent inside transactions.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tgienger/devdesk/internal/db"
	"github.com/tgienger/devdesk/internal/search"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	DB         *db.DB
	Search     *search.Service // nil uses FTS only
	Logger     *slog.Logger
	BcryptCost int              // 0 uses bcrypt.DefaultCost
	Clock      func() time.Time // nil uses time.Now
}

// Services bundles every record service over one storage handle.
type Services struct {
	Users         *UserService
	Teams         *TeamService
	Tasks         *TaskService
	Tags          *TagService
	Comments      *CommentService
	Development   *DevelopmentService
	Documents     *DocumentService
	Notifications *NotificationService
	Snippets      *SnippetService
	Screenshots   *ScreenshotService
	Settings      *SettingsService
	Search        *search.Service
}

// New constructs all services.
func New(deps Deps) *Services {
	b := newBase(deps)
	return &Services{
		Users:         &UserService{base: b},
		Teams:         &TeamService{base: b},
		Tasks:         &TaskService{base: b},
		Tags:          &TagService{base: b},
		Comments:      &CommentService{base: b},
		Development:   &DevelopmentService{base: b},
		Documents:     &DocumentService{base: b},
		Notifications: &NotificationService{base: b},
		Snippets:      &SnippetService{base: b},
		Screenshots:   &ScreenshotService{base: b},
		Settings:      &SettingsService{base: b},
		Search:        b.search,
	}
}

type base struct {
	db     *db.DB
	search *search.Service
	logger *slog.Logger
	clock  func() time.Time
	cost   int
}

func newBase(deps Deps) base {
	b := base{
		db:     deps.DB,
		search: deps.Search,
		logger: deps.Logger,
		clock:  deps.Clock,
		cost:   deps.BcryptCost,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	if b.cost == 0 {
		b.cost = bcrypt.DefaultCost
	}
	if b.search == nil {
		b.search = search.NewService(search.NewFTS(deps.DB), nil, b.logger)
	}
	return b
}

func (b base) now() int64 {
	return b.clock().Unix()
}

// fail logs a failed operation once and returns err unchanged.
func (b base) fail(op string, err error, attrs ...any) error {
	b.logger.Error(op+" failed", append(attrs, "error", err)...)
	return err
}

func newID() string {
	return uuid.NewString()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAll drains rows through scan.
func scanAll[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer func() { _ = rows.Close() }()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// queryOne returns nil, nil when the row is absent.
func queryOne[T any](row *sql.Row, scan func(rowScanner) (*T, error)) (*T, error) {
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func exists(ctx context.Context, q db.Querier, table, id string) (bool, error) {
	var n int
	err := q.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", table), id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", table, id, err)
	}
	return n > 0, nil
}

func count(ctx context.Context, q db.Querier, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// nullable maps a nil or empty optional string to NULL.
func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// nullableInt maps a nil or zero optional timestamp to NULL.
func nullableInt(v *int64) any {
	if v == nil || *v == 0 {
		return nil
	}
	return *v
}

// cleared normalizes a patched optional reference: empty means unset.
func cleared(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func clearedInt(v *int64) *int64 {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

// fromNull converts a scanned NullString back to an optional string.
func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func fromNullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
