package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/tgienger/devdesk/internal/errors"
)

type schemaObject struct {
	Type string
	Name string
	SQL  string
}

func schemaSnapshot(t *testing.T, d *DB) []schemaObject {
	t.Helper()
	rows, err := d.Query(context.Background(),
		`SELECT type, name, COALESCE(sql, '') FROM sqlite_master ORDER BY type, name`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out []schemaObject
	for rows.Next() {
		var o schemaObject
		require.NoError(t, rows.Scan(&o.Type, &o.Name, &o.SQL))
		out = append(out, o)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestMigrateFreshDatabase(t *testing.T) {
	d := NewTestDBUnmigrated(t)
	ctx := context.Background()

	report, err := d.Migrate(ctx, TestBootstrap())
	require.NoError(t, err)
	assert.True(t, report.Fresh)
	assert.True(t, report.SeededAdmin)
	assert.Empty(t, report.AddedColumns)
	assert.Empty(t, report.RebuiltIndexes)

	tables := []string{
		"users", "teams", "team_members", "tasks", "comments", "reactions",
		"documents", "document_versions", "notifications", "tags", "task_tags",
		"development_phases", "development_tasks", "development_tags",
		"code_snippets", "screenshots", "settings", "tasks_fts", "documents_fts",
	}
	for _, table := range tables {
		ok, err := ObjectExists(ctx, d, "table", table)
		require.NoError(t, err)
		assert.True(t, ok, "table %s should exist", table)
	}

	for _, trig := range []string{"tasks_ai", "tasks_ad", "tasks_au", "documents_ai", "documents_ad", "documents_au"} {
		ok, err := ObjectExists(ctx, d, "trigger", trig)
		require.NoError(t, err)
		assert.True(t, ok, "trigger %s should exist", trig)
	}

	var (
		role string
		hash string
	)
	err = d.QueryRow(ctx, "SELECT role, password FROM users WHERE username = 'admin'").Scan(&role, &hash)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
	assert.NotEqual(t, "admin123", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("admin123")))
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := NewTestDBUnmigrated(t)
	ctx := context.Background()

	_, err := d.Migrate(ctx, TestBootstrap())
	require.NoError(t, err)
	first := schemaSnapshot(t, d)

	report, err := d.Migrate(ctx, TestBootstrap())
	require.NoError(t, err)
	second := schemaSnapshot(t, d)

	assert.Equal(t, first, second)
	assert.False(t, report.Fresh)
	assert.False(t, report.SeededAdmin)
	assert.Empty(t, report.AddedColumns)
	assert.Empty(t, report.RebuiltIndexes)

	var users int
	require.NoError(t, d.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&users))
	assert.Equal(t, 1, users)
}

func TestMigrateAddsMissingColumn(t *testing.T) {
	d := NewTestDBUnmigrated(t)
	ctx := context.Background()

	_, err := d.Exec(ctx, `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			full_name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password TEXT,
			avatar_url TEXT,
			role TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER,
			settings TEXT NOT NULL DEFAULT '{}'
		) STRICT`)
	require.NoError(t, err)
	_, err = d.Exec(ctx, `
		INSERT INTO users (id, username, full_name, email, password, avatar_url, role, created_at, updated_at, settings)
		VALUES ('u1', 'sara', 'Sara K', 'sara@example.com', 'hash', 'https://a/b.png', 'developer', 100, 200, '{"theme":"dark"}')`)
	require.NoError(t, err)

	report, err := d.Migrate(ctx, TestBootstrap())
	require.NoError(t, err)
	assert.False(t, report.Fresh)
	assert.False(t, report.SeededAdmin)
	assert.Equal(t, []string{"users.phone_number"}, report.AddedColumns)

	cols, err := TableColumns(ctx, d, "users")
	require.NoError(t, err)
	assert.Contains(t, cols, "phone_number")

	var (
		username, fullName, email, password, avatar, role, settings string
		createdAt, updatedAt                                        int64
		phone                                                       *string
	)
	err = d.QueryRow(ctx, `
		SELECT username, full_name, email, password, avatar_url, role, created_at, updated_at, settings, phone_number
		FROM users WHERE id = 'u1'`).Scan(
		&username, &fullName, &email, &password, &avatar, &role, &createdAt, &updatedAt, &settings, &phone)
	require.NoError(t, err)
	assert.Equal(t, "sara", username)
	assert.Equal(t, "Sara K", fullName)
	assert.Equal(t, "sara@example.com", email)
	assert.Equal(t, "hash", password)
	assert.Equal(t, "https://a/b.png", avatar)
	assert.Equal(t, "developer", role)
	assert.EqualValues(t, 100, createdAt)
	assert.EqualValues(t, 200, updatedAt)
	assert.Equal(t, `{"theme":"dark"}`, settings)
	assert.Nil(t, phone)
}

func ftsMatches(t *testing.T, d *DB, match string) []string {
	t.Helper()
	rows, err := d.Query(context.Background(), `
		SELECT t.id FROM tasks_fts
		JOIN tasks t ON t.rowid = tasks_fts.rowid
		WHERE tasks_fts MATCH ?
		ORDER BY bm25(tasks_fts)`, match)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func insertTask(t *testing.T, d *DB, id, title string) {
	t.Helper()
	ctx := context.Background()
	var admin string
	require.NoError(t, d.QueryRow(ctx, "SELECT id FROM users LIMIT 1").Scan(&admin))
	_, err := d.Exec(ctx, `
		INSERT INTO tasks (id, title, description, type, priority, status, creator_id, created_at, updated_at)
		VALUES (?, ?, '', 'feature', 'medium', 'pending', ?, 1, 1)`, id, title, admin)
	require.NoError(t, err)
}

func TestSearchIndexFollowsBaseTable(t *testing.T) {
	d := NewTestDB(t)
	ctx := context.Background()

	insertTask(t, d, "t1", "بهینه‌سازی عملکرد")
	assert.Equal(t, []string{"t1"}, ftsMatches(t, d, `"بهینه"*`))

	_, err := d.Exec(ctx, "UPDATE tasks SET title = 'refactor cache' WHERE id = 't1'")
	require.NoError(t, err)
	assert.Empty(t, ftsMatches(t, d, `"بهینه"*`))
	assert.Equal(t, []string{"t1"}, ftsMatches(t, d, `"cach"*`))

	_, err = d.Exec(ctx, "DELETE FROM tasks WHERE id = 't1'")
	require.NoError(t, err)
	assert.Empty(t, ftsMatches(t, d, `"cach"*`))
}

func TestMigrateRebuildsMissingSearchIndex(t *testing.T) {
	d := NewTestDB(t)
	ctx := context.Background()

	insertTask(t, d, "t1", "migrate legacy rows")
	for _, stmt := range []string{
		"DROP TRIGGER tasks_ai", "DROP TRIGGER tasks_ad", "DROP TRIGGER tasks_au", "DROP TABLE tasks_fts",
	} {
		_, err := d.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	report, err := d.Migrate(ctx, TestBootstrap())
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks_fts"}, report.RebuiltIndexes)
	assert.Equal(t, []string{"t1"}, ftsMatches(t, d, `"legac"*`))
}

func TestMigrateFailureRollsBack(t *testing.T) {
	d := NewTestDBUnmigrated(t)
	ctx := context.Background()

	// A tasks table without a status column breaks idx_tasks_status.
	_, err := d.Exec(ctx, `CREATE TABLE tasks (id TEXT PRIMARY KEY, title TEXT NOT NULL)`)
	require.NoError(t, err)

	_, err = d.Migrate(ctx, TestBootstrap())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSetupFailed)

	ok, err := ObjectExists(ctx, d, "table", "users")
	require.NoError(t, err)
	assert.False(t, ok, "users table must not survive a failed migration")
}
