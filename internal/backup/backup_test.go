package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/devdesk/internal/db"
)

type fakeUploader struct {
	names []string
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, path, name string) error {
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	f.names = append(f.names, name)
	return nil
}

func steppingClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newManager(t *testing.T, keep int, up Uploader) *Manager {
	t.Helper()
	return NewManager(db.NewTestDB(t), Options{
		Dir:      filepath.Join(t.TempDir(), "backups"),
		Keep:     keep,
		Uploader: up,
		Logger:   db.DiscardLogger(),
		Clock:    steppingClock(),
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, 5, nil)

	info, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "devdesk-20260301-120100.000.db", info.Name)
	assert.Positive(t, info.Size)
	assert.False(t, info.Uploaded)

	snap, err := db.Open(ctx, db.Options{Path: info.Path, Logger: db.DiscardLogger()})
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()
	var users int
	require.NoError(t, snap.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&users))
	assert.Equal(t, 1, users, "seeded admin is in the copy")
}

func TestCreateSameSecond(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, 5, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.clock = func() time.Time { return fixed }

	a, err := m.Create(ctx)
	require.NoError(t, err)
	b, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.Name, b.Name)
}

func TestListAndPrune(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, 2, nil)

	for range 4 {
		_, err := m.Create(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), []byte("x"), 0o600))

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "devdesk-20260301-120400.000.db", list[0].Name, "newest first")
	assert.Equal(t, "devdesk-20260301-120300.000.db", list[1].Name)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 4, 0, 0, time.UTC), list[0].CreatedAt)

	removed, err := m.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"devdesk-20260301-120300.000.db"}, removed)

	_, err = m.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestListMissingDir(t *testing.T) {
	m := newManager(t, 1, nil)
	list, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateUploads(t *testing.T) {
	up := &fakeUploader{}
	m := newManager(t, 3, up)

	info, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Uploaded)
	assert.Equal(t, []string{info.Name}, up.names)
}

func TestCreateUploadFailureKeepsLocalCopy(t *testing.T) {
	up := &fakeUploader{err: errors.New("bucket unreachable")}
	m := newManager(t, 3, up)

	info, err := m.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
	assert.False(t, info.Uploaded)
	assert.FileExists(t, info.Path)
}

func TestS3UploaderObjectName(t *testing.T) {
	_, err := NewS3Uploader(S3Options{Endpoint: "localhost:9000"})
	require.Error(t, err, "bucket is required")

	u, err := NewS3Uploader(S3Options{Endpoint: "localhost:9000", Bucket: "devdesk", Prefix: "laptop"})
	require.NoError(t, err)
	assert.Equal(t, "laptop/devdesk-1.db", u.ObjectName("devdesk-1.db"))

	u.prefix = ""
	assert.Equal(t, "devdesk-1.db", u.ObjectName("devdesk-1.db"))
}

func TestScheduler(t *testing.T) {
	m := newManager(t, 1, nil)

	_, err := NewScheduler(m, "not a schedule", db.DiscardLogger())
	require.Error(t, err)

	s, err := NewScheduler(m, "0 3 * * *", db.DiscardLogger())
	require.NoError(t, err)
	s.Start()
	next := s.Next()
	assert.False(t, next.IsZero())
	assert.Equal(t, 3, next.Hour())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
