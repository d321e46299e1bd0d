package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/devdesk/internal/db"
)

func TestBuildMatch(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "blank", in: "   \t", want: ""},
		{name: "single", in: "cache", want: `"cache"*`},
		{name: "multiple", in: "fix  cache", want: `"fix"* "cache"*`},
		{name: "operators are literal", in: "a OR b", want: `"a"* "OR"* "b"*`},
		{name: "quotes escaped", in: `say "hi"`, want: `"say"* """hi"""*`},
		{name: "persian", in: "بهینه", want: `"بهینه"*`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildMatch(tt.in))
		})
	}
}

func seedTasks(t *testing.T, d *db.DB, titles map[string]string) {
	t.Helper()
	ctx := context.Background()
	var admin string
	require.NoError(t, d.QueryRow(ctx, "SELECT id FROM users LIMIT 1").Scan(&admin))
	for id, title := range titles {
		_, err := d.Exec(ctx, `
			INSERT INTO tasks (id, title, description, type, priority, status, creator_id, created_at, updated_at)
			VALUES (?, ?, '', 'feature', 'medium', 'pending', ?, 1, 1)`, id, title, admin)
		require.NoError(t, err)
	}
}

func TestFTSSearch(t *testing.T) {
	d := db.NewTestDB(t)
	seedTasks(t, d, map[string]string{
		"t1": "بهینه‌سازی عملکرد",
		"t2": "optimize query planner",
		"t3": "query cache",
	})
	fts := NewFTS(d)
	ctx := context.Background()

	ids, err := fts.Search(ctx, Query{Kind: KindTask, Text: "بهینه"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids)

	ids, err = fts.Search(ctx, Query{Kind: KindTask, Text: "quer"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t2", "t3"}, ids)

	ids, err = fts.Search(ctx, Query{Kind: KindTask, Text: "quer cach"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3"}, ids)

	ids, err = fts.Search(ctx, Query{Kind: KindTask, Text: "  "})
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = fts.Search(ctx, Query{Kind: KindTask, Text: "query", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	_, err = fts.Search(ctx, Query{Kind: "comment", Text: "x"})
	assert.Error(t, err)
}

func TestFTSRecords(t *testing.T) {
	d := db.NewTestDB(t)
	seedTasks(t, d, map[string]string{"t1": "one"})

	recs, err := NewFTS(d).Records(context.Background(), KindTask)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, Record{Kind: KindTask, ID: "t1", Title: "one", Body: ""}, recs[0])
}

type fakeMirror struct {
	mu        sync.Mutex
	healthy   bool
	searchIDs []string
	searchErr error
	indexed   []Record
	deleted   []string
}

func (f *fakeMirror) Healthy() bool { return f.healthy }

func (f *fakeMirror) Search(context.Context, Query) ([]string, error) {
	return f.searchIDs, f.searchErr
}

func (f *fakeMirror) Index(_ context.Context, recs ...Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, recs...)
	return nil
}

func (f *fakeMirror) Delete(_ context.Context, _ Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func TestServiceSearchFallback(t *testing.T) {
	d := db.NewTestDB(t)
	seedTasks(t, d, map[string]string{"t1": "release notes"})
	ctx := context.Background()
	q := Query{Kind: KindTask, Text: "relea"}

	tests := []struct {
		name   string
		mirror *fakeMirror
		want   []string
	}{
		{name: "no mirror", mirror: nil, want: []string{"t1"}},
		{name: "healthy mirror", mirror: &fakeMirror{healthy: true, searchIDs: []string{"m1"}}, want: []string{"m1"}},
		{name: "unhealthy mirror", mirror: &fakeMirror{healthy: false, searchIDs: []string{"m1"}}, want: []string{"t1"}},
		{name: "mirror error", mirror: &fakeMirror{healthy: true, searchErr: errors.New("down")}, want: []string{"t1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Mirror
			if tt.mirror != nil {
				m = tt.mirror
			}
			svc := NewService(NewFTS(d), m, db.DiscardLogger())
			ids, err := svc.Search(ctx, q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestServiceMirrorWrites(t *testing.T) {
	d := db.NewTestDB(t)
	seedTasks(t, d, map[string]string{"t1": "a", "t2": "b"})
	m := &fakeMirror{healthy: true}
	svc := NewService(NewFTS(d), m, db.DiscardLogger())

	svc.Index(Record{Kind: KindTask, ID: "x", Title: "x"})
	svc.Remove(KindTask, "y")
	svc.Wait()

	m.mu.Lock()
	assert.Equal(t, []Record{{Kind: KindTask, ID: "x", Title: "x"}}, m.indexed)
	assert.Equal(t, []string{"y"}, m.deleted)
	m.indexed = nil
	m.mu.Unlock()

	n, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, m.indexed, 2)
}

func TestServiceSkipsUnhealthyMirrorWrites(t *testing.T) {
	d := db.NewTestDB(t)
	m := &fakeMirror{healthy: false}
	svc := NewService(NewFTS(d), m, db.DiscardLogger())

	svc.Index(Record{Kind: KindTask, ID: "x"})
	svc.Remove(KindTask, "x")
	svc.Wait()

	n, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, m.indexed)
	assert.Empty(t, m.deleted)
}
