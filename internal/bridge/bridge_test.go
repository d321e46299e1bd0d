package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tgienger/devdesk/internal/backup"
	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
	"github.com/tgienger/devdesk/internal/service"
)

func newTestBridge(t *testing.T) *Dispatcher {
	t.Helper()
	d := db.NewTestDB(t)
	svc := service.New(service.Deps{DB: d, Logger: db.DiscardLogger(), BcryptCost: bcrypt.MinCost})
	mgr := backup.NewManager(d, backup.Options{
		Dir:    filepath.Join(t.TempDir(), "backups"),
		Keep:   3,
		Logger: db.DiscardLogger(),
	})
	return New(Deps{DB: d, Services: svc, Backup: mgr})
}

func admin(t *testing.T, b *Dispatcher) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, b.Call(context.Background(), "users.getByUsername", map[string]string{"username": "admin"}, &u))
	require.NotEmpty(t, u.ID)
	return u
}

func TestRoutesCoverEveryNamespace(t *testing.T) {
	b := newTestBridge(t)
	routes := b.Routes()

	namespaces := map[string]bool{}
	for _, op := range routes {
		ns, _, ok := strings.Cut(op, ".")
		require.True(t, ok, op)
		namespaces[ns] = true
	}
	for _, ns := range []string{
		"users", "teams", "tasks", "tags", "comments", "development", "documents",
		"notifications", "codeSnippets", "screenshots", "settings", "backup", "system",
	} {
		assert.True(t, namespaces[ns], "namespace %s", ns)
	}
	assert.Contains(t, routes, "system.checkDbStatus")
	assert.Contains(t, routes, "development.reorderTasks")
	assert.IsIncreasing(t, routes)
}

func TestRegisterTwicePanics(t *testing.T) {
	b := NewDispatcher(db.DiscardLogger())
	b.Register("x.y", noArgs(func(context.Context) (any, error) { return nil, nil }))
	assert.Panics(t, func() {
		b.Register("x.y", noArgs(func(context.Context) (any, error) { return nil, nil }))
	})
}

func TestUnknownOp(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Handle(context.Background(), Request{ID: "1", Op: "tasks.explode"})
	assert.False(t, resp.Success)
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, string(apperrors.CodeUnknownOp), resp.Code)
	assert.Contains(t, resp.Error, "tasks.explode")
}

func TestPanicBecomesInternalFailure(t *testing.T) {
	b := NewDispatcher(db.DiscardLogger())
	b.Register("boom", noArgs(func(context.Context) (any, error) { panic("kaboom") }))

	resp := b.Handle(context.Background(), Request{Op: "boom"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.CodeInternal), resp.Code)
	assert.Contains(t, resp.Error, "kaboom")
}

func TestMalformedPayload(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Handle(context.Background(), Request{Op: "users.get", Payload: json.RawMessage(`"just a string"`)})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.CodeInvalid), resp.Code)
}

func TestDuplicateEmailFailure(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()
	payload := json.RawMessage(`{"username":"ana","full_name":"Ana","email":"ana@example.com","password":"pw"}`)

	first := b.Handle(ctx, Request{Op: "users.create", Payload: payload})
	require.True(t, first.Success, first.Error)

	second := b.Handle(ctx, Request{Op: "users.create", Payload: json.RawMessage(
		`{"username":"ana2","full_name":"Ana","email":"ana@example.com","password":"pw"}`)})
	assert.False(t, second.Success)
	assert.Equal(t, string(apperrors.CodeDuplicate), second.Code)
	assert.Contains(t, second.Error, "email")
	assert.Nil(t, second.Data)
}

func TestCallTaskLifecycle(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()
	me := admin(t, b)

	var task models.Task
	require.NoError(t, b.Call(ctx, "tasks.create", models.NewTask{
		Title:     "Wire the bridge",
		CreatorID: me.ID,
	}, &task))
	assert.Equal(t, models.StatusPending, task.Status)

	var changed bool
	require.NoError(t, b.Call(ctx, "tasks.changeStatus", map[string]string{
		"id": task.ID, "status": string(models.StatusInProgress),
	}, &changed))
	assert.True(t, changed)

	var added bool
	require.NoError(t, b.Call(ctx, "tasks.addTag", map[string]string{"id": task.ID, "name": "backend"}, &added))
	assert.True(t, added)

	var got models.Task
	require.NoError(t, b.Call(ctx, "tasks.get", map[string]string{"id": task.ID}, &got))
	assert.Equal(t, models.StatusInProgress, got.Status)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "backend", got.Tags[0].Name)

	var found []models.Task
	require.NoError(t, b.Call(ctx, "tasks.search", map[string]any{"query": "wire"}, &found))
	require.Len(t, found, 1)
	assert.Equal(t, task.ID, found[0].ID)
}

func TestMissingRecordIsNotAFailure(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	resp := b.Handle(ctx, Request{Op: "tasks.delete", Payload: json.RawMessage(`{"id":"nope"}`)})
	require.True(t, resp.Success)
	assert.Equal(t, false, resp.Data)

	resp = b.Handle(ctx, Request{Op: "documents.get", Payload: json.RawMessage(`{"id":"nope"}`)})
	require.True(t, resp.Success)
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestCallReturnsAppError(t *testing.T) {
	b := newTestBridge(t)
	err := b.Call(context.Background(), "users.update", map[string]any{
		"id": "missing", "patch": map[string]string{"full_name": "x"},
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDevelopmentReorderThroughBridge(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"Plan", "Build", "Ship"} {
		var p models.DevelopmentPhase
		require.NoError(t, b.Call(ctx, "development.createPhase", models.NewPhase{Title: title}, &p))
		ids = append(ids, p.ID)
	}

	var ok bool
	require.NoError(t, b.Call(ctx, "development.reorderPhases", map[string]any{
		"ids": []string{ids[2], ids[0], ids[1]},
	}, &ok))
	assert.True(t, ok)

	var phases []models.DevelopmentPhase
	require.NoError(t, b.Call(ctx, "development.getPhases", nil, &phases))
	require.Len(t, phases, 3)
	assert.Equal(t, "Ship", phases[0].Title)
	assert.Equal(t, "Plan", phases[1].Title)
}

func TestCheckDbStatus(t *testing.T) {
	b := newTestBridge(t)
	var st DBStatus
	require.NoError(t, b.Call(context.Background(), "system.checkDbStatus", nil, &st))
	assert.True(t, st.Ready)
	assert.Equal(t, string(db.DriverModernc), st.Driver)
	assert.False(t, st.SearchMirror)
}

func TestBackupOps(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	var info backup.Info
	require.NoError(t, b.Call(ctx, "backup.create", nil, &info))
	assert.NotEmpty(t, info.Name)

	var list []backup.Info
	require.NoError(t, b.Call(ctx, "backup.list", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, info.Name, list[0].Name)

	resp := b.Handle(ctx, Request{Op: "backup.prune", Payload: json.RawMessage(`{"keep":0}`)})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.CodeInvalid), resp.Code)
}

func TestServeStdio(t *testing.T) {
	b := newTestBridge(t)
	in := strings.Join([]string{
		`{"id":"a","op":"settings.set","payload":{"key":"theme","value":"dark"}}`,
		``,
		`{"id":"b","op":"settings.get","payload":{"key":"theme"}}`,
		`not json`,
		`{"id":"c","op":"nope.nope"}`,
	}, "\n")
	var out strings.Builder

	require.NoError(t, b.ServeStdio(context.Background(), strings.NewReader(in), &out))

	var resps []Response
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var r Response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		resps = append(resps, r)
	}
	require.Len(t, resps, 4, "blank lines get no response")

	assert.Equal(t, "a", resps[0].ID)
	assert.True(t, resps[0].Success)

	assert.Equal(t, "b", resps[1].ID)
	setting, ok := resps[1].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dark", setting["value"])

	assert.False(t, resps[2].Success)
	assert.Equal(t, string(apperrors.CodeInvalid), resps[2].Code)

	assert.Equal(t, "c", resps[3].ID)
	assert.Equal(t, string(apperrors.CodeUnknownOp), resps[3].Code)
}

func TestServeStdioStopsOnCancel(t *testing.T) {
	b := newTestBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	err := b.ServeStdio(ctx, r, &strings.Builder{})
	assert.ErrorIs(t, err, context.Canceled)
}
