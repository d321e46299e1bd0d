package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

func createPhases(t *testing.T, svc *Services, titles ...string) []*models.DevelopmentPhase {
	t.Helper()
	var out []*models.DevelopmentPhase
	for _, title := range titles {
		p, err := svc.Development.CreatePhase(context.Background(), models.NewPhase{Title: title})
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func phaseTitles(t *testing.T, svc *Services) []string {
	t.Helper()
	phases, err := svc.Development.ListPhases(context.Background())
	require.NoError(t, err)
	var titles []string
	for _, p := range phases {
		titles = append(titles, p.Title)
	}
	return titles
}

func TestPhaseCreateAppends(t *testing.T) {
	svc, _ := newTestServices(t)
	phases := createPhases(t, svc, "Design", "Build", "Ship")

	for i, p := range phases {
		assert.Equal(t, i, p.OrderIndex)
		assert.Zero(t, p.TasksCount)
		assert.Zero(t, p.CompletionPercentage)
	}
	assert.Equal(t, []string{"Design", "Build", "Ship"}, phaseTitles(t, svc))
}

func TestPhaseCompletionPercentage(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	phase := createPhases(t, svc, "Build")[0]

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		task, err := svc.Development.CreateTask(ctx, models.NewDevelopmentTask{PhaseID: phase.ID, Title: title})
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}
	toggled, err := svc.Development.ToggleTaskCompletion(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, toggled.IsCompleted)
	_, err = svc.Development.ToggleTaskCompletion(ctx, ids[1])
	require.NoError(t, err)

	got, err := svc.Development.GetPhase(ctx, phase.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TasksCount)
	assert.Equal(t, 2, got.CompletedCount)
	assert.Equal(t, 67, got.CompletionPercentage)

	toggled, err = svc.Development.ToggleTaskCompletion(ctx, ids[1])
	require.NoError(t, err)
	assert.False(t, toggled.IsCompleted)

	missing, err := svc.Development.ToggleTaskCompletion(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCompletion(t *testing.T) {
	assert.Equal(t, 0, completion(0, 0))
	assert.Equal(t, 33, completion(1, 3))
	assert.Equal(t, 50, completion(1, 2))
	assert.Equal(t, 100, completion(4, 4))
}

func TestReorderPhases(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	p := createPhases(t, svc, "A", "B", "C")

	ok, err := svc.Development.ReorderPhases(ctx, []string{p[2].ID, p[0].ID, p[1].ID})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"C", "A", "B"}, phaseTitles(t, svc))

	ok, err = svc.Development.ReorderPhases(ctx, []string{p[0].ID, "ghost", p[2].ID})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"C", "A", "B"}, phaseTitles(t, svc), "failed reorder changes nothing")
}

func TestReorderPhasesRequiresEveryIDOnce(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	p := createPhases(t, svc, "A", "B", "C")

	tests := []struct {
		name string
		ids  []string
	}{
		{"duplicate", []string{p[1].ID, p[0].ID, p[1].ID}},
		{"partial", []string{p[1].ID}},
		{"too many", []string{p[2].ID, p[1].ID, p[0].ID, p[0].ID}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.Development.ReorderPhases(ctx, tt.ids)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, []string{"A", "B", "C"}, phaseTitles(t, svc))
		})
	}
}

func TestReorderTasksWithinPhase(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	p := createPhases(t, svc, "A", "B")

	first, err := svc.Development.CreateTask(ctx, models.NewDevelopmentTask{PhaseID: p[0].ID, Title: "first"})
	require.NoError(t, err)
	second, err := svc.Development.CreateTask(ctx, models.NewDevelopmentTask{PhaseID: p[0].ID, Title: "second"})
	require.NoError(t, err)
	other, err := svc.Development.CreateTask(ctx, models.NewDevelopmentTask{PhaseID: p[1].ID, Title: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.OrderIndex)
	assert.Equal(t, 0, other.OrderIndex, "order is per phase")

	ok, err := svc.Development.ReorderTasks(ctx, p[0].ID, []string{second.ID, first.ID})
	require.NoError(t, err)
	assert.True(t, ok)
	tasks, err := svc.Development.ListTasks(ctx, p[0].ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "second", tasks[0].Title)

	ok, err = svc.Development.ReorderTasks(ctx, p[0].ID, []string{other.ID})
	require.NoError(t, err)
	assert.False(t, ok, "tasks of another phase are unknown here")
}

func TestDevelopmentTaskMove(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	p := createPhases(t, svc, "A", "B")
	task, err := svc.Development.CreateTask(ctx, models.NewDevelopmentTask{PhaseID: p[0].ID, Title: "move me"})
	require.NoError(t, err)

	_, err = svc.Development.UpdateTask(ctx, task.ID, models.DevelopmentTaskPatch{PhaseID: ptr("ghost")})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	ok, err := svc.Development.UpdateTask(ctx, task.ID, models.DevelopmentTaskPatch{PhaseID: &p[1].ID})
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := svc.Development.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, p[1].ID, got.PhaseID)
	assert.Equal(t, "move me", got.Title)

	_, err = svc.Development.CreateTask(ctx, models.NewDevelopmentTask{PhaseID: "ghost", Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestDeletePhaseRemovesTasks(t *testing.T) {
	svc, d := newTestServices(t)
	ctx := context.Background()
	p := createPhases(t, svc, "A")[0]
	_, err := svc.Development.CreateTask(ctx, models.NewDevelopmentTask{PhaseID: p.ID, Title: "x"})
	require.NoError(t, err)

	ok, err := svc.Development.DeletePhase(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := count(ctx, d, `SELECT COUNT(*) FROM development_tasks`)
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err = svc.Development.DeletePhase(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdatePhase(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	p := createPhases(t, svc, "A")[0]

	ok, err := svc.Development.UpdatePhase(ctx, p.ID, models.PhasePatch{Icon: ptr("rocket"), Color: ptr("#f00")})
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := svc.Development.GetPhase(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
	assert.Equal(t, "rocket", got.Icon)
	assert.Greater(t, got.UpdatedAt, p.UpdatedAt)

	ok, err = svc.Development.UpdatePhase(ctx, "ghost", models.PhasePatch{Icon: ptr("x")})
	require.NoError(t, err)
	assert.False(t, ok)
}
