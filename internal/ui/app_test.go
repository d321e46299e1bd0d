package ui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tgienger/devdesk/internal/bridge"
	"github.com/tgienger/devdesk/internal/db"
	"github.com/tgienger/devdesk/internal/models"
	"github.com/tgienger/devdesk/internal/service"
)

func newTestApp(t *testing.T) (*bridge.Dispatcher, string) {
	t.Helper()
	d := db.NewTestDB(t)
	svc := service.New(service.Deps{DB: d, Logger: db.DiscardLogger(), BcryptCost: bcrypt.MinCost})
	b := bridge.New(bridge.Deps{DB: d, Services: svc})

	var u models.User
	require.NoError(t, b.Call(context.Background(), "users.getByUsername", map[string]string{"username": "admin"}, &u))
	return b, u.ID
}

func drain(t *testing.T, m tea.Model, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 100, "command chain did not settle")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		if msg != nil {
			_, next := m.Update(msg)
			queue = append(queue, next)
		}
	}
}

func TestAppSwitchesAndRemembersView(t *testing.T) {
	client, userID := newTestApp(t)

	app := NewApp(client, userID)
	drain(t, app, app.Init())
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	require.Equal(t, ViewTasks, app.CurrentView())
	assert.Contains(t, app.View(), "No tasks")

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyTab})
	drain(t, app, cmd)
	require.Equal(t, ViewPhases, app.CurrentView())
	assert.Contains(t, app.View(), "No Phases")

	var st *models.Setting
	require.NoError(t, client.Call(context.Background(), "settings.get", map[string]string{"key": lastViewKey}, &st))
	require.NotNil(t, st)
	assert.Equal(t, "phases", st.Value)

	reopened := NewApp(client, userID)
	drain(t, reopened, reopened.Init())
	assert.Equal(t, ViewPhases, reopened.CurrentView())
}

func TestAppRoutesKeysToActiveView(t *testing.T) {
	client, userID := newTestApp(t)
	app := NewApp(client, userID)
	drain(t, app, app.Init())
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyTab})
	drain(t, app, cmd)

	// n on the phases view opens the phase form, not the task form.
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	assert.Contains(t, app.View(), "New Phase")
}
