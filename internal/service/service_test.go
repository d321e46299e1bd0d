package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tgienger/devdesk/internal/db"
	"github.com/tgienger/devdesk/internal/models"
)

// tickingClock advances one second on every read so successive writes get
// distinct timestamps.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestServices(t *testing.T) (*Services, *db.DB) {
	t.Helper()
	d := db.NewTestDB(t)
	clock := &tickingClock{now: time.Unix(1_700_000_000, 0)}
	svc := New(Deps{
		DB:         d,
		Logger:     db.DiscardLogger(),
		BcryptCost: bcrypt.MinCost,
		Clock:      clock.Now,
	})
	return svc, d
}

func createUser(t *testing.T, svc *Services, username string) *models.User {
	t.Helper()
	u, err := svc.Users.Create(context.Background(), models.NewUser{
		Username: username,
		FullName: username + " Test",
		Email:    username + "@example.com",
		Password: "secret",
	})
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func createTask(t *testing.T, svc *Services, creator *models.User, title string) *models.Task {
	t.Helper()
	task, err := svc.Tasks.Create(context.Background(), models.NewTask{
		Title:     title,
		CreatorID: creator.ID,
	})
	require.NoError(t, err)
	return task
}

func ptr[T any](v T) *T { return &v }
