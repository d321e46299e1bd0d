package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

func TestUserCreateAndGet(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	u := createUser(t, svc, "alice")
	assert.Equal(t, models.RoleDeveloper, u.Role)
	assert.Equal(t, models.Metadata{}, u.Settings)
	require.NotNil(t, u.PasswordHash)
	assert.NotEqual(t, "secret", *u.PasswordHash)
	assert.True(t, VerifyPassword(*u.PasswordHash, "secret"))

	got, err := svc.Users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	missing, err := svc.Users.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserCreateValidation(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    models.NewUser
		field string
	}{
		{"empty username", models.NewUser{FullName: "A", Email: "a@example.com"}, "username"},
		{"empty full name", models.NewUser{Username: "a", Email: "a@example.com"}, "full_name"},
		{"bad email", models.NewUser{Username: "a", FullName: "A", Email: "not-an-email"}, "email"},
		{"bad role", models.NewUser{Username: "a", FullName: "A", Email: "a@example.com", Role: "root"}, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Users.Create(ctx, tt.in)
			require.Error(t, err)
			ae, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.CodeInvalid, ae.Code)
			assert.Equal(t, tt.field, ae.Field)
		})
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	createUser(t, svc, "alice")

	_, err := svc.Users.Create(ctx, models.NewUser{
		Username: "alice2",
		FullName: "Alice Two",
		Email:    "alice@example.com",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	ae, _ := apperrors.As(err)
	assert.Equal(t, "email", ae.Field)

	_, err = svc.Users.Create(ctx, models.NewUser{
		Username: "alice",
		FullName: "Alice Again",
		Email:    "other@example.com",
	})
	ae, _ = apperrors.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "username", ae.Field)

	// Uniqueness ignores case.
	_, err = svc.Users.Create(ctx, models.NewUser{
		Username: "ALICE",
		FullName: "Alice Upper",
		Email:    "upper@example.com",
	})
	ae, _ = apperrors.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "username", ae.Field)

	_, err = svc.Users.Create(ctx, models.NewUser{
		Username: "alice3",
		FullName: "Alice Three",
		Email:    "Alice@Example.com",
	})
	ae, _ = apperrors.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "email", ae.Field)
}

func TestUserUpdate(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	u := createUser(t, svc, "alice")

	updated, err := svc.Users.Update(ctx, u.ID, models.UserPatch{FullName: ptr("Alice Liddell")})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", updated.FullName)
	assert.Equal(t, u.Email, updated.Email, "unset fields are kept")
	require.NotNil(t, updated.UpdatedAt)

	_, err = svc.Users.Update(ctx, "missing", models.UserPatch{FullName: ptr("x")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	createUser(t, svc, "bob")
	_, err = svc.Users.Update(ctx, u.ID, models.UserPatch{Email: ptr("bob@example.com")})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	changed, err := svc.Users.ChangeRole(ctx, u.ID, models.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, changed.Role)
}

func TestUserAuthenticate(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	u := createUser(t, svc, "alice")

	got, err := svc.Users.Authenticate(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	got, err = svc.Users.Authenticate(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := svc.Users.ChangePassword(ctx, u.ID, "n3w")
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = svc.Users.Authenticate(ctx, "alice", "n3w")
	require.NoError(t, err)
	assert.NotNil(t, got)

	// The seeded administrator can log in with the bootstrap password.
	admin, err := svc.Users.Authenticate(ctx, "admin", "admin123")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, models.RoleAdmin, admin.Role)
}

func TestUserSearchAndList(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	createUser(t, svc, "alice")
	createUser(t, svc, "bob")

	found, err := svc.Users.Search(ctx, "ali")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].Username)

	found, err = svc.Users.Search(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, found, "LIKE wildcards are matched literally")

	devs, err := svc.Users.List(ctx, models.UserFilter{Role: models.RoleDeveloper})
	require.NoError(t, err)
	require.Len(t, devs, 2)
	assert.Equal(t, "bob", devs[0].Username, "newest first")
}

func TestUserDeleteGuards(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")
	task := createTask(t, svc, alice, "Guarded")

	ok, err := svc.Users.Delete(ctx, alice.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, apperrors.ErrBusinessRule)

	_, err = svc.Tasks.Delete(ctx, task.ID)
	require.NoError(t, err)

	_, err = svc.Notifications.Create(ctx, models.NewNotification{
		RecipientID: alice.ID, Type: "info", Title: "hello",
	})
	require.NoError(t, err)

	ok, err = svc.Users.Delete(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := svc.Notifications.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "notifications go with the user")

	ok, err = svc.Users.Delete(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserProfileAndSetting(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	alice := createUser(t, svc, "alice")

	team, err := svc.Teams.Create(ctx, models.NewTeam{Name: "Core", LeaderID: alice.ID})
	require.NoError(t, err)
	_, err = svc.Tasks.Create(ctx, models.NewTask{Title: "One", CreatorID: alice.ID, AssigneeID: &alice.ID})
	require.NoError(t, err)
	_, err = svc.Tasks.Create(ctx, models.NewTask{
		Title: "Two", CreatorID: alice.ID, AssigneeID: &alice.ID, Status: models.StatusCompleted,
	})
	require.NoError(t, err)

	p, err := svc.Users.Profile(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, p.Teams, 1)
	assert.Equal(t, team.ID, p.Teams[0].ID)
	assert.Equal(t, "leader", p.Teams[0].Role)
	assert.Equal(t, 2, p.AssignedTasks)
	assert.Equal(t, 2, p.CreatedTasks)
	assert.Equal(t, 1, p.TasksByStatus[models.StatusCompleted])

	settings := models.Metadata{"editor": map[string]any{"theme": "dark"}}
	_, err = svc.Users.Update(ctx, alice.ID, models.UserPatch{Settings: &settings})
	require.NoError(t, err)

	v, ok, err := svc.Users.Setting(ctx, alice.ID, "editor.theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	_, ok, err = svc.Users.Setting(ctx, alice.ID, "editor.font")
	require.NoError(t, err)
	assert.False(t, ok)
}
