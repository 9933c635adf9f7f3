package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/keystone/internal/identity/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/dbtest"
)

var identityNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestUser(t *testing.T, email string) *domain.User {
	t.Helper()
	addr, err := domain.NewEmail(email)
	require.NoError(t, err)
	first, _ := domain.NewName("Ada")
	last, _ := domain.NewName("Lovelace")
	birth := time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC)

	user, err := domain.NewUser(addr, domain.Profile{
		FirstName: first,
		LastName:  last,
		Phone:     "+44 20 7946 0000",
		BirthDate: &birth,
		Gender:    domain.GenderFemale,
	}, "$2a$10$hash", identityNow)
	require.NoError(t, err)
	return user
}

func TestSQLiteUserRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteUserRepository(dbtest.NewSQLite(t))

	user := newTestUser(t, "ada@example.com")
	require.NoError(t, repo.Save(ctx, user))
	assert.False(t, user.IsNew())

	found, err := repo.FindByID(ctx, user.ID())
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", found.Email().String())
	assert.Equal(t, "Ada Lovelace", found.FullName())
	assert.Equal(t, domain.GenderFemale, found.Profile().Gender)
	require.NotNil(t, found.Profile().BirthDate)
	assert.Equal(t, "1990-12-10", found.Profile().BirthDate.Format("2006-01-02"))
	assert.Equal(t, identityNow, found.CreatedAt())

	byEmail, err := repo.FindByEmail(ctx, user.Email())
	require.NoError(t, err)
	assert.Equal(t, user.ID(), byEmail.ID())

	exists, err := repo.ExistsByEmail(ctx, user.Email())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteUserRepository(dbtest.NewSQLite(t))

	user := newTestUser(t, "ada@example.com")
	require.NoError(t, repo.Save(ctx, user))

	require.NoError(t, user.ChangePassword("$2a$10$other", identityNow.Add(time.Hour)))
	user.Delete(identityNow.Add(time.Hour))
	require.NoError(t, repo.Save(ctx, user))

	found, err := repo.FindByID(ctx, user.ID())
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$other", found.PasswordHash())
	assert.True(t, found.IsDeleted())
}

func TestSQLiteUserRepository_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteUserRepository(dbtest.NewSQLite(t))

	require.NoError(t, repo.Save(ctx, newTestUser(t, "ada@example.com")))
	err := repo.Save(ctx, newTestUser(t, "ADA@example.com"))
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestSQLiteUserRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteUserRepository(dbtest.NewSQLite(t))

	_, err := repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	email, _ := domain.NewEmail("nobody@example.com")
	_, err = repo.FindByEmail(ctx, email)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	exists, err := repo.ExistsByEmail(ctx, email)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteRoleRepository(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	users := NewSQLiteUserRepository(conn)
	roles := NewSQLiteRoleRepository(conn)

	user := newTestUser(t, "ada@example.com")
	require.NoError(t, users.Save(ctx, user))

	list, err := roles.ListRoles(ctx, user.ID())
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, roles.AddRole(ctx, user.ID(), "Coach", identityNow))
	require.NoError(t, roles.AddRole(ctx, user.ID(), "Coach", identityNow))
	require.NoError(t, roles.AddRole(ctx, user.ID(), "Admin", identityNow))
	require.NoError(t, roles.AddRole(ctx, user.ID(), "Yogi", identityNow))

	list, err = roles.ListRoles(ctx, user.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "Coach", "Yogi"}, list)

	require.NoError(t, roles.RemoveRoles(ctx, user.ID(), []string{"Coach", "Yogi", "Missing"}))
	require.NoError(t, roles.RemoveRoles(ctx, user.ID(), nil))

	list, err = roles.ListRoles(ctx, user.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, list)

	err = roles.AddRole(ctx, uuid.New(), "Coach", identityNow)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
