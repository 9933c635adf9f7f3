package application

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/felixgeelhaar/keystone/internal/identity/domain"
	"github.com/felixgeelhaar/keystone/internal/identity/infrastructure/auth"
	"github.com/felixgeelhaar/keystone/internal/identity/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

var authNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	verification map[string]string
	reset        map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{verification: map[string]string{}, reset: map[string]string{}}
}

func (n *recordingNotifier) SendVerification(_ context.Context, email, token string) error {
	n.verification[email] = token
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.reset[email] = token
	return nil
}

type stubReconciler struct {
	roles []string
	err   error
	calls int
}

func (s *stubReconciler) ReconcileAndGetRoles(context.Context, uuid.UUID) ([]string, error) {
	s.calls++
	return s.roles, s.err
}

type authFixture struct {
	svc        *AuthService
	users      *persistence.SQLiteUserRepository
	roles      *persistence.SQLiteRoleRepository
	outbox     *outbox.SQLiteRepository
	notifier   *recordingNotifier
	reconciler *stubReconciler
	issuer     *auth.JWTIssuer
	codec      *crypto.TokenCodec
	metrics    *observability.InMemoryMetrics
	clock      time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	conn := dbtest.NewSQLite(t)

	codec, err := crypto.NewTokenCodec("token-secret")
	require.NoError(t, err)
	issuer, err := auth.NewJWTIssuer("jwt-secret", "keystone", time.Hour)
	require.NoError(t, err)

	f := &authFixture{
		users:      persistence.NewSQLiteUserRepository(conn),
		roles:      persistence.NewSQLiteRoleRepository(conn),
		outbox:     outbox.NewSQLiteRepository(conn),
		notifier:   newRecordingNotifier(),
		reconciler: &stubReconciler{roles: []string{"Coach"}},
		issuer:     issuer,
		codec:      codec,
		metrics:    observability.NewInMemoryMetrics(),
		clock:      authNow,
	}
	f.svc = NewAuthService(
		database.NewUnitOfWork(conn),
		f.users,
		f.roles,
		f.outbox,
		f.reconciler,
		auth.NewBcryptHasher(bcrypt.MinCost),
		issuer,
		codec,
		f.notifier,
		AuthConfig{ResetTokenTTL: 30 * time.Minute},
		nil,
		f.metrics,
	)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func registerCommand() RegisterCommand {
	return RegisterCommand{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "Grace@Example.com",
		Phone:     "+1 555 0100",
		BirthDate: "1906-12-09",
		Gender:    "female",
		Password:  "cobol-forever",
	}
}

// registerUser runs the full register and verify flow.
func (f *authFixture) registerUser(t *testing.T) *UserDTO {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, registerCommand()))
	token := f.notifier.verification["grace@example.com"]
	require.NotEmpty(t, token)

	user, err := f.svc.Verify(ctx, token)
	require.NoError(t, err)
	return user
}

func TestAuthService_RegisterAndVerify(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	require.NoError(t, f.svc.Register(ctx, registerCommand()))

	// Nothing is stored before verification.
	exists, err := f.users.ExistsByEmail(ctx, mustEmail(t, "grace@example.com"))
	require.NoError(t, err)
	assert.False(t, exists)

	token := f.notifier.verification["grace@example.com"]
	fields, err := f.codec.Decode(token, registrationFields)
	require.NoError(t, err)
	assert.Equal(t, []string{"Grace", "Hopper", "grace@example.com", "+1 555 0100", "19061209", "female"}, fields[:6])
	assert.NotContains(t, fields[6], "cobol-forever")

	dto, err := f.svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", dto.Email)

	stored, err := f.users.FindByID(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", stored.FullName())
	require.NotNil(t, stored.Profile().BirthDate)
	assert.Equal(t, "1906-12-09", stored.Profile().BirthDate.Format(time.DateOnly))

	msgs, err := f.outbox.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoutingKeyUserRegistered, msgs[0].RoutingKey)

	t.Run("replayed token is rejected", func(t *testing.T) {
		_, err := f.svc.Verify(ctx, token)
		assert.ErrorIs(t, err, domain.ErrEmailTaken)
	})

	t.Run("register again is rejected", func(t *testing.T) {
		err := f.svc.Register(ctx, registerCommand())
		assert.ErrorIs(t, err, domain.ErrEmailTaken)
	})
}

func TestAuthService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	cases := map[string]func(*RegisterCommand){
		"short password":  func(c *RegisterCommand) { c.Password = "short" },
		"bad email":       func(c *RegisterCommand) { c.Email = "not-an-email" },
		"bad gender":      func(c *RegisterCommand) { c.Gender = "robot" },
		"bad birth date":  func(c *RegisterCommand) { c.BirthDate = "09/12/1906" },
		"delimiter":       func(c *RegisterCommand) { c.Phone = "555|0100" },
		"missing surname": func(c *RegisterCommand) { c.LastName = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := registerCommand()
			mutate(&cmd)
			err := f.svc.Register(ctx, cmd)
			assert.ErrorIs(t, err, sharedDomain.ErrInvalid)
		})
	}
	assert.Empty(t, f.notifier.verification)
}

func TestAuthService_VerifyRejectsTamperedToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	require.NoError(t, f.svc.Register(ctx, registerCommand()))
	token := f.notifier.verification["grace@example.com"]

	for _, bad := range []string{"", "garbage", token[:len(token)-2], token + "A"} {
		_, err := f.svc.Verify(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidVerificationToken)
	}

	forged, err := f.codec.Encode("a", "b")
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.registerUser(t)

	// The issued token is parsed against the wall clock.
	f.clock = time.Now().UTC().Truncate(time.Second)
	result, err := f.svc.Login(ctx, LoginCommand{Email: "GRACE@example.com", Password: "cobol-forever"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.UserID)
	assert.Equal(t, []string{"Coach"}, result.Roles)
	assert.Equal(t, f.clock.Add(time.Hour), result.ExpiresAt)
	assert.Equal(t, 1, f.reconciler.calls)

	claims, err := f.issuer.Parse(result.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.HasRole("Coach"))
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricLogins, observability.T("outcome", "success")))
}

func TestAuthService_LoginFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.registerUser(t)

	cases := map[string]LoginCommand{
		"unknown email":  {Email: "nobody@example.com", Password: "cobol-forever"},
		"wrong password": {Email: "grace@example.com", Password: "fortran"},
		"malformed":      {Email: "grace", Password: "cobol-forever"},
		"empty":          {},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, cmd)
			assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		})
	}
	assert.Equal(t, 0, f.reconciler.calls)
	assert.Equal(t, int64(len(cases)), f.metrics.GetCounter(observability.MetricLogins, observability.T("outcome", "failure")))
}

func TestAuthService_LoginDeletedUser(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	dto := f.registerUser(t)

	user, err := f.users.FindByID(ctx, dto.ID)
	require.NoError(t, err)
	user.Delete(authNow)
	require.NoError(t, f.users.Save(ctx, user))

	_, err = f.svc.Login(ctx, LoginCommand{Email: "grace@example.com", Password: "cobol-forever"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthService_LoginFallsBackToStoredRoles(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	dto := f.registerUser(t)
	require.NoError(t, f.roles.AddRole(ctx, dto.ID, "Admin", authNow))
	f.reconciler.err = errors.New("identity store down")

	result, err := f.svc.Login(ctx, LoginCommand{Email: "grace@example.com", Password: "cobol-forever"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, result.Roles)
	assert.NotEmpty(t, result.AccessToken)
}

func TestAuthService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.registerUser(t)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "grace@example.com"))
	token := f.notifier.reset["grace@example.com"]
	require.NotEmpty(t, token)

	fields, err := f.codec.Decode(token, resetFields)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", fields[0])
	assert.Equal(t, strconv.FormatInt(authNow.Unix(), 10), fields[2])

	f.clock = authNow.Add(10 * time.Minute)
	require.NoError(t, f.svc.ResetPassword(ctx, ResetPasswordCommand{Token: token, NewPassword: "new-password-1"}))

	_, err = f.svc.Login(ctx, LoginCommand{Email: "grace@example.com", Password: "cobol-forever"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginCommand{Email: "grace@example.com", Password: "new-password-1"})
	assert.NoError(t, err)
}

func TestAuthService_PasswordResetExpires(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.registerUser(t)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "grace@example.com"))
	token := f.notifier.reset["grace@example.com"]

	f.clock = authNow.Add(31 * time.Minute)
	err := f.svc.ResetPassword(ctx, ResetPasswordCommand{Token: token, NewPassword: "new-password-1"})
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	err = f.svc.ResetPassword(ctx, ResetPasswordCommand{Token: "bogus", NewPassword: "new-password-1"})
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestAuthService_PasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t)

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, f.notifier.reset)
}

func mustEmail(t *testing.T, s string) domain.Email {
	t.Helper()
	e, err := domain.NewEmail(s)
	require.NoError(t, err)
	return e
}
