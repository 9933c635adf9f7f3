package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

var (
	ErrInvalidVerificationToken = sharedDomain.NewError(sharedDomain.ErrInvalid, "invalid verification token")
	ErrInvalidResetToken        = sharedDomain.NewError(sharedDomain.ErrInvalid, "invalid or expired reset token")
)

const (
	registrationFields = 7
	resetFields        = 3
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

// AccessTokenIssuer mints access tokens after login.
type AccessTokenIssuer interface {
	Issue(userID uuid.UUID, email string, roles []string, now time.Time) (string, time.Time, error)
}

// TokenCodec signs stateless verification and reset tokens.
type TokenCodec interface {
	Encode(fields ...string) (string, error)
	Decode(token string, n int) ([]string, error)
}

// Notifier delivers tokens to the owner of an email address.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// EntitlementReconciler brings a user's roles up to date before login.
type EntitlementReconciler interface {
	ReconcileAndGetRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// LoginCommand holds credentials.
type LoginCommand struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is returned on successful login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      uuid.UUID `json:"user_id"`
	Roles       []string  `json:"roles"`
}

// RegisterCommand holds the details of a pending registration.
type RegisterCommand struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Gender    string `json:"gender" validate:"omitempty,oneof=male female other"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

// ResetPasswordCommand sets a new password with a reset token.
type ResetPasswordCommand struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// UserDTO is the public view of a user.
type UserDTO struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthConfig configures AuthService.
type AuthConfig struct {
	ResetTokenTTL time.Duration
}

// AuthService handles login, registration and password reset. Pending
// registrations and resets live only in signed tokens.
type AuthService struct {
	uow          sharedApplication.UnitOfWork
	users        domain.UserRepository
	roles        domain.RoleRepository
	outbox       outbox.Repository
	entitlements EntitlementReconciler
	hasher       PasswordHasher
	issuer       AccessTokenIssuer
	codec        TokenCodec
	notifier     Notifier
	cfg          AuthConfig
	logger       *slog.Logger
	metrics      observability.Metrics
	now          func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	uow sharedApplication.UnitOfWork,
	users domain.UserRepository,
	roles domain.RoleRepository,
	outboxRepo outbox.Repository,
	entitlements EntitlementReconciler,
	hasher PasswordHasher,
	issuer AccessTokenIssuer,
	codec TokenCodec,
	notifier Notifier,
	cfg AuthConfig,
	logger *slog.Logger,
	metrics observability.Metrics,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 30 * time.Minute
	}
	return &AuthService{
		uow:          uow,
		users:        users,
		roles:        roles,
		outbox:       outboxRepo,
		entitlements: entitlements,
		hasher:       hasher,
		issuer:       issuer,
		codec:        codec,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Login checks credentials, reconciles entitlements and issues an access
// token. Unknown, deleted and wrong-password logins fail alike.
func (s *AuthService) Login(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	result, err := s.login(ctx, cmd)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.Counter(observability.MetricLogins, 1, observability.T("outcome", outcome))
	return result, err
}

func (s *AuthService) login(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	if err := sharedApplication.Validate(cmd); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	email, err := domain.NewEmail(cmd.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := s.hasher.Compare(user.PasswordHash(), cmd.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	roles, err := s.entitlements.ReconcileAndGetRoles(ctx, user.ID())
	if err != nil {
		s.logger.WarnContext(ctx, "entitlement reconciliation failed at login, using stored roles",
			"user_id", user.ID(),
			"error", err,
		)
		if roles, err = s.roles.ListRoles(ctx, user.ID()); err != nil {
			return nil, fmt.Errorf("load roles: %w", err)
		}
	}

	now := s.now().UTC()
	token, expiresAt, err := s.issuer.Issue(user.ID(), email.String(), roles, now)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID(), "roles", roles)
	return &LoginResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		UserID:      user.ID(),
		Roles:       roles,
	}, nil
}

// Register validates a registration and sends a verification token that
// carries it. Nothing is stored until Verify.
func (s *AuthService) Register(ctx context.Context, cmd RegisterCommand) error {
	if err := sharedApplication.Validate(cmd); err != nil {
		return err
	}
	email, err := domain.NewEmail(cmd.Email)
	if err != nil {
		return err
	}
	profile, err := buildProfile(cmd.FirstName, cmd.LastName, cmd.Phone, cmd.BirthDate, time.DateOnly, cmd.Gender)
	if err != nil {
		return err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrEmailTaken
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	birthDate := ""
	if profile.BirthDate != nil {
		birthDate = profile.BirthDate.Format(domain.BirthDateLayout)
	}
	token, err := s.codec.Encode(
		profile.FirstName.String(),
		profile.LastName.String(),
		email.String(),
		profile.Phone,
		birthDate,
		string(profile.Gender),
		hash,
	)
	if errors.Is(err, crypto.ErrFieldContainsDelimiter) {
		return fmt.Errorf("%w: fields must not contain %q", sharedDomain.ErrInvalid, crypto.TokenDelimiter)
	}
	if err != nil {
		return err
	}

	if err := s.notifier.SendVerification(ctx, email.String(), token); err != nil {
		return fmt.Errorf("send verification: %w", err)
	}
	s.logger.InfoContext(ctx, "registration pending verification", "email", email.String())
	return nil
}

// Verify creates the user carried by a verification token.
func (s *AuthService) Verify(ctx context.Context, token string) (*UserDTO, error) {
	fields, err := s.codec.Decode(token, registrationFields)
	if err != nil {
		return nil, ErrInvalidVerificationToken
	}

	email, err := domain.NewEmail(fields[2])
	if err != nil {
		return nil, ErrInvalidVerificationToken
	}
	profile, err := buildProfile(fields[0], fields[1], fields[3], fields[4], domain.BirthDateLayout, fields[5])
	if err != nil {
		return nil, ErrInvalidVerificationToken
	}

	var user *domain.User
	err = sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		exists, err := s.users.ExistsByEmail(txCtx, email)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrEmailTaken
		}

		user, err = domain.NewUser(email, profile, fields[6], s.now())
		if err != nil {
			return ErrInvalidVerificationToken
		}
		if err := s.users.Save(txCtx, user); err != nil {
			return err
		}
		return s.recordEvents(txCtx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID())
	return toUserDTO(user), nil
}

// RequestPasswordReset sends a reset token when the email belongs to an
// active user. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	addr, err := domain.NewEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, addr)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.logger.InfoContext(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	if user.IsDeleted() {
		return nil
	}

	token, err := s.codec.Encode(
		addr.String(),
		uuid.NewString(),
		strconv.FormatInt(s.now().Unix(), 10),
	)
	if err != nil {
		return err
	}
	if err := s.notifier.SendPasswordReset(ctx, addr.String(), token); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}

// ResetPassword sets a new password if the token is valid and younger than
// the reset TTL.
func (s *AuthService) ResetPassword(ctx context.Context, cmd ResetPasswordCommand) error {
	if err := sharedApplication.Validate(cmd); err != nil {
		return err
	}

	fields, err := s.codec.Decode(cmd.Token, resetFields)
	if err != nil {
		return ErrInvalidResetToken
	}
	issuedUnix, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ErrInvalidResetToken
	}
	now := s.now()
	issuedAt := time.Unix(issuedUnix, 0)
	if issuedAt.After(now) || now.Sub(issuedAt) > s.cfg.ResetTokenTTL {
		return ErrInvalidResetToken
	}
	email, err := domain.NewEmail(fields[0])
	if err != nil {
		return ErrInvalidResetToken
	}

	hash, err := s.hasher.Hash(cmd.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		user, err := s.users.FindByEmail(txCtx, email)
		if errors.Is(err, domain.ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		if err != nil {
			return err
		}
		if err := user.ChangePassword(hash, now); err != nil {
			if errors.Is(err, domain.ErrUserDeleted) {
				return ErrInvalidResetToken
			}
			return err
		}
		return s.users.Save(txCtx, user)
	})
}

func (s *AuthService) recordEvents(ctx context.Context, user *domain.User) error {
	events := user.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.Stamp(events, sharedApplication.TraceFor(ctx, user.ID()))

	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return err
	}
	if err := s.outbox.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	user.ClearDomainEvents()
	return nil
}

func buildProfile(first, last, phone, birthDate, layout, gender string) (domain.Profile, error) {
	firstName, err := domain.NewName(first)
	if err != nil {
		return domain.Profile{}, err
	}
	lastName, err := domain.NewName(last)
	if err != nil {
		return domain.Profile{}, err
	}
	g, err := domain.ParseGender(gender)
	if err != nil {
		return domain.Profile{}, err
	}

	profile := domain.Profile{FirstName: firstName, LastName: lastName, Phone: phone, Gender: g}
	if birthDate != "" {
		d, err := time.Parse(layout, birthDate)
		if err != nil {
			return domain.Profile{}, fmt.Errorf("%w: birth date: %w", sharedDomain.ErrInvalid, err)
		}
		profile.BirthDate = &d
	}
	return profile, nil
}

func toUserDTO(u *domain.User) *UserDTO {
	return &UserDTO{
		ID:        u.ID(),
		Email:     u.Email().String(),
		FirstName: u.Profile().FirstName.String(),
		LastName:  u.Profile().LastName.String(),
		CreatedAt: u.CreatedAt(),
	}
}
