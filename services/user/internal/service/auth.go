package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intelliguard/intelliguard/pkg/clock"
	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	"github.com/intelliguard/intelliguard/pkg/logger"
	"github.com/intelliguard/intelliguard/services/user/internal/auth"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
	"github.com/intelliguard/intelliguard/services/user/internal/event"
	"github.com/intelliguard/intelliguard/services/user/internal/password"
	"github.com/intelliguard/intelliguard/services/user/internal/repository"
)

// TokenSigner is the token half of the identity core. *auth.JWTSigner
// implements it.
type TokenSigner interface {
	SignAccessToken(sub auth.Subject) (string, error)
	GenerateOpaqueToken() (string, error)
}

// Deps are the collaborators of AuthService.
type Deps struct {
	Users  repository.UserRepository
	Roles  repository.RoleRepository
	Tokens repository.RefreshTokenRepository
	Hasher password.Hasher
	Signer TokenSigner
	Clock  clock.Clock
	Events *event.Producer
	Logger *slog.Logger
}

// AuthService orchestrates registration, login, refresh and logout. It holds
// no mutable state beyond its read-only Config.
type AuthService struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	tokens repository.RefreshTokenRepository
	hasher password.Hasher
	signer TokenSigner
	clock  clock.Clock
	events *event.Producer
	logger *slog.Logger
	cfg    Config

	// dummyHash is verified against when the email is unknown so both
	// failure paths cost one hash verification.
	dummyHash func() string
}

// NewAuthService creates the identity core.
func NewAuthService(d Deps, cfg Config) (*AuthService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auth service config: %w", err)
	}
	switch {
	case d.Users == nil:
		return nil, errors.New("auth service: user repository is required")
	case d.Roles == nil:
		return nil, errors.New("auth service: role repository is required")
	case d.Tokens == nil:
		return nil, errors.New("auth service: refresh token repository is required")
	case d.Hasher == nil:
		return nil, errors.New("auth service: password hasher is required")
	case d.Signer == nil:
		return nil, errors.New("auth service: token signer is required")
	}
	if d.Clock == nil {
		d.Clock = clock.System()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	hasher := d.Hasher
	return &AuthService{
		users:  d.Users,
		roles:  d.Roles,
		tokens: d.Tokens,
		hasher: hasher,
		signer: d.Signer,
		clock:  d.Clock,
		events: d.Events,
		logger: d.Logger,
		cfg:    cfg,
		dummyHash: sync.OnceValue(func() string {
			h, _ := hasher.Hash(uuid.NewString())
			return h
		}),
	}, nil
}

// RegisterInput holds the parameters of Register.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput holds the parameters of Login.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates a pending account and logs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (bundle *domain.TokenBundle, err error) {
	defer func() { observe("register", err) }()

	email := domain.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.InvalidInput("a valid email is required")
	}
	if in.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, domain.DuplicateAccount()
	}

	role, err := s.roles.GetByName(ctx, s.cfg.DefaultRole)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.ErrorContext(ctx, "default role missing", slog.String("role", s.cfg.DefaultRole))
			return nil, domain.ConfigurationError(fmt.Errorf("default role %q not found", s.cfg.DefaultRole))
		}
		return nil, fmt.Errorf("resolve default role: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	acct := domain.NewAccount(uuid.NewString(), email, hash, in.FirstName, in.LastName, *role, uuid.NewString(), now)

	value, rt, err := s.mintRefreshToken(acct.ID, now)
	if err != nil {
		return nil, err
	}
	bundle, err = s.bundle(acct, value)
	if err != nil {
		return nil, err
	}

	// The unique index decides concurrent registrations of one email. The
	// account and its first session commit together or not at all.
	if err := s.users.Create(ctx, acct, rt); err != nil {
		if errors.Is(err, domain.ErrDuplicateAccount) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishUserRegistered(ctx, acct); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish user.registered event",
				slog.String("user_id", acct.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("user_id", acct.ID),
		logger.Email("email", acct.Email),
	)
	return bundle, nil
}

// Login authenticates email and password. Unknown emails and wrong passwords
// fail identically.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (bundle *domain.TokenBundle, err error) {
	defer func() { observe("login", err) }()

	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperrors.InvalidInput("email and password are required")
	}
	now := s.clock.Now()

	acct, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_, _ = s.hasher.Verify(in.Password, s.dummyHash())
			s.logger.WarnContext(ctx, "login failed", logger.Email("email", email), slog.String("reason", "unknown email"))
			return nil, domain.InvalidCredentials()
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	if acct.IsLocked(now) {
		s.logger.WarnContext(ctx, "login rejected: account locked",
			slog.String("user_id", acct.ID),
			slog.Time("locked_until", *acct.LockedUntil),
		)
		return nil, domain.AccountLocked(*acct.LockedUntil)
	}
	if acct.IsDeleted() {
		return nil, domain.AccountDeleted()
	}

	ok, err := s.hasher.Verify(in.Password, acct.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		if err := s.recordFailure(ctx, acct.ID, now); err != nil {
			return nil, err
		}
		return nil, domain.InvalidCredentials()
	}

	value, rt, err := s.mintRefreshToken(acct.ID, now)
	if err != nil {
		return nil, err
	}
	acct.RecordLogin(now)
	bundle, err = s.bundle(acct, value)
	if err != nil {
		return nil, err
	}
	if err := s.users.RecordLogin(ctx, acct.ID, rt, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	s.logger.InfoContext(ctx, "login succeeded", slog.String("user_id", acct.ID))
	return bundle, nil
}

// recordFailure applies the lockout policy atomically and announces a new
// lock.
func (s *AuthService) recordFailure(ctx context.Context, userID string, now time.Time) error {
	var wasLocked bool
	l, err := s.users.UpdateLockout(ctx, userID, now, func(cur domain.Lockout) domain.Lockout {
		wasLocked = cur.Locked(now)
		return s.cfg.Lockout.OnFailure(cur, now)
	})
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}

	s.logger.WarnContext(ctx, "login failed",
		slog.String("user_id", userID),
		slog.Int("failed_attempts", l.FailedAttempts),
	)

	if wasLocked || !l.Locked(now) {
		return nil
	}
	s.logger.WarnContext(ctx, "account locked",
		slog.String("user_id", userID),
		slog.Time("locked_until", *l.LockedUntil),
	)
	if s.events != nil {
		if err := s.events.PublishUserLocked(ctx, userID, l); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish user.locked event",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// one stored in the same transaction, then the access token is signed.
// Unknown, revoked, expired and reused tokens fail identically.
func (s *AuthService) Refresh(ctx context.Context, value string) (bundle *domain.TokenBundle, err error) {
	defer func() { observe("refresh", err) }()

	if value == "" {
		return nil, domain.InvalidRefreshToken()
	}
	now := s.clock.Now()
	hash := domain.HashToken(value)

	rt, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "refresh rejected", slog.String("reason", "unknown token"))
			return nil, domain.InvalidRefreshToken()
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if !rt.Valid(now) {
		s.logger.WarnContext(ctx, "refresh rejected",
			slog.String("user_id", rt.UserID),
			slog.Bool("revoked", rt.Revoked),
			slog.String("reason", "token not valid"),
		)
		return nil, domain.InvalidRefreshToken()
	}

	acct, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("get token owner %s: %w", rt.UserID, err)
	}
	if acct.IsDeleted() {
		return nil, domain.AccountDeleted()
	}

	newValue, next, err := s.mintRefreshToken(acct.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Rotate(ctx, hash, next, now); err != nil {
		if errors.Is(err, repository.ErrTokenNotValid) {
			s.logger.WarnContext(ctx, "refresh rejected",
				slog.String("user_id", acct.ID),
				slog.String("reason", "token already rotated"),
			)
			return nil, domain.InvalidRefreshToken()
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	// The presented token is revoked by now; a signing failure means the
	// caller logs in again.
	bundle, err = s.bundle(acct, newValue)
	if err != nil {
		s.logger.ErrorContext(ctx, "refresh token revoked without replacement",
			slog.String("user_id", acct.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "refresh token rotated", slog.String("user_id", acct.ID))
	return bundle, nil
}

// LogoutAll revokes every valid refresh token of userID. Access tokens
// already issued stay valid until they expire.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (err error) {
	defer func() { observe("logout", err) }()

	n, err := s.tokens.RevokeAllValidForUser(ctx, userID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.logger.InfoContext(ctx, "logged out everywhere",
		slog.String("user_id", userID),
		slog.Int64("revoked", n),
	)
	return nil
}

// VerifyEmail consumes a verification token and activates the account.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (profile *domain.Profile, err error) {
	defer func() { observe("verify_email", err) }()

	if token == "" {
		return nil, apperrors.InvalidInput("verification token is required")
	}
	acct, err := s.users.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidInput("invalid verification token")
		}
		return nil, fmt.Errorf("get account by verification token: %w", err)
	}

	acct.VerifyEmail(s.clock.Now())
	if err := s.users.Update(ctx, acct); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	s.logger.InfoContext(ctx, "email verified", slog.String("user_id", acct.ID))
	p := acct.Profile()
	return &p, nil
}

func (s *AuthService) mintRefreshToken(userID string, now time.Time) (string, *domain.RefreshToken, error) {
	value, err := s.signer.GenerateOpaqueToken()
	if err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return value, domain.NewRefreshToken(uuid.NewString(), userID, value, now, s.cfg.RefreshTokenTTL), nil
}

func (s *AuthService) bundle(a *domain.Account, refreshValue string) (*domain.TokenBundle, error) {
	access, err := s.signer.SignAccessToken(auth.Subject{UserID: a.ID, Email: a.Email, Role: a.Role.Name})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &domain.TokenBundle{
		AccessToken:  access,
		RefreshToken: refreshValue,
		TokenType:    domain.TokenTypeBearer,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL / time.Second),
		User:         a.Profile(),
	}, nil
}
