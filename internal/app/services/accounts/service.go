// Package accounts signs shoppers in (e-mail OTP or OAuth) and manages their
// profiles.
package accounts

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	mailer "github.com/patisserie-labs/storefront/internal/mail"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

const (
	// OTPLength is the number of digits in a login code.
	OTPLength = 6
	// DefaultOTPTTL is how long a login code stays valid.
	DefaultOTPTTL = 5 * time.Minute
	// DefaultMaxAttempts burns a code after this many wrong guesses.
	DefaultMaxAttempts = 5
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, email, role string) (string, time.Time, error)
}

// Identity is a user vouched for by the OAuth provider.
type Identity struct {
	ID       string
	Email    string
	Name     string
	Provider string
}

// IdentityProvider resolves an OAuth access token into an identity.
type IdentityProvider interface {
	GetUser(ctx context.Context, accessToken string) (Identity, error)
}

// Limiter throttles OTP requests per key.
type Limiter interface {
	Allow(key string) bool
}

// Config tunes the sign-in flows.
type Config struct {
	AdminEmails map[string]bool
	OTPTTL      time.Duration
	MaxAttempts int
	BcryptCost  int
	Templates   mailer.Templates
	// OTPPerMinute is reported back when a request is throttled.
	OTPPerMinute int
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      user.User `json:"user"`
}

// ProfileUpdate carries optional profile changes.
type ProfileUpdate struct {
	Name           *string
	Phone          *string
	DefaultAddress *user.Address
}

// Service implements sign-in and profile operations.
type Service struct {
	users    storage.UserStore
	otps     storage.OTPStore
	mail     mailer.Mailer
	tokens   TokenIssuer
	identity IdentityProvider
	limiter  Limiter
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

func New(users storage.UserStore, otps storage.OTPStore, mail mailer.Mailer, tokens TokenIssuer, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = DefaultOTPTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.AdminEmails == nil {
		cfg.AdminEmails = map[string]bool{}
	}
	return &Service{users: users, otps: otps, mail: mail, tokens: tokens, cfg: cfg, log: log, now: time.Now}
}

// WithIdentityProvider enables OAuth sign-in.
func (s *Service) WithIdentityProvider(p IdentityProvider) { s.identity = p }

// WithLimiter throttles OTP requests per e-mail address.
func (s *Service) WithLimiter(l Limiter) { s.limiter = l }

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", svcerrors.Validation("email", "a valid e-mail address is required")
	}
	return strings.ToLower(addr.Address), nil
}

// RequestOTP generates a login code, stores its hash and e-mails it.
func (s *Service) RequestOTP(ctx context.Context, rawEmail string) error {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	if s.limiter != nil && !s.limiter.Allow("otp:"+email) {
		s.log.LogSecurityEvent(ctx, "otp_rate_limited", map[string]interface{}{"email": email})
		return svcerrors.RateLimitExceeded(s.cfg.OTPPerMinute, "1m")
	}

	code, err := generateCode()
	if err != nil {
		return svcerrors.Internal("generate login code", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	if err != nil {
		return svcerrors.Internal("hash login code", err)
	}
	now := s.now()
	if err := s.otps.SaveOTP(ctx, user.OTP{
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(s.cfg.OTPTTL),
		CreatedAt: now,
	}); err != nil {
		return err
	}

	msg, err := s.cfg.Templates.OTP(email, code, s.cfg.OTPTTL)
	if err != nil {
		return svcerrors.Internal("render login e-mail", err)
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		_ = s.otps.DeleteOTP(ctx, email)
		return svcerrors.Upstream("mail", err)
	}
	s.log.WithContext(ctx).WithField("email", email).Info("login code sent")
	return nil
}

// VerifyOTP checks a login code and signs the user in.
func (s *Service) VerifyOTP(ctx context.Context, rawEmail, code string) (Session, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return Session{}, err
	}
	code = strings.TrimSpace(code)
	if len(code) != OTPLength {
		return Session{}, svcerrors.Validation("code", fmt.Sprintf("code must be %d digits", OTPLength))
	}

	invalid := svcerrors.Unauthorized("invalid or expired code")
	otp, err := s.otps.GetOTP(ctx, email)
	if err != nil {
		if storage.IsNotFound(err) {
			return Session{}, invalid
		}
		return Session{}, err
	}
	if !s.now().Before(otp.ExpiresAt) {
		_ = s.otps.DeleteOTP(ctx, email)
		return Session{}, invalid
	}

	// Every guess claims an attempt before the compare, so concurrent
	// requests cannot share one attempt count.
	attempts, err := s.otps.IncrementOTPAttempts(ctx, email)
	if err != nil {
		if storage.IsNotFound(err) {
			return Session{}, invalid
		}
		return Session{}, err
	}
	if attempts > s.cfg.MaxAttempts {
		_ = s.otps.DeleteOTP(ctx, email)
		s.log.LogSecurityEvent(ctx, "otp_attempts_exhausted", map[string]interface{}{"email": email, "attempts": attempts})
		return Session{}, invalid
	}

	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		if attempts >= s.cfg.MaxAttempts {
			_ = s.otps.DeleteOTP(ctx, email)
		}
		s.log.LogSecurityEvent(ctx, "otp_mismatch", map[string]interface{}{"email": email, "attempts": attempts})
		return Session{}, invalid
	}

	if err := s.otps.DeleteOTP(ctx, email); err != nil && !storage.IsNotFound(err) {
		return Session{}, err
	}
	u, err := s.upsertUser(ctx, email, "", user.ProviderEmail)
	if err != nil {
		return Session{}, err
	}
	return s.issue(ctx, u)
}

// LoginOAuth exchanges a provider access token for a storefront session.
func (s *Service) LoginOAuth(ctx context.Context, accessToken string) (Session, error) {
	if s.identity == nil {
		return Session{}, svcerrors.BadRequest("oauth sign-in is not configured")
	}
	if strings.TrimSpace(accessToken) == "" {
		return Session{}, svcerrors.Validation("access_token", "access_token is required")
	}
	id, err := s.identity.GetUser(ctx, accessToken)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("oauth identity lookup failed")
		return Session{}, svcerrors.Unauthorized("oauth token rejected")
	}
	email, err := NormalizeEmail(id.Email)
	if err != nil {
		return Session{}, svcerrors.Unauthorized("oauth identity has no e-mail")
	}
	provider := id.Provider
	if provider == "" {
		provider = user.ProviderGoogle
	}
	u, err := s.upsertUser(ctx, email, id.Name, provider)
	if err != nil {
		return Session{}, err
	}
	return s.issue(ctx, u)
}

func (s *Service) upsertUser(ctx context.Context, email, name, provider string) (user.User, error) {
	now := s.now()
	u, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if u.Name == "" && name != "" {
			u.Name = name
		}
		u.Provider = provider
		u.LastLoginAt = now
		if s.cfg.AdminEmails[email] {
			u.Role = user.RoleAdmin
		}
		return s.users.UpdateUser(ctx, u)
	case storage.IsNotFound(err):
		role := user.RoleCustomer
		if s.cfg.AdminEmails[email] {
			role = user.RoleAdmin
		}
		created, err := s.users.CreateUser(ctx, user.User{
			Email:       email,
			Name:        name,
			Role:        role,
			Provider:    provider,
			LastLoginAt: now,
		})
		if err != nil {
			return user.User{}, err
		}
		s.log.WithContext(ctx).WithField("user_id", created.ID).WithField("provider", provider).Info("user registered")
		return created, nil
	default:
		return user.User{}, err
	}
}

// RoleFor resolves the effective role of a user.
func (s *Service) RoleFor(u user.User) string {
	if u.Role == user.RoleAdmin || s.cfg.AdminEmails[strings.ToLower(u.Email)] {
		return user.RoleAdmin
	}
	return user.RoleCustomer
}

func (s *Service) issue(ctx context.Context, u user.User) (Session, error) {
	role := s.RoleFor(u)
	u.Role = role
	token, expires, err := s.tokens.Issue(u.ID, u.Email, role)
	if err != nil {
		return Session{}, svcerrors.Internal("issue session token", err)
	}
	s.log.WithContext(ctx).WithField("user_id", u.ID).WithField("role", role).Info("user signed in")
	return Session{Token: token, ExpiresAt: expires, User: u}, nil
}

// Profile returns the caller's account.
func (s *Service) Profile(ctx context.Context, userID string) (user.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, storage.ServiceError(err, "user", userID)
	}
	u.Role = s.RoleFor(u)
	return u, nil
}

// UpdateProfile applies the non-nil fields of upd.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (user.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, storage.ServiceError(err, "user", userID)
	}
	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.DefaultAddress != nil {
		addr := *upd.DefaultAddress
		if addr.DistanceKm < 0 {
			return user.User{}, svcerrors.Validation("default_address.distance_km", "distance must not be negative")
		}
		u.DefaultAddress = &addr
	}
	updated, err := s.users.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, storage.ServiceError(err, "user", userID)
	}
	updated.Role = s.RoleFor(updated)
	s.log.WithContext(ctx).WithField("user_id", userID).Info("profile updated")
	return updated, nil
}

// ListUsers pages through accounts for admins.
func (s *Service) ListUsers(ctx context.Context, page, limit int) ([]user.User, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	users, err := s.users.ListUsers(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Role = s.RoleFor(users[i])
	}
	return users, nil
}

func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
