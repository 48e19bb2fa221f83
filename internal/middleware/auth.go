// Package middleware provides HTTP middleware for the storefront API.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/auth"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/internal/httputil"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// TokenValidator verifies session tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthMiddleware authenticates requests carrying a session token in the
// Authorization header or the auth cookie.
type AuthMiddleware struct {
	tokens TokenValidator
	logger *logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(tokens TokenValidator, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{tokens: tokens, logger: log}
}

// Handler rejects requests without a valid token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticate(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the caller's identity when a valid token is present and
// otherwise lets the request through anonymously.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctx, err := m.authenticate(r); err == nil {
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (context.Context, error) {
	raw, err := auth.TokenFromRequest(r)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			return nil, svcerrors.Unauthorized("")
		}
		return nil, svcerrors.Unauthorized(err.Error())
	}

	claims, err := m.tokens.Validate(raw)
	if err != nil {
		m.logger.WithContext(r.Context()).WithError(err).Debug("token validation failed")
		return nil, svcerrors.InvalidToken(err)
	}

	ctx := logger.WithUserID(r.Context(), claims.UserID())
	if claims.Role != "" {
		ctx = logger.WithRole(ctx, claims.Role)
	}
	return ctx, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := svcerrors.HTTPStatus(err)
	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": status,
	})
	httputil.WriteError(w, r, err)
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	return logger.GetUserID(ctx)
}

// GetUserRole extracts the authenticated role from context.
func GetUserRole(ctx context.Context) string {
	return logger.GetRole(ctx)
}

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(ctx context.Context) bool {
	return GetUserRole(ctx) == user.RoleAdmin
}

// RequireUserID ensures an authenticated user is present in context.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			httputil.WriteError(w, r, svcerrors.Unauthorized(""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects authenticated callers without the admin role. It must
// run after Handler.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			httputil.WriteError(w, r, svcerrors.Unauthorized(""))
			return
		}
		if !IsAdmin(r.Context()) {
			httputil.WriteError(w, r, svcerrors.Forbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
