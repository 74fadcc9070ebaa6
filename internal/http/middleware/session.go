package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/model"
	"docportal/internal/session"
)

const (
	SessionCookie = "docportal_session"
	CSRFCookie    = "docportal_csrf"

	callerLocalKey   = "caller"
	identityLocalKey = "session_identity"
)

// SessionIssuer is the part of session.Issuer the middleware needs.
type SessionIssuer interface {
	Resolve(value string) (session.Identity, error)
	NeedsRefresh(id session.Identity) bool
	Refresh(id session.Identity) (session.Token, error)
}

// AccountLoader reloads the account behind a verified session. A deleted
// account is reported as an Unauthenticated apperr.
type AccountLoader interface {
	Me(ctx context.Context, caller access.Caller) (*model.User, error)
}

// CookieConfig controls the attributes of the session cookies.
type CookieConfig struct {
	Secure bool
}

// Session resolves the session cookie into an *access.Caller. Requests without
// a valid session continue anonymously; RequireSession rejects them later.
// The role always comes from the stored account, not from the token, and a
// session whose account is gone is cleared. A session close to expiry is
// re-issued with the same anti-forgery value.
func Session(issuer SessionIssuer, accounts AccountLoader, cookies CookieConfig, log *zap.Logger) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(SessionCookie)
		if raw == "" {
			return c.Next()
		}

		id, err := issuer.Resolve(raw)
		if err != nil {
			ClearSessionCookies(c, cookies)
			return c.Next()
		}

		u, err := accounts.Me(c.UserContext(), access.Caller{UserID: id.UserID, Role: id.Role})
		if err != nil {
			if apperr.IsKind(err, apperr.KindUnauthenticated) {
				ClearSessionCookies(c, cookies)
				return c.Next()
			}
			return err
		}
		if u.Role != id.Role {
			log.Info("session role reloaded",
				zap.String("request_id", RequestIDFrom(c)),
				zap.Int64("user_id", id.UserID),
				zap.String("token_role", id.Role.String()),
				zap.String("role", u.Role.String()),
			)
			id.Role = u.Role
		}

		if issuer.NeedsRefresh(id) {
			tok, err := issuer.Refresh(id)
			if err != nil {
				log.Warn("session refresh failed",
					zap.String("request_id", RequestIDFrom(c)),
					zap.Int64("user_id", id.UserID),
					zap.Error(err),
				)
			} else {
				SetSessionCookies(c, tok, cookies)
				id.ExpiresAt = tok.ExpiresAt
			}
		}

		c.Locals(identityLocalKey, id)
		c.Locals(callerLocalKey, &access.Caller{UserID: id.UserID, Role: id.Role})
		return c.Next()
	}
}

// RequireSession rejects requests that carry no valid session.
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CallerFrom(c); !ok {
			return apperr.Unauthenticated("UNAUTHENTICATED", "authentication required")
		}
		return c.Next()
	}
}

// CallerFrom returns the caller resolved by Session.
func CallerFrom(c *fiber.Ctx) (access.Caller, bool) {
	caller, ok := c.Locals(callerLocalKey).(*access.Caller)
	if !ok || caller == nil {
		return access.Caller{}, false
	}
	return *caller, true
}

// IdentityFrom returns the verified session behind the caller.
func IdentityFrom(c *fiber.Ctx) (session.Identity, bool) {
	id, ok := c.Locals(identityLocalKey).(session.Identity)
	return id, ok
}

// SetSessionCookies writes the HttpOnly session cookie and the readable
// anti-forgery cookie.
func SetSessionCookies(c *fiber.Ctx, tok session.Token, cfg CookieConfig) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    tok.Value,
		Path:     "/",
		Expires:  tok.ExpiresAt,
		Secure:   cfg.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     CSRFCookie,
		Value:    tok.CSRF,
		Path:     "/",
		Expires:  tok.ExpiresAt,
		Secure:   cfg.Secure,
		HTTPOnly: false,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(c *fiber.Ctx, cfg CookieConfig) {
	past := time.Unix(0, 0)
	for _, name := range []string{SessionCookie, CSRFCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  past,
			MaxAge:   -1,
			Secure:   cfg.Secure,
			HTTPOnly: name == SessionCookie,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}
