package middleware

import (
	"github.com/gofiber/fiber/v2"

	"docportal/internal/apperr"
	"docportal/internal/session"
)

const (
	CSRFHeader    = "X-CSRF-Token"
	CSRFFormField = "csrf_token"
)

// CSRF enforces the double-submit check on state-changing methods: the value
// sent in X-CSRF-Token (or the csrf_token form field) must equal the one
// bound into the session. Paths in exempt skip the check.
func CSRF(exempt ...string) fiber.Handler {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		default:
			return c.Next()
		}
		if _, ok := skip[c.Path()]; ok {
			return c.Next()
		}

		id, ok := IdentityFrom(c)
		if !ok {
			// No session: the route's authentication check answers with 401.
			return c.Next()
		}

		presented := c.Get(CSRFHeader)
		if presented == "" {
			presented = c.FormValue(CSRFFormField)
		}
		if !session.VerifyCSRF(id, presented) {
			return apperr.Forbidden("CSRF_FAILED", "missing or invalid csrf token")
		}
		return c.Next()
	}
}
