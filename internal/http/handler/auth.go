package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"docportal/internal/http/middleware"
	"docportal/internal/model"
	"docportal/internal/service"
)

type sessionResponse struct {
	User      *model.User `json:"user"`
	CSRFToken string      `json:"csrf_token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Login verifies credentials and sets the session cookies. Only JSON bodies
// are accepted, so a plain cross-site form cannot sign a browser in.
//
// @Summary Sign in
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body loginRequest true "Credentials"
// @Success 200 {object} sessionResponse
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 415 {object} errorPayload
// @Failure 429 {object} errorPayload
// @Router /auth/login [post]
func Login(auth service.AuthService, cookies middleware.CookieConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !c.Is("json") {
			return fiber.ErrUnsupportedMediaType
		}
		var req loginRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		res, err := auth.Login(c.UserContext(), req.Email, req.Password)
		if err != nil {
			return err
		}

		middleware.SetSessionCookies(c, res.Session, cookies)
		return c.JSON(sessionResponse{
			User:      res.User,
			CSRFToken: res.Session.CSRF,
			ExpiresAt: res.Session.ExpiresAt,
		})
	}
}

// Logout clears the session cookies. With a live session the request must
// carry the anti-forgery token like any other write.
//
// @Summary Sign out
// @Tags Auth
// @Success 204
// @Failure 403 {object} errorPayload
// @Router /auth/logout [post]
func Logout(cookies middleware.CookieConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		middleware.ClearSessionCookies(c, cookies)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// Me returns the signed-in account and its anti-forgery token.
//
// @Summary Current account
// @Tags Auth
// @Produce json
// @Success 200 {object} sessionResponse
// @Failure 401 {object} errorPayload
// @Router /auth/me [get]
func Me(auth service.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		u, err := auth.Me(c.UserContext(), caller)
		if err != nil {
			return err
		}
		id, _ := middleware.IdentityFrom(c)
		return c.JSON(sessionResponse{User: u, CSRFToken: id.CSRF, ExpiresAt: id.ExpiresAt})
	}
}
