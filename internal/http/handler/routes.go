package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docportal/internal/apperr"
	"docportal/internal/http/middleware"
	"docportal/internal/service"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies are what the routes are wired to.
type Dependencies struct {
	DB        Pinger
	Documents service.DocumentService
	Users     service.UserService
	Auth      service.AuthService
	Sessions  middleware.SessionIssuer
	// Accounts reloads the account behind every session; usually Auth.
	Accounts middleware.AccountLoader
	Cookies  middleware.CookieConfig
	// Metrics is served on /metrics when set.
	Metrics prometheus.Gatherer
	Log     *zap.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app. Every route
// below /auth/me, /documents and /users requires a session.
func RegisterRoutes(app *fiber.App, d Dependencies) {
	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessProbe())
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{})))
	}

	app.Use(middleware.Session(d.Sessions, d.Accounts, d.Cookies, d.Log))
	app.Use(middleware.CSRF("/auth/login"))
	authed := middleware.RequireSession()

	auth := app.Group("/auth")
	auth.Post("/login", Login(d.Auth, d.Cookies))
	auth.Post("/logout", Logout(d.Cookies))
	auth.Get("/me", authed, Me(d.Auth))

	docs := app.Group("/documents", authed)
	docs.Get("/", ListDocuments(d.Documents))
	docs.Post("/", UploadDocument(d.Documents))
	docs.Get("/:id", GetDocument(d.Documents))
	docs.Patch("/:id", UpdateDocument(d.Documents))
	docs.Delete("/:id", DeleteDocument(d.Documents))
	docs.Get("/:id/download", DownloadDocument(d.Documents))
	docs.Get("/:id/grants", ListGrants(d.Documents))
	docs.Put("/:id/grants/:userID", PutGrant(d.Documents))
	docs.Delete("/:id/grants/:userID", DeleteGrant(d.Documents))

	users := app.Group("/users", authed)
	users.Get("/", ListUsers(d.Users))
	users.Post("/", CreateUser(d.Users))
	users.Delete("/:id", DeleteUser(d.Users))
	users.Put("/:id/role", ChangeUserRole(d.Users))
}

// HealthCheck reports healthy only when the database answers.
//
// @Summary Readiness check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if db == nil || db.PingContext(ctx) != nil {
			return writeError(c, &apperr.Error{
				Kind:    apperr.KindUnavailable,
				Code:    "SERVICE_UNAVAILABLE",
				Message: "dependency unavailable",
				Status:  fiber.StatusServiceUnavailable,
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe answers as long as the process serves requests.
//
// @Summary Liveness probe
// @Tags Health
// @Success 200
// @Router /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
