package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"docportal/docs"
	"docportal/internal/access"
	"docportal/internal/bootstrap"
	"docportal/internal/config"
	"docportal/internal/credential"
	"docportal/internal/database"
	"docportal/internal/database/migration"
	handlers "docportal/internal/http/handler"
	"docportal/internal/http/middleware"
	"docportal/internal/logger"
	"docportal/internal/otel"
	"docportal/internal/repository/postgres"
	"docportal/internal/service"
	"docportal/internal/session"
	"docportal/internal/storage"
	"docportal/internal/throttle"
)

// @title DocPortal API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, zl)
	if err != nil {
		zl.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// An unreachable database is logged and retried by the provisioner below.
	db, err := database.NewPostgres(ctx, cfg.Database, zl)
	if err != nil {
		zl.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	var blobs storage.Storage
	if cfg.MinIO.Endpoint != "" {
		blobs, err = storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			zl.Fatal("failed to initialize object storage", zap.Error(err))
		}
	} else {
		zl.Warn("MINIO_ENDPOINT not set, documents are kept in memory")
		blobs = storage.NewMemory()
	}

	var loginThrottle service.LoginThrottle
	if cfg.Redis.Addr != "" {
		rdb, err := throttle.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			zl.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		loginThrottle = throttle.NewLogin(rdb, cfg.Login.MaxFailures, cfg.Login.Lockout)
	} else {
		zl.Warn("REDIS_ADDR not set, login throttling disabled")
	}

	issuer, err := session.NewIssuer(session.Config{
		Secret:        []byte(cfg.Session.Secret),
		Issuer:        cfg.Session.Issuer,
		TTL:           cfg.Session.TTL,
		RefreshWindow: cfg.Session.RefreshWindow,
		MaxAge:        cfg.Session.MaxAge,
	})
	if err != nil {
		zl.Fatal("failed to build session issuer", zap.Error(err))
	}

	store := postgres.NewStore(db)
	creds := credential.NewStore(cfg.BcryptCost)
	engine := access.NewEngine(store.Grants())
	opts := []service.Option{
		service.WithTimeouts(cfg.Database.Timeout, cfg.MinIO.Timeout),
		service.WithDownloadTimeout(cfg.MinIO.DownloadTimeout),
		service.WithLogger(zl),
	}

	docSvc := service.NewDocumentService(store, blobs, engine, opts...)
	userSvc := service.NewUserService(store, creds, cfg.Admin.Email, opts...)
	authSvc := service.NewAuthService(store, creds, issuer, loginThrottle, opts...)

	provisioner := bootstrap.NewProvisioner(store, creds, cfg.Admin, bootstrap.WithLogger(zl))
	go func() {
		err := provisioner.Run(ctx, func(ctx context.Context) error {
			return migration.EnsureMigrated(ctx, db, zl, cfg.Database.Host)
		})
		if err != nil && ctx.Err() == nil {
			zl.Error("startup provisioning gave up", zap.Error(err))
		}
	}()

	if cfg.Reconcile.Interval > 0 {
		reconciler := service.NewReconciler(store, blobs, cfg.Reconcile.Grace, opts...)
		go reconciler.Run(ctx, cfg.Reconcile.Interval)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		zl.Fatal("failed to register metrics", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(zl),
		BodyLimit:    cfg.BodyLimitBytes,
	})

	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(zl))
	app.Use(metrics.Handler())
	app.Use(otelfiber.Middleware())

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, handlers.Dependencies{
		DB:        db,
		Documents: docSvc,
		Users:     userSvc,
		Auth:      authSvc,
		Accounts:  authSvc,
		Sessions:  issuer,
		Cookies:   middleware.CookieConfig{Secure: cfg.Session.CookieSecure},
		Metrics:   reg,
		Log:       zl,
	})

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(sctx); err != nil {
			zl.Warn("server shutdown", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	zl.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := app.Listen(addr); err != nil {
		zl.Fatal("failed to start server", zap.Error(err))
	}
}
