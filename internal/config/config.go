package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	minSessionSecretLen = 32
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	// Timeout bounds every single query issued by the services.
	Timeout time.Duration
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Timeout bounds a single blob operation.
	Timeout time.Duration
	// DownloadTimeout bounds a streamed download from open to last byte.
	DownloadTimeout time.Duration
}

// RedisConfig holds the connection used by the login throttle.
// An empty Addr disables the throttle.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	Secret        string
	Issuer        string
	TTL           time.Duration
	RefreshWindow time.Duration
	// MaxAge is the absolute session lifetime counted from login.
	MaxAge       time.Duration
	CookieSecure bool
}

// AdminConfig names the administrator ensured at startup.
type AdminConfig struct {
	Email        string
	Password     string
	PasswordHash string
}

// LoginConfig tunes the per-email failed login throttle.
type LoginConfig struct {
	MaxFailures int
	Lockout     time.Duration
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string
	Format string
}

// ReconcileConfig drives the orphaned blob sweep.
type ReconcileConfig struct {
	Interval time.Duration
	Grace    time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Env            string
	AppHost        string
	Port           string
	BodyLimitBytes int
	BcryptCost     int
	Database       DatabaseConfig
	MinIO          MinIOConfig
	Redis          RedisConfig
	Session        SessionConfig
	Admin          AdminConfig
	Login          LoginConfig
	Log            LogConfig
	Reconcile      ReconcileConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// Real environment variables take precedence over defaults.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &AppConfig{
		Env:            v.GetString("ENV"),
		AppHost:        v.GetString("APP_HOST"),
		Port:           v.GetString("PORT"),
		BodyLimitBytes: v.GetInt("MAX_UPLOAD_BYTES"),
		BcryptCost:     v.GetInt("BCRYPT_COST"),
		Database: DatabaseConfig{
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetString("DB_PORT"),
			User:               v.GetString("DB_USER"),
			Password:           v.GetString("DB_PASSWORD"),
			Name:               v.GetString("DB_NAME"),
			SSLMode:            v.GetString("DB_SSLMODE"),
			MaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetimeSec: v.GetInt("DB_CONN_MAX_LIFETIME_SEC"),
			Timeout:            parseDuration(v.GetString("DB_TIMEOUT"), 5*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:        v.GetString("MINIO_ENDPOINT"),
			AccessKey:       v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:       v.GetString("MINIO_SECRET_KEY"),
			Bucket:          v.GetString("MINIO_BUCKET"),
			UseSSL:          v.GetBool("MINIO_USE_SSL"),
			Timeout:         parseDuration(v.GetString("BLOB_TIMEOUT"), time.Minute),
			DownloadTimeout: parseDuration(v.GetString("BLOB_DOWNLOAD_TIMEOUT"), 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Session: SessionConfig{
			Secret:        v.GetString("SESSION_SECRET"),
			Issuer:        v.GetString("SESSION_ISSUER"),
			TTL:           parseDuration(v.GetString("SESSION_TTL"), 15*time.Minute),
			RefreshWindow: parseDuration(v.GetString("SESSION_REFRESH_WINDOW"), 5*time.Minute),
			MaxAge:        parseDuration(v.GetString("SESSION_MAX_AGE"), 12*time.Hour),
			CookieSecure:  v.GetBool("SESSION_COOKIE_SECURE"),
		},
		Admin: AdminConfig{
			Email:        strings.ToLower(strings.TrimSpace(v.GetString("DEFAULT_ADMIN_EMAIL"))),
			Password:     v.GetString("DEFAULT_ADMIN_PASSWORD"),
			PasswordHash: v.GetString("DEFAULT_ADMIN_PASSWORD_HASH"),
		},
		Login: LoginConfig{
			MaxFailures: v.GetInt("LOGIN_MAX_FAILURES"),
			Lockout:     parseDuration(v.GetString("LOGIN_LOCKOUT"), 15*time.Minute),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Reconcile: ReconcileConfig{
			Interval: parseDuration(v.GetString("RECONCILE_INTERVAL"), 0),
			Grace:    parseDuration(v.GetString("RECONCILE_GRACE"), time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot safely run with.
func (c *AppConfig) Validate() error {
	if len(c.Session.Secret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen)
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Session.RefreshWindow < 0 || c.Session.RefreshWindow >= c.Session.TTL {
		return errors.New("SESSION_REFRESH_WINDOW must be non-negative and shorter than SESSION_TTL")
	}
	if c.Session.MaxAge < c.Session.TTL {
		return errors.New("SESSION_MAX_AGE must not be shorter than SESSION_TTL")
	}
	if c.MinIO.DownloadTimeout < 0 {
		return errors.New("BLOB_DOWNLOAD_TIMEOUT must not be negative")
	}
	if c.Env == EnvProduction && !c.Session.CookieSecure {
		return errors.New("SESSION_COOKIE_SECURE must be enabled in production")
	}
	if c.Login.MaxFailures < 0 {
		return errors.New("LOGIN_MAX_FAILURES must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("APP_HOST", "localhost:8080")
	v.SetDefault("PORT", "8080")
	v.SetDefault("MAX_UPLOAD_BYTES", 32*1024*1024)
	v.SetDefault("BCRYPT_COST", 0)

	v.SetDefault("DB_HOST", "")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SEC", 300)
	v.SetDefault("DB_TIMEOUT", "5s")

	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("BLOB_TIMEOUT", "1m")
	v.SetDefault("BLOB_DOWNLOAD_TIMEOUT", "30m")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_ISSUER", "docportal")
	v.SetDefault("SESSION_TTL", "15m")
	v.SetDefault("SESSION_REFRESH_WINDOW", "5m")
	v.SetDefault("SESSION_MAX_AGE", "12h")
	v.SetDefault("SESSION_COOKIE_SECURE", false)

	v.SetDefault("DEFAULT_ADMIN_EMAIL", "")
	v.SetDefault("DEFAULT_ADMIN_PASSWORD", "")
	v.SetDefault("DEFAULT_ADMIN_PASSWORD_HASH", "")

	v.SetDefault("LOGIN_MAX_FAILURES", 5)
	v.SetDefault("LOGIN_LOCKOUT", "15m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RECONCILE_INTERVAL", "0s")
	v.SetDefault("RECONCILE_GRACE", "1h")
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
