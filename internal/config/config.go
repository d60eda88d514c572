// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, the civil timezone used to interpret human-entered
// dates, push credentials, dispatcher tuning, and observability settings.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata" // embed zone database so CIVIL_TZ resolves in minimal images
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "ops-notify")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the GORM dialector and its connection target.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	DSN    string // Postgres DSN
}

// PushConfig holds VAPID credentials for web push delivery. Push is
// considered configured only when both keys are present.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string        // mailto: or https: contact
	TTL             time.Duration // how long the push service may hold a message
	Timeout         time.Duration // per-delivery timeout
}

// Configured reports whether push credentials are present.
func (p PushConfig) Configured() bool {
	return strings.TrimSpace(p.VAPIDPublicKey) != "" && strings.TrimSpace(p.VAPIDPrivateKey) != ""
}

// DispatchConfig tunes the reminder and outbox sweeps.
type DispatchConfig struct {
	ReminderBatch     int           // max reminder rows per sweep
	OutboxBatch       int           // max outbox rows per sweep
	OutboxMaxAttempts int           // attempts before an outbox row is failed
	ClaimTimeout      time.Duration // in-flight claims older than this are reclaimable
	Concurrency       int           // parallel deliveries within a sweep
	Schedule          string        // cron spec for the in-process trigger
	LockTTL           time.Duration // cross-process sweep lock lifetime
}

// RedisConfig enables the optional cross-process sweep lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was supplied.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	AppURL         string // public origin used in notification deep links

	// Civil time
	CivilTZ          string // IANA zone used for human-entered dates
	AllDayAnchorHour int    // local hour all-day reminders are anchored at

	DB       DBConfig
	Push     PushConfig
	Dispatch DispatchConfig
	Redis    RedisConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// Load reads the environment, applies defaults and normalization, and returns
// every validation problem at once joined into a single error.
func Load() (Config, error) {
	cfg := Config{
		Port:              env.strOr("PORT", "8080"),
		ReadTimeout:       env.durOr("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: env.durOr("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      env.durOr("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       env.durOr("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    env.intOr("MAX_HEADER_BYTES", 1<<20),
		GinMode:           oneOf(strings.ToLower(env.strOr("GIN_MODE", "release")), "release", "debug", "test"),

		LogLevel:       normalizeLevel(env.strOr("LOG_LEVEL", "info")),
		LogPretty:      env.boolOr("LOG_PRETTY", false),
		SwaggerEnabled: env.boolOr("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(env.strOr("API_BASE_PATH", "/api/v1")),
		AppURL:         strings.TrimRight(env.strOr("APP_URL", ""), "/"),

		CivilTZ:          env.strOr("CIVIL_TZ", "America/New_York"),
		AllDayAnchorHour: env.intOr("ALLDAY_ANCHOR_HOUR", 9),

		DB: DBConfig{
			Driver: normalizeDriver(env.strOr("DB_DRIVER", "sqlite")),
			Path:   env.strOr("DB_PATH", "ops.db"),
			DSN:    env.strOr("DB_DSN", ""),
		},
		Push: PushConfig{
			VAPIDPublicKey:  env.strOr("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: env.strOr("VAPID_PRIVATE_KEY", ""),
			Subject:         env.strOr("VAPID_SUBJECT", "mailto:ops@example.com"),
			TTL:             env.durOr("PUSH_TTL", 12*time.Hour),
			Timeout:         env.durOr("PUSH_TIMEOUT", 10*time.Second),
		},
		Dispatch: DispatchConfig{
			ReminderBatch:     env.intOr("REMINDER_BATCH", 200),
			OutboxBatch:       env.intOr("OUTBOX_BATCH", 50),
			OutboxMaxAttempts: env.intOr("OUTBOX_MAX_ATTEMPTS", 5),
			ClaimTimeout:      env.durOr("CLAIM_TIMEOUT", 5*time.Minute),
			Concurrency:       env.intOr("DISPATCH_CONCURRENCY", 4),
			Schedule:          env.strOr("SWEEP_SCHEDULE", "@every 1m"),
			LockTTL:           env.durOr("SWEEP_LOCK_TTL", 2*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     env.strOr("REDIS_ADDR", ""),
			Password: env.strOr("REDIS_PASSWORD", ""),
			DB:       env.intOr("REDIS_DB", 0),
		},

		RateRPS:   env.floatOr("RATE_RPS", 5.0),
		RateBurst: env.intOr("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: env.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: env.boolOr("ENABLE_HSTS", false),
			HSTSMaxAge: env.durOr("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: env.durOr("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     env.boolOr("OTEL_ENABLED", false),
			Endpoint:    env.strOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env.boolOr("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: env.strOr("OTEL_SERVICE_NAME", "ops-notify"),
			SampleRatio: env.floatOr("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	return cfg, cfg.validate()
}

var logLevels = []string{"debug", "info", "warn", "error", "fatal", "panic"}

type rule struct {
	bad bool
	msg string
}

func (c Config) validate() error {
	_, tzErr := time.LoadLocation(c.CivilTZ)
	d := c.Dispatch
	rules := []rule{
		{!slices.Contains(logLevels, c.LogLevel), "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{strings.TrimSpace(c.Port) == "", "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0, "timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{tzErr != nil, fmt.Sprintf("CIVIL_TZ %q is not a valid IANA time zone", c.CivilTZ)},
		{c.AllDayAnchorHour < 0 || c.AllDayAnchorHour > 23, "ALLDAY_ANCHOR_HOUR must be between 0 and 23"},
		{c.DB.Driver != "sqlite" && c.DB.Driver != "postgres", "DB_DRIVER must be one of: sqlite, postgres"},
		{c.DB.Driver == "sqlite" && strings.TrimSpace(c.DB.Path) == "", "DB_PATH must not be empty"},
		{c.DB.Driver == "postgres" && strings.TrimSpace(c.DB.DSN) == "", "DB_DSN must be set when DB_DRIVER=postgres"},
		{c.Push.Timeout <= 0, "PUSH_TIMEOUT must be > 0"},
		{d.ReminderBatch < 1 || d.OutboxBatch < 1, "REMINDER_BATCH and OUTBOX_BATCH must be >= 1"},
		{d.OutboxMaxAttempts < 1, "OUTBOX_MAX_ATTEMPTS must be >= 1"},
		{d.ClaimTimeout <= 0, "CLAIM_TIMEOUT must be > 0"},
		{d.Concurrency < 1, "DISPATCH_CONCURRENCY must be >= 1"},
		{d.LockTTL <= 0, "SWEEP_LOCK_TTL must be > 0"},
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	var errs []error
	for _, r := range rules {
		if r.bad {
			errs = append(errs, errors.New(r.msg))
		}
	}
	return errors.Join(errs...)
}

// oneOf returns v when it is in allowed, otherwise allowed[0].
func oneOf(v string, allowed ...string) string {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return allowed[0]
}

func normalizeLevel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return "warn"
	}
	return s
}

func normalizeDriver(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "postgresql", "pg":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	}
	return s
}

// normalizeBasePath ensures a leading slash and drops trailing ones; empty
// means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
