// Package httpapi assembles the Gin engine: middleware chain, health and
// metrics endpoints, optional Swagger UI and the versioned API.
//
//	@title			Ops Notify API
//	@version		1.0
//	@description	Calendar events, to-dos, reminders and web push delivery for site operations.
//	@BasePath		/api/v1
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-ops-notify/docs"
	"github.com/tbourn/go-ops-notify/internal/civiltime"
	"github.com/tbourn/go-ops-notify/internal/config"
	"github.com/tbourn/go-ops-notify/internal/http/handlers"
	"github.com/tbourn/go-ops-notify/internal/http/middleware"
	"github.com/tbourn/go-ops-notify/internal/services"
)

// maxBodyBytes caps request bodies; the largest payload is an event.
const maxBodyBytes = 1 << 20

// RegisterRoutes installs middleware and mounts every endpoint under
// cfg.APIBasePath. clock interprets operator-entered local times; dispatcher
// backs the manual sweep endpoint and may be shared with the cron trigger.
//
// Middleware runs in this order: tracing, request ID, access log, recovery,
// body limit, metrics, gzip, idempotency, rate limit, CORS, security headers.
// Idempotency runs before the limiter so replays are never charged.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, clock *civiltime.Clock, dispatcher handlers.Dispatcher, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{MaskHeaders: []string{"X-API-Key"}}))
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	// promhttp negotiates its own encoding
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	idem := &services.IdempotencyService{DB: db, TTL: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{
		MaxLen: 200,
		Scopes: map[string]string{
			joinPath(apiBase, "/events"): handlers.ScopeEvents,
			joinPath(apiBase, "/todos"):  handlers.ScopeTodos,
		},
	}, idem.Exists))
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		EnablePolicy:    true,
		NoStorePrefixes: []string{joinPath(apiBase, "/push/")},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// liveness
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// reminders is shared so event and to-do writes reschedule through one service
	reminders := services.NewReminderService(db, log.Logger)
	h := handlers.New(handlers.Deps{
		Events: &services.EventService{
			DB:               db,
			Reminders:        reminders,
			Clock:            clock,
			AllDayAnchorHour: cfg.AllDayAnchorHour,
		},
		Todos: &services.TodoService{
			DB:               db,
			Reminders:        reminders,
			Clock:            clock,
			AllDayAnchorHour: cfg.AllDayAnchorHour,
		},
		Reminders:     reminders,
		Subscriptions: &services.SubscriptionService{DB: db},
		Outbox:        &services.OutboxService{DB: db},
		Dispatcher:    dispatcher,
		Reports:       &services.ReportService{DB: db, Clock: clock},
		Idempotency:   idem,
	})

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Events
		api.POST("/events", h.CreateEvent)
		api.PUT("/events/:id", h.UpdateEvent)
		api.DELETE("/events/:id", h.DeleteEvent)
		api.GET("/events/:id/segments", h.EventSegments)

		// To-dos
		api.POST("/todos", h.CreateTodo)
		api.PUT("/todos/:id/done", h.CompleteTodo)
		api.DELETE("/todos/:id", h.DeleteTodo)

		// Reminders
		api.GET("/reminders", h.ListReminders)
		api.POST("/reminders/:id/snooze", h.SnoozeReminder)
		api.POST("/reminders/:id/ack", h.AckReminder)

		// Push
		api.POST("/push/subscriptions", h.RegisterSubscription)
		api.GET("/push/subscriptions", h.ListSubscriptions)
		api.DELETE("/push/subscriptions/:id", h.DeleteSubscription)
		api.POST("/push/broadcast", h.Broadcast)

		// Dispatch and reports
		api.POST("/dispatch/sweep", h.RunSweep)
		api.GET("/reports/daily-hours", h.DailyHours)
	}
}

var (
	corsMethods       = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsAllowHeaders  = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "If-None-Match", middleware.HeaderIdempotencyKey}
	corsExposeHeaders = []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"}
)

// corsMiddleware allows any origin when origins is empty, otherwise only the
// listed ones. Allow-Origin is set up front as well, because gin-contrib/cors
// skips requests without an Origin header and the ops dashboards read
// X-Request-ID from those too.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsAllowHeaders,
		ExposeHeaders: corsExposeHeaders,
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cc),
		}
	}

	cc.AllowOrigins = origins
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); allowed[origin] {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(cc),
	}
}

// limitBody makes body reads past maxBytes fail; handlers then answer 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath builds the full route path gin reports from c.FullPath().
func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}
