// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// webhook signature verification, CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - The webhook is the hot path: signature checks are route-scoped so the
//     operational API stays reachable with a misconfigured app secret
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/config"
	"github.com/gramsetu/citizen-assist-backend/internal/geocode"
	"github.com/gramsetu/citizen-assist-backend/internal/http/handlers"
	"github.com/gramsetu/citizen-assist-backend/internal/http/middleware"
	"github.com/gramsetu/citizen-assist-backend/internal/inference"
	"github.com/gramsetu/citizen-assist-backend/internal/messaging"
	"github.com/gramsetu/citizen-assist-backend/internal/search"
	"github.com/gramsetu/citizen-assist-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: the WhatsApp webhook pair, the operational API under /api/v1, and
// the health/metrics endpoints.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing (citizen ids are
//     phone numbers)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip response compression
//  7. Metrics
//  8. Rate limiter (per citizen/IP)
//  9. CORS and security headers
//
// Webhook signature verification is applied only to POST /webhook.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, idx search.Index, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB); webhook batches are far smaller
	r.Use(limitBody(1 << 20))

	// 6) Compress dashboard responses (chat histories get long)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per citizen/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCitizenOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← clients/db/index
	llm := inference.NewClient(cfg.Inference.BaseURL, cfg.Inference.APIKey, cfg.Inference.Model, cfg.Inference.Timeout)
	resolver := geocode.NewValidator(
		geocode.NewHTTPProvider(cfg.Geocode.BaseURL, cfg.Geocode.APIKey, cfg.Geocode.Timeout),
		cfg.Boundary,
		cfg.Geocode.CacheTTL,
	)
	sender := messaging.NewClient(
		cfg.WhatsApp.BaseURL,
		cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.AccessToken,
		cfg.WhatsApp.Timeout,
		cfg.WhatsApp.MaxTextRunes,
		cfg.WhatsApp.HourlySendCap,
	)

	regSvc := services.NewRegistrationService(db, llm, llm, resolver, llm,
		cfg.ConfidenceThreshold, cfg.MaxAttempts, cfg.DefaultLanguage)
	regSvc.MaxMessageRunes = cfg.WhatsApp.MaxTextRunes
	qaSvc := services.NewQAService(db, idx, cfg.AnswerThreshold, llm)

	h := handlers.New(db, regSvc, qaSvc, sender, cfg.WhatsApp.VerifyToken, cfg.DedupTTL)

	// Webhook endpoints (POST payloads are HMAC-authenticated)
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", middleware.VerifySignature(cfg.WhatsApp.AppSecret), h.ReceiveWebhook)

	// Operational API
	api := r.Group("/api/v1")
	{
		api.GET("/citizens/:id/messages", h.ListCitizenMessages)
		api.GET("/stats", h.GetStats)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
