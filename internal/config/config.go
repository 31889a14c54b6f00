// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, the registration
// confidence gate, the geographic service boundary, provider endpoints, rate
// limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "citizen-assist-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BoundaryConfig is the rectangular geographic service area. A geocoded
// village whose coordinates fall outside this rectangle is rejected.
// Defaults cover Pune district, Maharashtra.
type BoundaryConfig struct {
	MinLat float64 // BOUNDARY_MIN_LAT
	MaxLat float64 // BOUNDARY_MAX_LAT
	MinLng float64 // BOUNDARY_MIN_LNG
	MaxLng float64 // BOUNDARY_MAX_LNG

	District string // BOUNDARY_DISTRICT, admin level 2 name used in geocode scoring
	Region   string // BOUNDARY_REGION, admin level 1 name used in geocode scoring
	Country  string // BOUNDARY_COUNTRY
}

// Contains reports whether (lat, lng) lies inside the rectangle (inclusive).
func (b BoundaryConfig) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// GeocodeConfig configures the geocoding provider client and its cache.
type GeocodeConfig struct {
	BaseURL  string        // GEOCODE_BASE_URL
	APIKey   string        // GEOCODE_API_KEY
	Timeout  time.Duration // GEOCODE_TIMEOUT, per-lookup HTTP deadline
	CacheTTL time.Duration // GEOCODE_CACHE_TTL, success-entry lifetime
}

// InferenceConfig configures the structured inference (LLM) provider client.
type InferenceConfig struct {
	BaseURL string        // INFERENCE_BASE_URL
	APIKey  string        // INFERENCE_API_KEY
	Model   string        // INFERENCE_MODEL
	Timeout time.Duration // INFERENCE_TIMEOUT
}

// WhatsAppConfig configures the messaging transport client and webhook.
type WhatsAppConfig struct {
	BaseURL       string        // WA_BASE_URL (Graph-style API root)
	PhoneNumberID string        // WA_PHONE_NUMBER_ID
	AccessToken   string        // WA_ACCESS_TOKEN
	VerifyToken   string        // WA_VERIFY_TOKEN, webhook subscription handshake
	AppSecret     string        // WA_APP_SECRET, HMAC key for payload signatures
	Timeout       time.Duration // WA_TIMEOUT
	MaxTextRunes  int           // WA_MAX_TEXT_RUNES, split threshold per message part
	HourlySendCap int           // WA_HOURLY_SEND_CAP, outbound messages per hour (0 = unlimited)
}

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

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath              string  // SQLite path
	KnowledgePath       string  // Markdown knowledge base for the Q&A phase
	AnswerThreshold     float64 // Q&A retrieval confidence threshold [0,1]
	ConfidenceThreshold float64 // registration acceptance gate (0,1]
	MaxAttempts         int     // clarifications per state before escalation
	DefaultLanguage     string  // BCP-47 fallback for replies

	// Registration collaborators
	Boundary  BoundaryConfig
	Geocode   GeocodeConfig
	Inference InferenceConfig
	WhatsApp  WhatsAppConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Webhook dedup
	DedupTTL time.Duration // how long a processed transport message ID is remembered

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:              getenv("DB_PATH", "app.db"),
		KnowledgePath:       getenv("KNOWLEDGE_PATH", "data/knowledge.md"),
		AnswerThreshold:     getfloat("ANSWER_THRESHOLD", 0.32),
		ConfidenceThreshold: getfloat("CONFIDENCE_THRESHOLD", 0.7),
		MaxAttempts:         getint("MAX_ATTEMPTS", 5),
		DefaultLanguage:     getenv("DEFAULT_LANGUAGE", "en"),

		// Geographic service area (Pune district defaults)
		Boundary: BoundaryConfig{
			MinLat:   getfloat("BOUNDARY_MIN_LAT", 17.85),
			MaxLat:   getfloat("BOUNDARY_MAX_LAT", 19.40),
			MinLng:   getfloat("BOUNDARY_MIN_LNG", 73.25),
			MaxLng:   getfloat("BOUNDARY_MAX_LNG", 75.15),
			District: getenv("BOUNDARY_DISTRICT", "Pune"),
			Region:   getenv("BOUNDARY_REGION", "Maharashtra"),
			Country:  getenv("BOUNDARY_COUNTRY", "India"),
		},

		Geocode: GeocodeConfig{
			BaseURL:  getenv("GEOCODE_BASE_URL", "https://maps.googleapis.com/maps/api/geocode"),
			APIKey:   getenv("GEOCODE_API_KEY", ""),
			Timeout:  getdur("GEOCODE_TIMEOUT", 10*time.Second),
			CacheTTL: getdur("GEOCODE_CACHE_TTL", 24*time.Hour),
		},

		Inference: InferenceConfig{
			BaseURL: getenv("INFERENCE_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getenv("INFERENCE_API_KEY", ""),
			Model:   getenv("INFERENCE_MODEL", "gpt-4o-mini"),
			Timeout: getdur("INFERENCE_TIMEOUT", 30*time.Second),
		},

		WhatsApp: WhatsAppConfig{
			BaseURL:       getenv("WA_BASE_URL", "https://graph.facebook.com/v19.0"),
			PhoneNumberID: getenv("WA_PHONE_NUMBER_ID", ""),
			AccessToken:   getenv("WA_ACCESS_TOKEN", ""),
			VerifyToken:   getenv("WA_VERIFY_TOKEN", ""),
			AppSecret:     getenv("WA_APP_SECRET", ""),
			Timeout:       getdur("WA_TIMEOUT", 15*time.Second),
			MaxTextRunes:  getint("WA_MAX_TEXT_RUNES", 4096),
			HourlySendCap: getint("WA_HOURLY_SEND_CAP", 0),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Webhook dedup
		DedupTTL: getdur("DEDUP_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "citizen-assist-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.KnowledgePath) == "" {
		return cfg, errors.New("KNOWLEDGE_PATH must not be empty")
	}
	if cfg.AnswerThreshold < 0 || cfg.AnswerThreshold > 1 {
		return cfg, errors.New("ANSWER_THRESHOLD must be between 0 and 1")
	}
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold >= 1 {
		return cfg, errors.New("CONFIDENCE_THRESHOLD must be in (0,1)")
	}
	if cfg.MaxAttempts < 1 {
		return cfg, errors.New("MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Boundary.MinLat >= cfg.Boundary.MaxLat {
		return cfg, errors.New("BOUNDARY_MIN_LAT must be < BOUNDARY_MAX_LAT")
	}
	if cfg.Boundary.MinLng >= cfg.Boundary.MaxLng {
		return cfg, errors.New("BOUNDARY_MIN_LNG must be < BOUNDARY_MAX_LNG")
	}
	if cfg.Geocode.Timeout <= 0 || cfg.Inference.Timeout <= 0 || cfg.WhatsApp.Timeout <= 0 {
		return cfg, errors.New("provider timeouts must be positive durations")
	}
	if cfg.Geocode.CacheTTL <= 0 {
		return cfg, errors.New("GEOCODE_CACHE_TTL must be > 0")
	}
	if cfg.WhatsApp.MaxTextRunes < 1 {
		return cfg, errors.New("WA_MAX_TEXT_RUNES must be >= 1")
	}
	if cfg.WhatsApp.HourlySendCap < 0 {
		return cfg, errors.New("WA_HOURLY_SEND_CAP must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.DedupTTL <= 0 {
		return cfg, errors.New("DEDUP_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
