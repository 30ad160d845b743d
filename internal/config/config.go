// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, object storage, the
// extraction and chain integrations, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-recycle-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// S3Config defines the object-storage bucket receipt images live in.
type S3Config struct {
	Region          string        // S3_REGION
	Bucket          string        // S3_BUCKET
	Endpoint        string        // S3_ENDPOINT (empty for AWS; set for MinIO et al.)
	AccessKeyID     string        // S3_ACCESS_KEY_ID
	SecretAccessKey string        // S3_SECRET_ACCESS_KEY
	UsePathStyle    bool          // S3_USE_PATH_STYLE (true for MinIO)
	PresignTTL      time.Duration // S3_PRESIGN_TTL
}

// ExtractionConfig defines the receipt-analysis HTTP integration.
type ExtractionConfig struct {
	URL     string        // EXTRACTION_URL
	APIKey  string        // EXTRACTION_API_KEY
	Timeout time.Duration // EXTRACTION_TIMEOUT
	Mock    bool          // EXTRACTION_MOCK (fabricate results; dev only)
}

// ChainConfig defines the VeChain integration for reward distributions.
type ChainConfig struct {
	NodeURL         string        // CHAIN_NODE_URL (REST endpoint)
	SponsorURL      string        // CHAIN_SPONSOR_URL (fee-delegation co-signer)
	OriginKeyHex    string        // CHAIN_ORIGIN_KEY (hex private key, no 0x)
	ContractAddress string        // CHAIN_REWARDS_CONTRACT
	AppID           string        // CHAIN_APP_ID (bytes32 hex)
	Timeout         time.Duration // CHAIN_TIMEOUT
	Mock            bool          // CHAIN_MOCK (no network, deterministic txs)
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

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath              string   // SQLite path
	AuthSecret          string   // HMAC key for bearer JWTs; empty = permissive dev mode
	AllowedContentTypes []string // upload allow-list

	// Integrations
	S3         S3Config
	Extraction ExtractionConfig
	Chain      ChainConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:              getenv("DB_PATH", "app.db"),
		AuthSecret:          getenv("AUTH_SECRET", ""),
		AllowedContentTypes: splitCSV(getenv("ALLOWED_CONTENT_TYPES", "image/jpeg,image/png,image/webp")),

		// Object storage
		S3: S3Config{
			Region:          getenv("S3_REGION", "eu-west-1"),
			Bucket:          getenv("S3_BUCKET", "receipts"),
			Endpoint:        getenv("S3_ENDPOINT", ""),
			AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getbool("S3_USE_PATH_STYLE", false),
			PresignTTL:      getdur("S3_PRESIGN_TTL", 15*time.Minute),
		},

		// Receipt extraction
		Extraction: ExtractionConfig{
			URL:     getenv("EXTRACTION_URL", ""),
			APIKey:  getenv("EXTRACTION_API_KEY", ""),
			Timeout: getdur("EXTRACTION_TIMEOUT", 30*time.Second),
			// Defaults to mock so a bare environment boots for local work.
			Mock: getbool("EXTRACTION_MOCK", true),
		},

		// Chain
		Chain: ChainConfig{
			NodeURL:         getenv("CHAIN_NODE_URL", ""),
			SponsorURL:      getenv("CHAIN_SPONSOR_URL", ""),
			OriginKeyHex:    getenv("CHAIN_ORIGIN_KEY", ""),
			ContractAddress: getenv("CHAIN_REWARDS_CONTRACT", ""),
			AppID:           getenv("CHAIN_APP_ID", ""),
			Timeout:         getdur("CHAIN_TIMEOUT", 15*time.Second),
			Mock:            getbool("CHAIN_MOCK", true),
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

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-recycle-backend"),
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
	for i, ct := range cfg.AllowedContentTypes {
		cfg.AllowedContentTypes[i] = strings.ToLower(ct)
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
	if len(cfg.AllowedContentTypes) == 0 {
		return cfg, errors.New("ALLOWED_CONTENT_TYPES must not be empty")
	}
	if strings.TrimSpace(cfg.S3.Bucket) == "" {
		return cfg, errors.New("S3_BUCKET must not be empty")
	}
	if cfg.S3.PresignTTL <= 0 {
		return cfg, errors.New("S3_PRESIGN_TTL must be > 0")
	}
	if cfg.Extraction.Timeout <= 0 {
		return cfg, errors.New("EXTRACTION_TIMEOUT must be > 0")
	}
	if !cfg.Extraction.Mock && strings.TrimSpace(cfg.Extraction.URL) == "" {
		return cfg, errors.New("EXTRACTION_URL required unless EXTRACTION_MOCK is set")
	}
	if !cfg.Chain.Mock {
		if strings.TrimSpace(cfg.Chain.NodeURL) == "" ||
			strings.TrimSpace(cfg.Chain.SponsorURL) == "" ||
			strings.TrimSpace(cfg.Chain.OriginKeyHex) == "" ||
			strings.TrimSpace(cfg.Chain.ContractAddress) == "" ||
			strings.TrimSpace(cfg.Chain.AppID) == "" {
			return cfg, errors.New("chain settings required unless CHAIN_MOCK is set")
		}
	}
	if cfg.Chain.Timeout <= 0 {
		return cfg, errors.New("CHAIN_TIMEOUT must be > 0")
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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
