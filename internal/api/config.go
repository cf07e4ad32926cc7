package api

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/riverwalk/internal/photostore"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	ServerDBPath    string
	DBDriver        string // database/sql driver name, "sqlite" (default) or "sqlite3"
	ShutdownTimeout time.Duration
	AllowSignup     bool
	BaseURL         string
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	RateLimitAuth  int // /v1/auth/* per IP per minute (default: 10)
	RateLimitWrite int // table and photo writes per API key per minute (default: 600)
	RateLimitRead  int // table reads per API key per minute (default: 1200)
	RateLimitOther int // all other per API key per minute (default: 300)

	MaxBodyBytes   int64         // request body cap (default: 10 MiB)
	MaxPhotoBytes  int           // decoded photo payload cap (default: 8 MiB)
	WSPingInterval time.Duration // presence channel ping period (default: 30s)

	CORSAllowedOrigins []string // allowed browser origins; empty = disabled

	Photos photostore.Config
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		ServerDBPath:    "./data/server.db",
		DBDriver:        "sqlite",
		ShutdownTimeout: 30 * time.Second,
		AllowSignup:     true,
		BaseURL:         "http://localhost:8080",
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitAuth:  10,
		RateLimitWrite: 600,
		RateLimitRead:  1200,
		RateLimitOther: 300,

		MaxBodyBytes:   10 << 20,
		MaxPhotoBytes:  8 << 20,
		WSPingInterval: 30 * time.Second,

		Photos: photostore.Config{Backend: "fs", Dir: "./data/photos"},
	}

	if v := os.Getenv("SYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SYNC_SERVER_DB_PATH"); v != "" {
		cfg.ServerDBPath = v
	}
	if v := os.Getenv("SYNC_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("SYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("SYNC_ALLOW_SIGNUP"); v == "false" || v == "0" {
		cfg.AllowSignup = false
	}
	if v := os.Getenv("SYNC_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("SYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	envInt("SYNC_RATE_LIMIT_AUTH", &cfg.RateLimitAuth)
	envInt("SYNC_RATE_LIMIT_WRITE", &cfg.RateLimitWrite)
	envInt("SYNC_RATE_LIMIT_READ", &cfg.RateLimitRead)
	envInt("SYNC_RATE_LIMIT_OTHER", &cfg.RateLimitOther)
	envInt("SYNC_MAX_PHOTO_BYTES", &cfg.MaxPhotoBytes)
	if v := os.Getenv("SYNC_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("SYNC_WS_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.WSPingInterval = d
		}
	}

	if v := os.Getenv("SYNC_CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	if v := os.Getenv("SYNC_PHOTO_BACKEND"); v != "" {
		cfg.Photos.Backend = v
	}
	if v := os.Getenv("SYNC_PHOTO_DIR"); v != "" {
		cfg.Photos.Dir = v
	}
	cfg.Photos.S3 = photostore.S3Config{
		Bucket:          os.Getenv("SYNC_S3_BUCKET"),
		Region:          os.Getenv("SYNC_S3_REGION"),
		Endpoint:        os.Getenv("SYNC_S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("SYNC_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("SYNC_S3_SECRET_ACCESS_KEY"),
		Prefix:          os.Getenv("SYNC_S3_PREFIX"),
	}
	if v := os.Getenv("SYNC_S3_PATH_STYLE"); v == "true" || v == "1" {
		cfg.Photos.S3.UsePathStyle = true
	}

	return cfg
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
