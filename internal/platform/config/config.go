package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr              string `yaml:"addr"`
	Environment       string `yaml:"environment"`
	DatabaseURL       string `yaml:"database_url"`
	JWTSecret         string `yaml:"jwt_secret"`
	DataEncryptionKey string `yaml:"data_encryption_key"`
	FrontendDir       string `yaml:"frontend_dir"`
	UploadDir         string `yaml:"upload_dir"`
	LogLevel          string `yaml:"log_level"`
	LogFormat         string `yaml:"log_format"`

	// Widget delivery.
	DeploymentOrigin   string        `yaml:"deployment_origin"`
	WidgetParentOrigin string        `yaml:"widget_parent_origin"`
	StrictPII          bool          `yaml:"strict_pii"`
	WidgetRetryCount   int           `yaml:"widget_retry_count"`
	WidgetRetryDelay   time.Duration `yaml:"widget_retry_delay"`

	RedisURL         string        `yaml:"redis_url"`
	TemplateCacheTTL time.Duration `yaml:"template_cache_ttl"`

	EmailEnabled bool   `yaml:"email_enabled"`
	EmailFrom    string `yaml:"email_from"`
	NotifyEmail  string `yaml:"notify_email"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPUseTLS   bool   `yaml:"smtp_use_tls"`
	ResendAPIKey string `yaml:"resend_api_key"`

	RunMigrations     bool   `yaml:"run_migrations"`
	RunSeed           bool   `yaml:"run_seed"`
	SeedAdminEmail    string `yaml:"seed_admin_email"`
	SeedAdminPassword string `yaml:"seed_admin_password"`

	MaxBodyBytes             int64 `yaml:"max_body_bytes"`
	RateLimitPerMinute       int   `yaml:"rate_limit_per_minute"`
	PublicRateLimitPerMinute int   `yaml:"public_rate_limit_per_minute"`

	DPASweepInterval time.Duration `yaml:"dpa_sweep_interval"`
	DPAExpiryWarning time.Duration `yaml:"dpa_expiry_warning"`
	MetricsEnabled   bool          `yaml:"metrics_enabled"`
}

// Load reads the environment, then overlays CONFIG_FILE when it is set.
func Load() (Config, error) {
	cfg := FromEnv()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func FromEnv() Config {
	return Config{
		Addr:                     getEnv("APP_ADDR", ":8080"),
		Environment:              getEnv("APP_ENV", "development"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		JWTSecret:                getEnv("JWT_SECRET", ""),
		DataEncryptionKey:        getEnv("DATA_ENCRYPTION_KEY", ""),
		FrontendDir:              getEnv("FRONTEND_DIR", "frontend/dist"),
		UploadDir:                getEnv("UPLOAD_DIR", "uploads"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFormat:                getEnv("LOG_FORMAT", "json"),
		DeploymentOrigin:         strings.TrimRight(getEnv("DEPLOYMENT_ORIGIN", "http://localhost:8080"), "/"),
		WidgetParentOrigin:       getEnv("WIDGET_PARENT_ORIGIN", ""),
		StrictPII:                getEnvBool("STRICT_PII", true),
		WidgetRetryCount:         getEnvInt("WIDGET_RETRY_COUNT", 1),
		WidgetRetryDelay:         getEnvDuration("WIDGET_RETRY_DELAY", time.Second),
		RedisURL:                 getEnv("REDIS_URL", ""),
		TemplateCacheTTL:         getEnvDuration("TEMPLATE_CACHE_TTL", 5*time.Minute),
		EmailEnabled:             getEnvBool("EMAIL_ENABLED", false),
		EmailFrom:                getEnv("EMAIL_FROM", "no-reply@example.com"),
		NotifyEmail:              getEnv("NOTIFY_EMAIL", ""),
		SMTPHost:                 getEnv("SMTP_HOST", ""),
		SMTPPort:                 getEnvInt("SMTP_PORT", 587),
		SMTPUser:                 getEnv("SMTP_USER", ""),
		SMTPPassword:             getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:               getEnvBool("SMTP_USE_TLS", true),
		ResendAPIKey:             getEnv("RESEND_API_KEY", ""),
		RunMigrations:            getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:                  getEnvBool("RUN_SEED", true),
		SeedAdminEmail:           getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword:        getEnv("SEED_ADMIN_PASSWORD", ""),
		MaxBodyBytes:             int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:       getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		PublicRateLimitPerMinute: getEnvInt("PUBLIC_RATE_LIMIT_PER_MINUTE", 120),
		DPASweepInterval:         getEnvDuration("DPA_SWEEP_INTERVAL", 24*time.Hour),
		DPAExpiryWarning:         getEnvDuration("DPA_EXPIRY_WARNING", 30*24*time.Hour),
		MetricsEnabled:           getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	origin, err := url.Parse(c.DeploymentOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" || (origin.Path != "" && origin.Path != "/") {
		return fmt.Errorf("DEPLOYMENT_ORIGIN must be a scheme://host[:port] origin")
	}
	if c.IsProduction() {
		if origin.Scheme != "https" {
			return fmt.Errorf("DEPLOYMENT_ORIGIN must use https in production")
		}
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	if c.WidgetRetryCount < 0 || c.WidgetRetryCount > 5 {
		return fmt.Errorf("WIDGET_RETRY_COUNT must be between 0 and 5")
	}
	if c.WidgetRetryDelay < 0 {
		return fmt.Errorf("WIDGET_RETRY_DELAY must not be negative")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" && c.ResendAPIKey == "" {
		return fmt.Errorf("SMTP_HOST or RESEND_API_KEY must be set when EMAIL_ENABLED is true")
	}
	return nil
}
