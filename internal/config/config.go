// Package config loads storefront configuration from the environment and
// the pricing rules from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	HTTP     HTTPConfig
	Storage  StorageConfig
	Supabase SupabaseConfig
	Auth     AuthConfig
	Payment  PaymentConfig
	CDN      CDNConfig
	SMTP     SMTPConfig
	Log      LogConfig

	// ShopName appears in e-mail subjects and bodies.
	ShopName string `env:"SHOP_NAME,default=Patisserie"`

	// PricingFile points at the YAML pricing rules.
	PricingFile string `env:"PRICING_FILE,default=config/pricing.yaml"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR,default=:8080"`
	CORSOrigins  string        `env:"CORS_ORIGINS,default=http://localhost:3000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	// PublicBaseURL is used in e-mail links.
	PublicBaseURL string `env:"PUBLIC_BASE_URL,default=http://localhost:3000"`
}

type StorageConfig struct {
	// Backend selects memory or supabase.
	Backend     string `env:"STORAGE_BACKEND,default=memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
}

type SupabaseConfig struct {
	URL        string `env:"SUPABASE_URL"`
	ServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	AnonKey    string `env:"SUPABASE_ANON_KEY"`
}

type AuthConfig struct {
	JWTSecret    string        `env:"JWT_SECRET"`
	TokenTTL     time.Duration `env:"JWT_TTL,default=168h"`
	AdminEmails  string        `env:"ADMIN_EMAILS"`
	CookieSecure bool          `env:"AUTH_COOKIE_SECURE,default=true"`
	OTPPerMinute int           `env:"OTP_REQUESTS_PER_MINUTE,default=3"`
}

type PaymentConfig struct {
	BaseURL       string `env:"RAZORPAY_BASE_URL,default=https://api.razorpay.com/v1"`
	KeyID         string `env:"RAZORPAY_KEY_ID"`
	KeySecret     string `env:"RAZORPAY_KEY_SECRET"`
	WebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`
	Currency      string `env:"PAYMENT_CURRENCY,default=INR"`
	// SweepSchedule is the cron spec for expiring stale checkout sessions.
	SweepSchedule string `env:"CHECKOUT_SWEEP_SCHEDULE,default=@every 1m"`
}

type CDNConfig struct {
	CloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `env:"CLOUDINARY_API_KEY"`
	APISecret string `env:"CLOUDINARY_API_SECRET"`
	Folder    string `env:"CLOUDINARY_FOLDER,default=patisserie"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT,default=587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM,default=Patisserie <orders@localhost>"`
	// ImplicitTLS selects SMTPS (port 465) instead of STARTTLS.
	ImplicitTLS bool `env:"SMTP_IMPLICIT_TLS,default=false"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
	File   string `env:"LOG_FILE"`
}

// Load reads an optional .env file and decodes the environment. A missing
// env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "", "memory":
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	return nil
}

// AdminEmailSet returns the lower-cased admin allowlist.
func (c *Config) AdminEmailSet() map[string]bool {
	return ParseCSVSet(c.Auth.AdminEmails)
}

// CORSOriginList returns the allowed origins.
func (c *Config) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.HTTP.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ParseCSVSet splits a comma separated list into a lower-cased set.
func ParseCSVSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			set[part] = true
		}
	}
	return set
}
