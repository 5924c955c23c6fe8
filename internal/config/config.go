// Package config resolves runtime configuration from CORAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"coralrefuge.org/internal/pricing"
)

// Config captures runtime configuration for the API server.
type Config struct {
	ListenAddress       string
	GRPCListenAddress   string
	DatabaseDSN         string
	PublicBaseURL       string
	Currency            string
	MaxHectares         int
	CatalogPath         string
	StripeSecretKey     string
	StripeWebhookSecret string
	ResendAPIKey        string
	MailFrom            string
	MailReplyTo         string
	AuthSecret          string
	AdminPasswordHash   string
	DeliveryTimeout     time.Duration
	CertificateBucket   string
	AWSRegion           string
	RateBurst           int
	RatePerSecond       int
	LogLevel            string
	AllowedOrigins      []string
}

const (
	envListen          = "CORAL_LISTEN"
	envGRPCListen      = "CORAL_GRPC_LISTEN"
	envDSN             = "CORAL_PG_DSN"
	envPublicBaseURL   = "CORAL_PUBLIC_BASE_URL"
	envCurrency        = "CORAL_CURRENCY"
	envMaxHectares     = "CORAL_MAX_HECTARES"
	envCatalogPath     = "CORAL_CATALOG_PATH"
	envStripeKey       = "CORAL_STRIPE_SECRET_KEY"
	envStripeWebhook   = "CORAL_STRIPE_WEBHOOK_SECRET"
	envResendKey       = "CORAL_RESEND_API_KEY"
	envMailFrom        = "CORAL_MAIL_FROM"
	envMailReplyTo     = "CORAL_MAIL_REPLY_TO"
	envAuthSecret      = "CORAL_AUTH_SECRET"
	envAdminHash       = "CORAL_ADMIN_PASSWORD_HASH"
	envDeliveryTimeout = "CORAL_DELIVERY_TIMEOUT"
	envCertBucket      = "CORAL_CERT_BUCKET"
	envAWSRegion       = "AWS_REGION"
	envRateBurst       = "CORAL_RATE_BURST"
	envRatePerSec      = "CORAL_RATE_PER_SEC"
	envLogLevel        = "CORAL_LOG_LEVEL"
	envAllowedOrigins  = "CORAL_ALLOWED_ORIGINS"
)

// Load resolves configuration from environment variables with sane defaults
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddress:       getenvDefault(envListen, ":8080"),
		GRPCListenAddress:   strings.TrimSpace(os.Getenv(envGRPCListen)),
		DatabaseDSN:         strings.TrimSpace(os.Getenv(envDSN)),
		PublicBaseURL:       strings.TrimRight(getenvDefault(envPublicBaseURL, "http://localhost:8080"), "/"),
		Currency:            strings.ToLower(getenvDefault(envCurrency, "usd")),
		CatalogPath:         strings.TrimSpace(os.Getenv(envCatalogPath)),
		StripeSecretKey:     strings.TrimSpace(os.Getenv(envStripeKey)),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv(envStripeWebhook)),
		ResendAPIKey:        strings.TrimSpace(os.Getenv(envResendKey)),
		MailFrom:            getenvDefault(envMailFrom, "Coral Refuge <certificates@coralrefuge.org>"),
		MailReplyTo:         strings.TrimSpace(os.Getenv(envMailReplyTo)),
		AuthSecret:          strings.TrimSpace(os.Getenv(envAuthSecret)),
		AdminPasswordHash:   strings.TrimSpace(os.Getenv(envAdminHash)),
		CertificateBucket:   strings.TrimSpace(os.Getenv(envCertBucket)),
		AWSRegion:           getenvDefault(envAWSRegion, "us-east-1"),
		LogLevel:            getenvDefault(envLogLevel, "info"),
		AllowedOrigins:      splitList(os.Getenv(envAllowedOrigins)),
	}

	var errs []error
	var err error
	if cfg.MaxHectares, err = parseIntDefault(envMaxHectares, pricing.DefaultMaxHectares); err != nil {
		errs = append(errs, err)
	}
	if cfg.DeliveryTimeout, err = parseDurationDefault(envDeliveryTimeout, 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateBurst, err = parseIntDefault(envRateBurst, 20); err != nil {
		errs = append(errs, err)
	}
	if cfg.RatePerSecond, err = parseIntDefault(envRatePerSec, 10); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an absolute http(s) URL", envPublicBaseURL))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("%s must be a 3-letter ISO code", envCurrency))
	}
	if c.MaxHectares < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", envMaxHectares))
	}
	if c.DeliveryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", envDeliveryTimeout))
	}
	if c.RateBurst < 1 || c.RatePerSecond < 1 {
		errs = append(errs, fmt.Errorf("%s and %s must be at least 1", envRateBurst, envRatePerSec))
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		errs = append(errs, fmt.Errorf("%s is required when %s is set", envStripeWebhook, envStripeKey))
	}
	if (c.AuthSecret == "") != (c.AdminPasswordHash == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", envAuthSecret, envAdminHash))
	}
	return errors.Join(errs...)
}

// AdminEnabled reports whether the admin API can issue tokens.
func (c *Config) AdminEnabled() bool {
	return c.AuthSecret != "" && c.AdminPasswordHash != ""
}

func getenvDefault(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func parseIntDefault(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return n, nil
}

func parseDurationDefault(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
