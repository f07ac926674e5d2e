package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

const (
	EmailProviderSMTP    = "smtp"
	EmailProviderWebhook = "webhook"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	ServiceName string `env:"SERVICE_NAME,default=notification-dispatcher"`

	HighValueThreshold string `env:"HIGH_VALUE_THRESHOLD,default=50000"`
	CurrencySymbol     string `env:"CURRENCY_SYMBOL,default=₹"`

	EmailProvider string `env:"EMAIL_PROVIDER,default=smtp"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT,default=587"`
	SMTPUsername  string `env:"SMTP_USERNAME"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	SMTPFrom      string `env:"SMTP_FROM,default=noreply@banking.com"`
	MailRelayURL  string `env:"MAIL_RELAY_URL"`

	DeliveryMaxAttempts       int     `env:"DELIVERY_MAX_ATTEMPTS,default=3"`
	DeliveryBackoffMS         int     `env:"DELIVERY_BACKOFF_MS,default=2000"`
	DeliveryBackoffMultiplier float64 `env:"DELIVERY_BACKOFF_MULTIPLIER,default=2"`
	DeliveryTimeoutMS         int     `env:"DELIVERY_TIMEOUT_MS,default=30000"`
	RateLimitPerSec           int     `env:"RATE_LIMIT_PER_SEC,default=100"`

	ConsumerPrefetch    int `env:"CONSUMER_PREFETCH,default=8"`
	ConsumerConcurrency int `env:"CONSUMER_CONCURRENCY,default=2"`
	DedupTTLSeconds     int `env:"DEDUP_TTL_SECONDS,default=86400"`

	ResweepIntervalSeconds        int `env:"RESWEEP_INTERVAL_SECONDS,default=0"`
	PendingReclaimAfterSeconds    int `env:"PENDING_RECLAIM_AFTER_SECONDS,default=900"`
	PendingReclaimIntervalSeconds int `env:"PENDING_RECLAIM_INTERVAL_SECONDS,default=60"`

	ContactSealKey     string `env:"CONTACT_SEAL_KEY"`
	CustomerServiceURL string `env:"CUSTOMER_SERVICE_URL"`
	OTLPEndpoint       string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.EmailProvider = strings.ToLower(strings.TrimSpace(cfg.EmailProvider))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	threshold, err := domain.ParseAmount(c.HighValueThreshold)
	if err != nil {
		errs = append(errs, fmt.Errorf("HIGH_VALUE_THRESHOLD: %w", err))
	} else if threshold.Sign() < 0 {
		errs = append(errs, errors.New("HIGH_VALUE_THRESHOLD must not be negative"))
	}

	switch c.EmailProvider {
	case EmailProviderSMTP:
		if strings.TrimSpace(c.SMTPHost) == "" {
			errs = append(errs, errors.New("SMTP_HOST is required when EMAIL_PROVIDER=smtp"))
		}
		if c.SMTPPort <= 0 {
			errs = append(errs, fmt.Errorf("SMTP_PORT must be positive, got %d", c.SMTPPort))
		}
	case EmailProviderWebhook:
		if strings.TrimSpace(c.MailRelayURL) == "" {
			errs = append(errs, errors.New("MAIL_RELAY_URL is required when EMAIL_PROVIDER=webhook"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER must be %q or %q, got %q", EmailProviderSMTP, EmailProviderWebhook, c.EmailProvider))
	}

	if c.DeliveryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be >= 1, got %d", c.DeliveryMaxAttempts))
	}
	if c.DeliveryBackoffMS < 0 {
		errs = append(errs, fmt.Errorf("DELIVERY_BACKOFF_MS must not be negative, got %d", c.DeliveryBackoffMS))
	}
	if c.DeliveryBackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("DELIVERY_BACKOFF_MULTIPLIER must be >= 1, got %v", c.DeliveryBackoffMultiplier))
	}
	if c.RateLimitPerSec < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_SEC must be >= 1, got %d", c.RateLimitPerSec))
	}
	if c.ResweepIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("RESWEEP_INTERVAL_SECONDS must not be negative, got %d", c.ResweepIntervalSeconds))
	}

	return errors.Join(errs...)
}

func (c *Config) Threshold() domain.Amount {
	return domain.MustParseAmount(c.HighValueThreshold)
}

func (c *Config) DeliveryBackoff() time.Duration {
	return time.Duration(c.DeliveryBackoffMS) * time.Millisecond
}

func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutMS) * time.Millisecond
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

func (c *Config) ResweepInterval() time.Duration {
	return time.Duration(c.ResweepIntervalSeconds) * time.Second
}

func (c *Config) PendingReclaimAfter() time.Duration {
	return time.Duration(c.PendingReclaimAfterSeconds) * time.Second
}

func (c *Config) PendingReclaimInterval() time.Duration {
	return time.Duration(c.PendingReclaimIntervalSeconds) * time.Second
}
