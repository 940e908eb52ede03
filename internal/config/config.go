package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	BaseURL       string `validate:"required,url"`
	LoginEmail    string `validate:"omitempty,email"`
	LoginPassword string

	// Mailbox account: MailboxUser+<tag>@MailboxDomain receives the suite's mail.
	MailboxUser          string `validate:"required"`
	MailboxDomain        string `validate:"required,hostname"`
	GmailClientID        string `validate:"required_without=MailboxAPIURL"`
	GmailClientSecret    string `validate:"required_without=MailboxAPIURL"`
	GmailRefreshToken    string `validate:"required_without=MailboxAPIURL"`
	MailboxAPIURL        string `validate:"omitempty,url"`
	MailboxAPIToken      string
	StripeSecretKey      string `validate:"omitempty,startswith=sk_test_|startswith=rk_test_"`
	StripeAPIURL         string `validate:"omitempty,url"`
	StripeCorrelationKey string `validate:"required"`
	StripePriceID        string

	LedgerDatabaseURL string

	PollTimeout  time.Duration `validate:"gt=0"`
	PollInterval time.Duration `validate:"gt=0,ltefield=PollTimeout"`
	LogLevel     string        `validate:"oneof=debug info warn error"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	timeout, err := getDuration("POLL_TIMEOUT", 40*time.Second)
	if err != nil {
		return nil, err
	}
	interval, err := getDuration("POLL_INTERVAL", 3*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseURL:              getEnv("PENPOT_BASE_URL", "http://localhost:3449"),
		LoginEmail:           getEnv("PENPOT_LOGIN_EMAIL", ""),
		LoginPassword:        getEnv("PENPOT_LOGIN_PASSWORD", ""),
		MailboxUser:          getEnv("MAILBOX_USER", ""),
		MailboxDomain:        getEnv("MAILBOX_DOMAIN", "gmail.com"),
		GmailClientID:        getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret:    getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRefreshToken:    getEnv("GMAIL_REFRESH_TOKEN", ""),
		MailboxAPIURL:        getEnv("MAILBOX_API_URL", ""),
		MailboxAPIToken:      getEnv("MAILBOX_API_TOKEN", ""),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeAPIURL:         getEnv("STRIPE_API_URL", ""),
		StripeCorrelationKey: getEnv("STRIPE_CORRELATION_KEY", "penpotId"),
		StripePriceID:        getEnv("STRIPE_PRICE_ID", ""),
		LedgerDatabaseURL:    getEnv("LEDGER_DATABASE_URL", ""),
		PollTimeout:          timeout,
		PollInterval:         interval,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// StubConfig configures the local mailbox stub server.
type StubConfig struct {
	Port     string `validate:"required,numeric"`
	Token    string
	LogLevel string `validate:"oneof=debug info warn error"`
}

// LoadStub reads the mailbox stub's settings.
func LoadStub() (*StubConfig, error) {
	_ = godotenv.Load()

	cfg := &StubConfig{
		Port:     getEnv("MAILSTUB_PORT", "8025"),
		Token:    getEnv("MAILSTUB_TOKEN", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SweeperConfig configures the fixture sweeper.
type SweeperConfig struct {
	StripeSecretKey   string        `validate:"required,startswith=sk_test_|startswith=rk_test_"`
	StripeAPIURL      string        `validate:"omitempty,url"`
	LedgerDatabaseURL string        `validate:"required"`
	OlderThan         time.Duration `validate:"gte=0"`
	LogLevel          string        `validate:"oneof=debug info warn error"`
}

// LoadSweeper reads the sweeper's settings.
func LoadSweeper() (*SweeperConfig, error) {
	_ = godotenv.Load()

	olderThan, err := getDuration("SWEEP_OLDER_THAN", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &SweeperConfig{
		StripeSecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
		StripeAPIURL:      getEnv("STRIPE_API_URL", ""),
		LedgerDatabaseURL: getEnv("LEDGER_DATABASE_URL", ""),
		OlderThan:         olderThan,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints. Load calls it; tests building a Config by hand can too.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HasBilling reports whether a Stripe test key is configured.
func (c *Config) HasBilling() bool {
	return c.StripeSecretKey != ""
}

// UsesMailStub reports whether mail is read from a stub provider instead of Gmail.
func (c *Config) UsesMailStub() bool {
	return c.MailboxAPIURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
