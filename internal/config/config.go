// Package config loads worker and server configuration from the
// environment. A local .env file is honored in development; real
// deployments set variables directly.
package config

import (
	"encoding/hex"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every recognized environment key.
type Config struct {
	DataStoreURL        string `env:"DATA_STORE_URL,required"`
	DataStoreServiceKey string `env:"DATA_STORE_SERVICE_KEY"`

	// TokenEncryptionKey is the 32-byte hex-encoded AES-256-GCM key
	// protecting OAuth credentials at rest.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY,required"`

	EtsyAPIKey       string `env:"COMMERCE_A_API_KEY"`
	ShopifyAPIKey    string `env:"COMMERCE_B_API_KEY"`
	ShopifyAPISecret string `env:"COMMERCE_B_API_SECRET"`

	BeehiivAPIKey        string `env:"NEWSLETTER_API_KEY"`
	BeehiivPublicationID string `env:"NEWSLETTER_PUBLICATION_ID"`
	BeehiivWebhookSecret string `env:"NEWSLETTER_WEBHOOK_SECRET"`
	SubstackURL          string `env:"DOWNSTREAM_NEWSLETTER_URL"`

	// NewsletterOwnerTenant is the tenant that owns newsletter rows in
	// single-tenant newsletter mode.
	NewsletterOwnerTenant string `env:"NEWSLETTER_OWNER_TENANT"`

	NotificationAPIKey string `env:"NOTIFICATION_API_KEY"`
	FromEmail          string `env:"FROM_EMAIL,default=alerts@craftsight.app"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`
	Env      string `env:"ENV,default=dev"`
}

// Load reads .env (if present) and decodes the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	key, err := hex.DecodeString(c.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return nil
}

// EncryptionKey returns the decoded AES key. validate() has already
// checked length and encoding.
func (c *Config) EncryptionKey() []byte {
	key, _ := hex.DecodeString(c.TokenEncryptionKey)
	return key
}
