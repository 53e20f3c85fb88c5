package config

import (
	"strings"
	"testing"
)

const validKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_STORE_URL", "postgres://localhost:5432/syncengine")
	t.Setenv("TOKEN_ENCRYPTION_KEY", validKey)
}

func TestLoad(t *testing.T) {
	setRequired(t)
	t.Setenv("COMMERCE_A_API_KEY", "etsy-key")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EtsyAPIKey != "etsy-key" {
		t.Errorf("EtsyAPIKey = %q", cfg.EtsyAPIKey)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr default = %q", cfg.HTTPAddr)
	}
	if cfg.FromEmail != "alerts@craftsight.app" {
		t.Errorf("FromEmail default = %q", cfg.FromEmail)
	}
	if len(cfg.EncryptionKey()) != 32 {
		t.Errorf("EncryptionKey length = %d, want 32", len(cfg.EncryptionKey()))
	}
}

func TestLoadRejectsNonHexKey(t *testing.T) {
	setRequired(t)
	t.Setenv("TOKEN_ENCRYPTION_KEY", "not-hex-at-all")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "not valid hex") {
		t.Errorf("err = %v, want hex decode failure", err)
	}
}

func TestLoadRejectsShortKey(t *testing.T) {
	setRequired(t)
	t.Setenv("TOKEN_ENCRYPTION_KEY", "0011223344")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Errorf("err = %v, want key length failure", err)
	}
}

func TestLoadRequiresDataStoreURL(t *testing.T) {
	t.Setenv("DATA_STORE_URL", "")
	t.Setenv("TOKEN_ENCRYPTION_KEY", validKey)

	if _, err := Load(); err == nil {
		t.Error("expected error when DATA_STORE_URL is unset")
	}
}
