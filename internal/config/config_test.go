package config

import (
	"strings"
	"testing"
)

func TestLoadAppliesDefaults(testContext *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		testContext.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		testContext.Fatalf("unexpected http address: %s", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "campus.db" {
		testContext.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.ChatHistoryLimit != 5 {
		testContext.Fatalf("unexpected chat history limit: %d", cfg.ChatHistoryLimit)
	}
	if cfg.AuthIssuer != "campus-auth" {
		testContext.Fatalf("unexpected auth issuer: %s", cfg.AuthIssuer)
	}
	if cfg.RedisAddress != "" {
		testContext.Fatalf("expected redis address to default empty, got %s", cfg.RedisAddress)
	}
}

func TestLoadRequiresSigningSecret(testContext *testing.T) {
	configViper := NewViper()

	_, err := Load(configViper)
	if err == nil {
		testContext.Fatal("expected error for missing signing secret")
	}
	if !strings.Contains(err.Error(), "auth.signing_secret") {
		testContext.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsNonPositiveHistoryLimit(testContext *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("chat.history_limit", 0)

	if _, err := Load(configViper); err == nil {
		testContext.Fatal("expected error for zero history limit")
	}
}
