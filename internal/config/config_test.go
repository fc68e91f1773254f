package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("FORKLINE_AUTH_SECRET", "test-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.Auth.TokenTTL.Std() != 30*time.Minute {
		t.Fatalf("unexpected ttl: %v", cfg.Auth.TokenTTL)
	}
	if len(cfg.CompilePublicPaths()) == 0 {
		t.Fatal("expected default public paths")
	}
}

func TestLoadYAMLFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("http_addr: \":9090\"\nauth:\n  secret: file-secret\n  token_ttl: 1h\npublic_paths:\n  - '^/ping$'\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FORKLINE_AUTH_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("file value not applied: %s", cfg.HTTPAddr)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Fatalf("env override not applied: %s", cfg.Auth.Secret)
	}
	if cfg.Auth.TokenTTL.Std() != time.Hour {
		t.Fatalf("unexpected ttl: %v", cfg.Auth.TokenTTL)
	}
	if len(cfg.PublicPaths) != 1 || cfg.PublicPaths[0] != "^/ping$" {
		t.Fatalf("unexpected public paths: %v", cfg.PublicPaths)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("FORKLINE_AUTH_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error without secret")
	}
}

func TestLoadRejectsBadPattern(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("auth:\n  secret: s\npublic_paths:\n  - '^/('\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid regexp")
	}
}
