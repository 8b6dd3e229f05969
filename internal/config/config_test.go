package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Transport = "udp"
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for gateway.transport")
	}
}

func TestValidateRejectsBadTheme(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UI.Theme = "neon"
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for ui.theme")
	}
}

func TestLoadOptionalMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	cfg, err := LoadOptional(path)
	if err != nil {
		t.Fatalf("load optional error: %v", err)
	}
	if cfg.UI.SplashMS != 1800 {
		t.Fatalf("unexpected default splash: %d", cfg.UI.SplashMS)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Gateway.Transport = "ws"
	cfg.Node.Peers = []PeerConfig{{ID: "cofeabc", Inbox: "/tmp/inbox"}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if got.Gateway.Transport != "ws" || len(got.Node.Peers) != 1 || got.Node.Peers[0].ID != "cofeabc" {
		t.Fatalf("unexpected config: %#v", got)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ui:\n  theme: light\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.UI.Theme != "light" || cfg.Gateway.Address != "127.0.0.1:7400" {
		t.Fatalf("unexpected config: %#v", cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("COFE_THEME=light\nCOFE_SPLASH_MS=10\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COFE_SPLASH_MS", "250")
	t.Setenv("COFE_NODE_EMBEDDED", "false")
	t.Cleanup(func() { _ = os.Unsetenv("COFE_THEME") })

	cfg, err := ApplyEnv(envFile, DefaultConfig())
	if err != nil {
		t.Fatalf("apply env error: %v", err)
	}
	if cfg.UI.Theme != "light" {
		t.Fatalf("expected theme from .env, got %s", cfg.UI.Theme)
	}
	if cfg.UI.SplashMS != 250 {
		t.Fatalf("expected environment to win over .env, got %d", cfg.UI.SplashMS)
	}
	if cfg.Node.Embedded {
		t.Fatal("expected node.embedded override")
	}
	if cfg.Gateway.Address != "127.0.0.1:7400" {
		t.Fatalf("unset variable changed address: %s", cfg.Gateway.Address)
	}
}

func TestApplyEnvMissingFile(t *testing.T) {
	if _, err := ApplyEnv(filepath.Join(t.TempDir(), ".env"), DefaultConfig()); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}
