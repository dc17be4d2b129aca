package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %s, want :8080", cfg.Addr)
	}
	if cfg.CodeLength != 6 {
		t.Errorf("CodeLength = %d, want 6", cfg.CodeLength)
	}
	if cfg.PendingLimit != 256 {
		t.Errorf("PendingLimit = %d, want 256", cfg.PendingLimit)
	}
	if cfg.IdleTimeout != 10*time.Minute {
		t.Errorf("IdleTimeout = %s, want 10m", cfg.IdleTimeout)
	}
	if cfg.SweepInterval != 60*time.Second {
		t.Errorf("SweepInterval = %s, want 60s", cfg.SweepInterval)
	}
	if cfg.KeepaliveInterval != 30*time.Second {
		t.Errorf("KeepaliveInterval = %s, want 30s", cfg.KeepaliveInterval)
	}
}

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonicserv.toml")
	content := `
addr = ":9090"
log_level = "debug"
code_length = 8
idle_timeout = "5m"
sweep_interval = "30s"
max_message_bytes = 131072
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := cfg.ApplyFile(path); err != nil {
		t.Fatalf("ApplyFile error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %s, want :9090", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.CodeLength != 8 {
		t.Errorf("CodeLength = %d, want 8", cfg.CodeLength)
	}
	if cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %s, want 5m", cfg.IdleTimeout)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %s, want 30s", cfg.SweepInterval)
	}
	if cfg.MaxMessageBytes != 131072 {
		t.Errorf("MaxMessageBytes = %d, want 131072", cfg.MaxMessageBytes)
	}
	// Fields absent from the file keep their defaults.
	if cfg.PendingLimit != 256 {
		t.Errorf("PendingLimit = %d, want default 256", cfg.PendingLimit)
	}
}

func TestApplyFileErrors(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("ApplyFile on missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("addr = [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := cfg.ApplyFile(path); err == nil {
		t.Error("ApplyFile on malformed TOML should fail")
	}

	path = filepath.Join(t.TempDir(), "baddur.toml")
	if err := os.WriteFile(path, []byte(`idle_timeout = "soon"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := cfg.ApplyFile(path); err == nil {
		t.Error("ApplyFile with unparseable duration should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SONICSHARE_ADDR", ":7070")
	t.Setenv("SONICSHARE_LOG_LEVEL", "warn")
	t.Setenv("SONICSHARE_IDLE_TIMEOUT", "2m")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Addr != ":7070" {
		t.Errorf("Addr = %s, want :7070", cfg.Addr)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", cfg.LogLevel)
	}
	if cfg.IdleTimeout != 2*time.Minute {
		t.Errorf("IdleTimeout = %s, want 2m", cfg.IdleTimeout)
	}
}
