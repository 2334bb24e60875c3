package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
quiz:
  timeout: 90s
  distractors: 4
commands:
  prefix: "?"
  mixes: "?whoiswho"
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Quiz.Distractors != 4 || cfg.Quiz.LeaderboardSize != 10 {
		t.Fatalf("unexpected quiz config %+v", cfg.Quiz)
	}
	if cfg.Commands.Guess != "?guess" || cfg.Commands.Scoreboard != "?scoreboard" || cfg.Commands.Mixes != "?whoiswho" {
		t.Fatalf("unexpected commands %+v", cfg.Commands)
	}
	if got := Duration(cfg.Quiz.Timeout, time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s timeout, got %v", got)
	}
}

func TestDurationFallback(t *testing.T) {
	if got := Duration("", 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := Duration("soon", 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected fallback for invalid, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
