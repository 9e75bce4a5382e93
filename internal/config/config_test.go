package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
discord:
  token: abc123
  owner_id: "42"
database:
  path: /tmp/fac.db
logging:
  level: debug
  format: text
session:
  timeout: 5m
  create_quota: 3
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Discord.Token != "abc123" {
			t.Errorf("token = %q", cfg.Discord.Token)
		}
		if cfg.Session.Timeout != 5*time.Minute {
			t.Errorf("timeout = %v", cfg.Session.Timeout)
		}
		if cfg.Session.CreateQuota != 3 {
			t.Errorf("quota = %d", cfg.Session.CreateQuota)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		path := writeConfig(t, "discord:\n  token: abc\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Session.CreateQuota != 5 {
			t.Errorf("default quota = %d, want 5", cfg.Session.CreateQuota)
		}
		if cfg.Session.CreateCooldown != 20*time.Second {
			t.Errorf("default create cooldown = %v", cfg.Session.CreateCooldown)
		}
		if cfg.Logging.GuildLogCapacity != 50 {
			t.Errorf("default guild log capacity = %d", cfg.Logging.GuildLogCapacity)
		}
		if cfg.Mirror.ReconcileSchedule != "@hourly" {
			t.Errorf("default schedule = %q", cfg.Mirror.ReconcileSchedule)
		}
	})

	t.Run("env expansion", func(t *testing.T) {
		t.Setenv("TEST_FACILITY_TOKEN", "from-env")
		path := writeConfig(t, "discord:\n  token: ${TEST_FACILITY_TOKEN}\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Discord.Token != "from-env" {
			t.Errorf("token = %q, want from-env", cfg.Discord.Token)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		t.Setenv("DISCORD_BOT_TOKEN", "")
		path := writeConfig(t, "database:\n  path: x.db\n")
		if _, err := Load(path); err == nil {
			t.Error("expected error for missing token")
		}
	})
}
