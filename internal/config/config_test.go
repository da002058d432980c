package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN",
	"DATABASE_PATH",
	"MEDIA_DIR",
	"LOG_LEVEL",
	"REMINDER_INTERVAL_DAYS",
	"REMINDER_START_HOUR",
	"REMINDER_END_HOUR",
}

// clearEnv pins every overlay variable to empty for the duration of the test
// so the host environment can't leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Reminder.IntervalDays != 2 {
		t.Fatalf("interval_days = %d, want 2", cfg.Reminder.IntervalDays)
	}
	if cfg.Reminder.WindowStartHour != 8 || cfg.Reminder.WindowEndHour != 20 {
		t.Fatalf("window = [%d, %d], want [8, 20]", cfg.Reminder.WindowStartHour, cfg.Reminder.WindowEndHour)
	}
	if cfg.Maintenance.PruneSchedule == "" {
		t.Fatal("prune schedule default missing")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	mutate := func(f func(*Config)) *Config {
		cfg := Default()
		cfg.Telegram.Token = "123:abc"
		f(cfg)
		return cfg
	}
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "valid", cfg: mutate(func(*Config) {})},
		{name: "missing token", cfg: mutate(func(c *Config) { c.Telegram.Token = " " }), wantErr: "token"},
		{name: "missing storage path", cfg: mutate(func(c *Config) { c.Storage.Path = "" }), wantErr: "storage.path"},
		{name: "zero interval", cfg: mutate(func(c *Config) { c.Reminder.IntervalDays = 0 }), wantErr: "interval_days"},
		{name: "hour out of range", cfg: mutate(func(c *Config) { c.Reminder.WindowEndHour = 24 }), wantErr: "window_end_hour"},
		{name: "inverted window", cfg: mutate(func(c *Config) {
			c.Reminder.WindowStartHour = 20
			c.Reminder.WindowEndHour = 8
		}), wantErr: "window is empty"},
		{name: "bad poll timeout", cfg: mutate(func(c *Config) { c.Telegram.PollTimeout = "soon" }), wantErr: "poll_timeout"},
		{name: "negative busy timeout", cfg: mutate(func(c *Config) { c.Storage.BusyTimeout = "-1s" }), wantErr: "busy_timeout"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "999:tok")
	t.Setenv("DATABASE_PATH", "/var/lib/notebot/db.sqlite")
	t.Setenv("MEDIA_DIR", "/var/lib/notebot/media")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REMINDER_INTERVAL_DAYS", "3")
	t.Setenv("REMINDER_START_HOUR", "9")
	t.Setenv("REMINDER_END_HOUR", "18")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.Token != "999:tok" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Storage.Path != "/var/lib/notebot/db.sqlite" {
		t.Fatalf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Media.Dir != "/var/lib/notebot/media" {
		t.Fatalf("media dir = %q", cfg.Media.Dir)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Reminder.IntervalDays != 3 || cfg.Reminder.WindowStartHour != 9 || cfg.Reminder.WindowEndHour != 18 {
		t.Fatalf("reminder = %+v", cfg.Reminder)
	}
}

func TestApplyEnvMalformedInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("REMINDER_INTERVAL_DAYS", "every-other-day")

	cfg := Default()
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("expected error for malformed REMINDER_INTERVAL_DAYS")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestManagerParseYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
storage:
  path: "./notes.db"
reminder:
  interval_days: 4
  window_start_hour: 10
  window_end_hour: 19
logging:
  level: warn
  console: true
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Reminder.IntervalDays != 4 {
		t.Fatalf("interval_days = %d, want 4", cfg.Reminder.IntervalDays)
	}
	if d, err := cfg.PollTimeout(); err != nil || d.Seconds() != 15 {
		t.Fatalf("PollTimeout = %v, %v", d, err)
	}
	// Fields the file omits keep their defaults.
	if cfg.Media.Dir != "./data/media" {
		t.Fatalf("media dir = %q, want default", cfg.Media.Dir)
	}
}

func TestManagerParseJSON(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.json", `{
  "telegram": {"token": "123:abc"},
  "storage": {"path": "./notes.db"}
}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestManagerParseRejectsUnknownField(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
remnider:
  interval_days: 4
`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for misspelled section")
	}
}

func TestManagerParseMissingFileUsesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml")).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Reminder.IntervalDays != 2 {
		t.Fatalf("interval_days = %d, want default 2", cfg.Reminder.IntervalDays)
	}
}

func TestManagerParseMissingFileNoTokenFails(t *testing.T) {
	clearEnv(t)
	if _, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml")).Parse(); err == nil {
		t.Fatal("expected validation error without a token")
	}
}
