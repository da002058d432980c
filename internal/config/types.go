package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration. Reminder settings are read-only
// after load; only the logging block is applied on hot reload.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Media       MediaConfig       `json:"media"`
	Reminder    ReminderConfig    `json:"reminder"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout    string `json:"poll_timeout,omitempty"`
	SendRatePerSec int    `json:"send_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type MediaConfig struct {
	Dir string `json:"dir"`
}

// ReminderConfig mirrors the engine's window settings.
type ReminderConfig struct {
	IntervalDays    int `json:"interval_days"`
	WindowStartHour int `json:"window_start_hour"`
	WindowEndHour   int `json:"window_end_hour"`
}

type MaintenanceConfig struct {
	// PruneSchedule is a cron spec for the orphaned-media prune job.
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// Default returns the built-in defaults, matching the original deployment's
// environment defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Path: "./data/notebot.db"},
		Media:   MediaConfig{Dir: "./data/media"},
		Reminder: ReminderConfig{
			IntervalDays:    2,
			WindowStartHour: 8,
			WindowEndHour:   20,
		},
		Maintenance: MaintenanceConfig{PruneSchedule: "30 4 * * *"},
	}
}

// ApplyEnv overlays environment variables onto cfg. Unset variables leave
// the file/default value alone; malformed numeric values are an error so a
// typo fails fast instead of silently picking a default.
func (c *Config) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_PATH")); v != "" {
		c.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("MEDIA_DIR")); v != "" {
		c.Media.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if err := envInt("REMINDER_INTERVAL_DAYS", &c.Reminder.IntervalDays); err != nil {
		return err
	}
	if err := envInt("REMINDER_START_HOUR", &c.Reminder.WindowStartHour); err != nil {
		return err
	}
	if err := envInt("REMINDER_END_HOUR", &c.Reminder.WindowEndHour); err != nil {
		return err
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", name, v)
	}
	*dst = n
	return nil
}

// Validate enforces the startup invariants. A failure here is fatal: the
// process refuses to run on a bad configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	r := c.Reminder
	if r.IntervalDays < 1 {
		return fmt.Errorf("reminder.interval_days must be >= 1, got %d", r.IntervalDays)
	}
	if r.WindowStartHour < 0 || r.WindowStartHour > 23 {
		return fmt.Errorf("reminder.window_start_hour out of range: %d", r.WindowStartHour)
	}
	if r.WindowEndHour < 0 || r.WindowEndHour > 23 {
		return fmt.Errorf("reminder.window_end_hour out of range: %d", r.WindowEndHour)
	}
	if r.WindowStartHour >= r.WindowEndHour {
		return fmt.Errorf("reminder window is empty: start %d >= end %d", r.WindowStartHour, r.WindowEndHour)
	}
	if _, err := c.PollTimeout(); err != nil {
		return err
	}
	if _, err := c.BusyTimeout(); err != nil {
		return err
	}
	return nil
}

// PollTimeout parses telegram.poll_timeout ("" means adapter default).
func (c *Config) PollTimeout() (time.Duration, error) {
	return parseOptionalDuration("telegram.poll_timeout", c.Telegram.PollTimeout)
}

// BusyTimeout parses storage.busy_timeout ("" means driver default).
func (c *Config) BusyTimeout() (time.Duration, error) {
	return parseOptionalDuration("storage.busy_timeout", c.Storage.BusyTimeout)
}

func parseOptionalDuration(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", path)
	}
	return d, nil
}
