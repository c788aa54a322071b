// Package config loads engclass settings from .env, an optional YAML file and ENGCLASS_ variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before mapping them to keys
const EnvPrefix = "ENGCLASS_"

const maxConfigFileSize = 1024 * 1024

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("config: invalid")

// Config holds every runtime setting
type Config struct {
	DBType string `koanf:"db_type"`
	DBDSN  string `koanf:"db_dsn"`

	TelegramToken string  `koanf:"telegram_token"`
	TeacherChatID int64   `koanf:"teacher_chat_id"`
	StudentChatID int64   `koanf:"student_chat_id"`
	StudentID     string  `koanf:"student_id"`
	RateLimit     float64 `koanf:"rate_limit"` // Inbound updates per second per chat
	RateBurst     int     `koanf:"rate_burst"`

	IntakeSize        int           `koanf:"intake_size"`
	CommandClearDelay time.Duration `koanf:"command_clear_delay"`
	FeedbackDelay     time.Duration `koanf:"feedback_delay"`

	ReminderInterval      time.Duration `koanf:"reminder_interval"`
	NotificationStartHour int           `koanf:"notification_start_hour"`
	NotificationEndHour   int           `koanf:"notification_end_hour"`

	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		DBType:                "sqlite",
		StudentID:             "student",
		RateLimit:             2,
		RateBurst:             5,
		IntakeSize:            5,
		CommandClearDelay:     1500 * time.Millisecond,
		FeedbackDelay:         2 * time.Second,
		ReminderInterval:      time.Hour,
		NotificationStartHour: 8,
		NotificationEndHour:   22,
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// Load reads .env (if present), then the YAML file at path (if any), then ENGCLASS_ variables.
// Later sources override earlier ones; unset keys keep their defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if path != "" {
		content, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: db_type must be sqlite or postgres, got %q", ErrInvalid, c.DBType)
	}
	if c.DBType == "postgres" && c.DBDSN == "" {
		return fmt.Errorf("%w: db_dsn is required for postgres", ErrInvalid)
	}
	if c.IntakeSize < 1 {
		return fmt.Errorf("%w: intake_size must be positive", ErrInvalid)
	}
	if c.CommandClearDelay <= 0 || c.FeedbackDelay <= 0 {
		return fmt.Errorf("%w: command_clear_delay and feedback_delay must be positive", ErrInvalid)
	}
	if c.ReminderInterval < time.Minute {
		return fmt.Errorf("%w: reminder_interval must be at least 1m", ErrInvalid)
	}
	for _, h := range []int{c.NotificationStartHour, c.NotificationEndHour} {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: notification hours must be within 0-23, got %d", ErrInvalid, h)
		}
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		return fmt.Errorf("%w: rate_limit and rate_burst must be positive", ErrInvalid)
	}
	if c.StudentID == "" {
		return fmt.Errorf("%w: student_id is required", ErrInvalid)
	}
	return nil
}

// ValidateTelegram checks the settings serve needs on top of Validate
func (c *Config) ValidateTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("%w: telegram_token is not set", ErrInvalid)
	}
	if c.TeacherChatID == 0 || c.StudentChatID == 0 {
		return fmt.Errorf("%w: teacher_chat_id and student_chat_id are required", ErrInvalid)
	}
	if c.TeacherChatID == c.StudentChatID {
		return fmt.Errorf("%w: teacher and student must use different chats", ErrInvalid)
	}
	return nil
}
