package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Backend  struct {
		BaseURL        string `json:"base_url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"backend"`
	Session struct {
		PollIntervalMS  int `json:"poll_interval_ms"`
		AutosaveQuietMS int `json:"autosave_quiet_ms"`
		IndicatorMS     int `json:"indicator_ms"`
	} `json:"session"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
	Slack struct {
		WebhookURL string `json:"webhook_url"`
		BotToken   string `json:"bot_token"`
		Channel    string `json:"channel"`
	} `json:"slack"`
	Metrics struct {
		Listen string `json:"listen"`
	} `json:"metrics"`
	HTTP struct {
		Listen string `json:"listen"`
	} `json:"http"`
}

// DefaultPath is ~/.promptline/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".promptline", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".promptline"),
		LogLevel: "info",
	}
	cfg.Backend.BaseURL = "http://localhost:5000/api"
	cfg.Backend.TimeoutSeconds = 10
	cfg.Session.PollIntervalMS = 1000
	cfg.Session.AutosaveQuietMS = 2000
	cfg.Session.IndicatorMS = 2000
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if baseURL := os.Getenv("PROMPTLINE_BACKEND_URL"); baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if level := os.Getenv("PROMPTLINE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		cfg.Slack.WebhookURL = webhook
	}
	if botToken := os.Getenv("SLACK_BOT_USER_TOKEN"); botToken != "" {
		cfg.Slack.BotToken = botToken
	}

	return cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Session.PollIntervalMS <= 0 {
		return fmt.Errorf("session.poll_interval_ms must be positive, got %d", c.Session.PollIntervalMS)
	}
	if c.Session.AutosaveQuietMS <= 0 {
		return fmt.Errorf("session.autosave_quiet_ms must be positive, got %d", c.Session.AutosaveQuietMS)
	}
	if c.Session.IndicatorMS <= 0 {
		return fmt.Errorf("session.indicator_ms must be positive, got %d", c.Session.IndicatorMS)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Session.PollIntervalMS) * time.Millisecond
}

func (c *Config) AutosaveQuiet() time.Duration {
	return time.Duration(c.Session.AutosaveQuietMS) * time.Millisecond
}

func (c *Config) IndicatorDuration() time.Duration {
	return time.Duration(c.Session.IndicatorMS) * time.Millisecond
}

func (c *Config) SchedulesPath() string {
	return filepath.Join(c.DataDir, "schedules.json")
}

func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "promptline.pid")
}

// Save writes cfg to path atomically (temp file + rename).
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

// ToMap converts cfg to a nested map through its JSON form, so numbers are
// float64.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config map: %w", err)
	}
	return m, nil
}

// ListValues returns every config key in dot notation, masking secrets when
// mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-separated key from the file at path. A missing file
// is created with defaults first.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue writes one dot-separated key into the file at path. The value is
// parsed as JSON when possible (numbers, booleans) and stored as a string
// otherwise. Keys outside the Config struct are preserved. A change that would
// make the file fail Validate is rejected and nothing is written.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(m)
	flat[key] = parsed

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	check := defaults()
	if err := json.Unmarshal(data, check); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := check.Validate(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return writeAtomic(path, data)
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return m, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
