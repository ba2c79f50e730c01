package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aquamon/aquamon/pkg/alert"
)

type Config struct {
	General  GeneralConfig  `toml:"general"`
	API      APIConfig      `toml:"api"`
	Alert    AlertConfig    `toml:"alert"`
	Notify   NotifyConfig   `toml:"notify"`
	Realtime RealtimeConfig `toml:"realtime"`
	Logging  LoggingConfig  `toml:"logging"`
}

type GeneralConfig struct {
	DataDir string `toml:"data_dir"`
}

type APIConfig struct {
	ListenAddr string `toml:"listen_addr"`
	// DeviceKeys maps device IDs to their shared ingest secrets.
	DeviceKeys      map[string]string `toml:"device_keys"`
	RateLimitPerMin int               `toml:"rate_limit_per_min"`
}

type AlertConfig struct {
	ThresholdFile    string `toml:"threshold_file"`
	CriticalCooldown string `toml:"critical_cooldown"`
	WarningCooldown  string `toml:"warning_cooldown"`
	AdvisoryCooldown string `toml:"advisory_cooldown"`
	AutoResolveAfter string `toml:"auto_resolve_after"`
	ResolveInterval  string `toml:"resolve_interval"`

	CriticalCooldownD time.Duration `toml:"-"`
	WarningCooldownD  time.Duration `toml:"-"`
	AdvisoryCooldownD time.Duration `toml:"-"`
	AutoResolveAfterD time.Duration `toml:"-"`
	ResolveIntervalD  time.Duration `toml:"-"`
}

type NotifyConfig struct {
	Workers      int     `toml:"workers"`
	PollInterval string  `toml:"poll_interval"`
	MaxAttempts  int     `toml:"max_attempts"`
	BackoffBase  string  `toml:"backoff_base"`
	BackoffCap   string  `toml:"backoff_cap"`
	JitterPct    float64 `toml:"jitter_pct"`

	Email EmailConfig `toml:"email"`
	Push  PushConfig  `toml:"push"`

	PollIntervalD time.Duration `toml:"-"`
	BackoffBaseD  time.Duration `toml:"-"`
	BackoffCapD   time.Duration `toml:"-"`
}

type EmailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	From     string `toml:"from"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type PushConfig struct {
	Endpoint string `toml:"endpoint"`
	Token    string `toml:"token"`
}

type RealtimeConfig struct {
	// TokenSecret signs and verifies websocket session tokens.
	TokenSecret string `toml:"token_secret"`
	// NATSURL enables mirroring events to a NATS broker when set.
	NATSURL    string `toml:"nats_url"`
	NATSPrefix string `toml:"nats_prefix"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".aquamon")

	return &Config{
		General: GeneralConfig{
			DataDir: dataDir,
		},
		API: APIConfig{
			ListenAddr:      "127.0.0.1:8080",
			DeviceKeys:      map[string]string{},
			RateLimitPerMin: 120,
		},
		Alert: AlertConfig{
			ThresholdFile:    "",
			CriticalCooldown: "1h",
			WarningCooldown:  "2h",
			AdvisoryCooldown: "4h",
			AutoResolveAfter: "24h",
			ResolveInterval:  "5m",
		},
		Notify: NotifyConfig{
			Workers:      4,
			PollInterval: "5s",
			MaxAttempts:  3,
			BackoffBase:  "30s",
			BackoffCap:   "10m",
			JitterPct:    0.3,
			Email: EmailConfig{
				Host: "localhost",
				Port: 587,
				From: "alerts@localhost",
			},
			Push: PushConfig{
				Endpoint: "https://api.pushover.net/1/messages.json",
			},
		},
		Realtime: RealtimeConfig{
			NATSPrefix: "aquamon",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	return cfg, nil
}

func (c *Config) postProcess() error {
	var err error

	durations := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"alert.critical_cooldown", c.Alert.CriticalCooldown, &c.Alert.CriticalCooldownD},
		{"alert.warning_cooldown", c.Alert.WarningCooldown, &c.Alert.WarningCooldownD},
		{"alert.advisory_cooldown", c.Alert.AdvisoryCooldown, &c.Alert.AdvisoryCooldownD},
		{"alert.auto_resolve_after", c.Alert.AutoResolveAfter, &c.Alert.AutoResolveAfterD},
		{"alert.resolve_interval", c.Alert.ResolveInterval, &c.Alert.ResolveIntervalD},
		{"notify.poll_interval", c.Notify.PollInterval, &c.Notify.PollIntervalD},
		{"notify.backoff_base", c.Notify.BackoffBase, &c.Notify.BackoffBaseD},
		{"notify.backoff_cap", c.Notify.BackoffCap, &c.Notify.BackoffCapD},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(d.src); err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
	}

	c.General.DataDir, err = expandPath(c.General.DataDir)
	if err != nil {
		return fmt.Errorf("expand general.data_dir: %w", err)
	}

	c.Alert.ThresholdFile, err = expandPath(c.Alert.ThresholdFile)
	if err != nil {
		return fmt.Errorf("expand alert.threshold_file: %w", err)
	}

	c.Logging.File, err = expandPath(c.Logging.File)
	if err != nil {
		return fmt.Errorf("expand logging.file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.API.RateLimitPerMin < 0 {
		return fmt.Errorf("rate_limit_per_min cannot be negative, got %d", c.API.RateLimitPerMin)
	}

	cooldowns := []struct {
		name string
		d    time.Duration
	}{
		{"critical_cooldown", c.Alert.CriticalCooldownD},
		{"warning_cooldown", c.Alert.WarningCooldownD},
		{"advisory_cooldown", c.Alert.AdvisoryCooldownD},
	}
	for _, cd := range cooldowns {
		if cd.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", cd.name, cd.d)
		}
	}

	if c.Alert.ResolveIntervalD <= 0 {
		return fmt.Errorf("resolve_interval must be positive, got %s", c.Alert.ResolveIntervalD)
	}

	if c.Notify.Workers < 1 {
		return fmt.Errorf("notify workers must be at least 1, got %d", c.Notify.Workers)
	}

	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Notify.MaxAttempts)
	}

	if c.Notify.JitterPct < 0 || c.Notify.JitterPct > 1 {
		return fmt.Errorf("jitter_pct must be between 0 and 1, got %.2f", c.Notify.JitterPct)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// Cooldowns maps the configured durations into a dedup policy.
func (c *Config) Cooldowns() alert.CooldownPolicy {
	return alert.CooldownPolicy{
		alert.SeverityCritical: c.Alert.CriticalCooldownD,
		alert.SeverityWarning:  c.Alert.WarningCooldownD,
		alert.SeverityAdvisory: c.Alert.AdvisoryCooldownD,
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AQUAMON_DATA_DIR"); v != "" {
		cfg.General.DataDir = v
	}
	if v := os.Getenv("AQUAMON_API_LISTEN"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("AQUAMON_RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.RateLimitPerMin = n
		}
	}
	if v := os.Getenv("AQUAMON_THRESHOLD_FILE"); v != "" {
		cfg.Alert.ThresholdFile = v
	}
	if v := os.Getenv("AQUAMON_SMTP_HOST"); v != "" {
		cfg.Notify.Email.Host = v
	}
	if v := os.Getenv("AQUAMON_SMTP_USERNAME"); v != "" {
		cfg.Notify.Email.Username = v
	}
	if v := os.Getenv("AQUAMON_SMTP_PASSWORD"); v != "" {
		cfg.Notify.Email.Password = v
	}
	if v := os.Getenv("AQUAMON_PUSH_TOKEN"); v != "" {
		cfg.Notify.Push.Token = v
	}
	if v := os.Getenv("AQUAMON_TOKEN_SECRET"); v != "" {
		cfg.Realtime.TokenSecret = v
	}
	if v := os.Getenv("AQUAMON_NATS_URL"); v != "" {
		cfg.Realtime.NATSURL = v
	}
	if v := os.Getenv("AQUAMON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get user home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}

func Load(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
