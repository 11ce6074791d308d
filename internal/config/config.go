package config

import (
	"errors"
	"fmt"
	"os"

	"ratesync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Sync       SyncConfig       `yaml:"sync"`
	Loyalty    LoyaltyConfig    `yaml:"loyalty"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Backup     BackupConfig     `yaml:"backup"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// SyncConfig bounds the channel fan-out and the ack worker.
type SyncConfig struct {
	PushTimeoutSeconds    int         `yaml:"push_timeout_seconds"`
	FailureAlertThreshold int         `yaml:"failure_alert_threshold"`
	Retry                 RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries          int     `yaml:"max_retries"`
	InitialDelaySeconds int     `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int     `yaml:"max_delay_seconds"`
	BackoffFactor       float64 `yaml:"backoff_factor"`
}

// LoyaltyConfig maps guest tiers to point multipliers.
type LoyaltyConfig struct {
	TierMultipliers map[string]float64 `yaml:"tier_multipliers"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// TelegramConfig drives operator notifications on repeated sync failures.
type TelegramConfig struct {
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
}

// GoogleConfig enables the bookings mirror spreadsheet.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config with environment expansion. A .env file is
// loaded first when present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	for tier, mult := range c.Loyalty.TierMultipliers {
		if mult <= 0 {
			return fmt.Errorf("loyalty tier %q has non-positive multiplier %v", tier, mult)
		}
	}
	if c.Sync.Retry.BackoffFactor < 0 {
		return errors.New("sync.retry.backoff_factor must be non-negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Sync.PushTimeoutSeconds == 0 {
		c.Sync.PushTimeoutSeconds = models.DefaultSyncTimeoutSeconds
	}
	if c.Sync.FailureAlertThreshold == 0 {
		c.Sync.FailureAlertThreshold = models.DefaultFailureAlertThreshold
	}
	if c.Sync.Retry.MaxRetries == 0 {
		c.Sync.Retry.MaxRetries = 5
	}
	if c.Sync.Retry.InitialDelaySeconds == 0 {
		c.Sync.Retry.InitialDelaySeconds = 2
	}
	if c.Sync.Retry.MaxDelaySeconds == 0 {
		c.Sync.Retry.MaxDelaySeconds = 60
	}
	if c.Sync.Retry.BackoffFactor == 0 {
		c.Sync.Retry.BackoffFactor = 2
	}
	if len(c.Loyalty.TierMultipliers) == 0 {
		c.Loyalty.TierMultipliers = map[string]float64{
			"bronze":   1.0,
			"silver":   1.25,
			"gold":     1.5,
			"platinum": 2.0,
		}
	}
}

// ChannelSeed describes one channel integration in channels.yaml. Rate
// configurations reference channels by name.
type ChannelSeed struct {
	HotelID      string            `yaml:"hotel_id"`
	Name         string            `yaml:"name"`
	Active       bool              `yaml:"active"`
	Endpoint     string            `yaml:"endpoint"`
	APIKey       string            `yaml:"api_key"`
	APISecret    string            `yaml:"api_secret"`
	HotelCode    string            `yaml:"hotel_code"`
	Commission   float64           `yaml:"commission"`
	RoomTypes    map[string]string `yaml:"room_types"`
	RatePlans    map[string]string `yaml:"rate_plans"`
	Inventory    int               `yaml:"inventory_interval"`
	Prices       int               `yaml:"prices_interval"`
	Availability int               `yaml:"availability_interval"`
}

// ValidateChannels rejects duplicate channel names per hotel and nonsense
// commissions before they reach the store.
func ValidateChannels(seeds []ChannelSeed) error {
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		if s.Name == "" {
			return errors.New("channel with empty name")
		}
		key := s.HotelID + "/" + s.Name
		if seen[key] {
			return fmt.Errorf("duplicate channel %q for hotel %q", s.Name, s.HotelID)
		}
		seen[key] = true
		if s.Commission < 0 || s.Commission >= 1 {
			return fmt.Errorf("channel %q commission %v out of [0,1)", s.Name, s.Commission)
		}
	}
	return nil
}
