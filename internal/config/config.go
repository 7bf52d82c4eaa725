package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cabbot/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App            AppConfig        `yaml:"app"`
	Telegram       TelegramConfig   `yaml:"telegram"`
	Backend        BackendConfig    `yaml:"backend"`
	Database       DatabaseConfig   `yaml:"database"`
	Redis          RedisConfig      `yaml:"redis"`
	Monitoring     MonitoringConfig `yaml:"monitoring"`
	Logging        LoggingConfig    `yaml:"logging"`
	API            APIConfig        `yaml:"api"`
	Bot            BotConfig        `yaml:"bot"`
	Google         GoogleConfig     `yaml:"google"`
	Exports        ExportConfig     `yaml:"exports"`
	Admins         []int64          `yaml:"admins"`
	AdminsContacts []string         `yaml:"admins_contacts"`
	Blacklist      []int64          `yaml:"blacklist"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

// BackendConfig points the client at the cab platform REST API.
// Durations are whole seconds, like the rest of the YAML knobs.
type BackendConfig struct {
	BaseURL             string `yaml:"base_url"`
	TimeoutSeconds      int    `yaml:"timeout"`
	PollIntervalSeconds int    `yaml:"poll_interval"`
	CacheTTLSeconds     int    `yaml:"cache_ttl"`
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (b BackendConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalSeconds) * time.Second
}

func (b BackendConfig) CacheTTL() time.Duration {
	return time.Duration(b.CacheTTLSeconds) * time.Second
}

type DatabaseConfig struct {
	Path   string       `yaml:"path"`
	Backup BackupConfig `yaml:"backup"`
}

type BackupConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Schedule    string `yaml:"schedule"`
	StoragePath string `yaml:"storage_path"`
	KeepLast    int    `yaml:"keep_last"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPort    int    `yaml:"prometheus_port"`
	LogLevel          string `yaml:"log_level"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// APIConfig configures the local ops HTTP endpoint (health, tracker stats).
type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BotConfig struct {
	HistoryLimit      int `yaml:"history_limit"`
	RateLimitMessages int `yaml:"rate_limit_messages"`
	RateLimitWindow   int `yaml:"rate_limit_window"`
}

type GoogleConfig struct {
	CredentialsFile     string `yaml:"credentials_file"`
	ReportSpreadsheetID string `yaml:"report_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен: в проде переменные приходят из окружения
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}

	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	return nil
}

// ValidateLocations checks the pickup/dropoff list loaded from locations.yaml.
func ValidateLocations(locations []models.Location) error {
	if len(locations) == 0 {
		return errors.New("at least one location is required")
	}
	seen := make(map[int64]bool)
	for _, loc := range locations {
		if loc.ID == 0 {
			return fmt.Errorf("location '%s' has invalid ID 0", loc.Name)
		}
		if loc.Name == "" {
			return fmt.Errorf("location %d has empty name", loc.ID)
		}
		if seen[loc.ID] {
			return fmt.Errorf("duplicate location ID found: %d", loc.ID)
		}
		seen[loc.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 10
	}
	if c.Backend.PollIntervalSeconds == 0 {
		c.Backend.PollIntervalSeconds = models.DefaultPollIntervalSeconds
	}
	if c.Backend.CacheTTLSeconds == 0 {
		c.Backend.CacheTTLSeconds = models.HistoryCacheTTL
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if c.API.Enabled && !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Bot defaults
	if c.Bot.HistoryLimit == 0 {
		c.Bot.HistoryLimit = models.DefaultHistoryLimit
	}
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = models.RateLimitMessages
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = models.RateLimitWindow
	}
}
