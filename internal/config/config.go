package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"innsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig            `yaml:"app"`
	Redis        RedisConfig          `yaml:"redis"`
	Database     DatabaseConfig       `yaml:"database"`
	Provider     ProviderConfig       `yaml:"provider"`
	Sync         SyncConfig           `yaml:"sync"`
	Query        QueryConfig          `yaml:"query"`
	Logging      LoggingConfig        `yaml:"logging"`
	Monitoring   MonitoringConfig     `yaml:"monitoring"`
	Ops          OpsConfig            `yaml:"ops"`
	Exports      ExportConfig         `yaml:"exports"`
	Destinations []models.Destination `yaml:"destinations"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ProviderConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateRPS        float64 `yaml:"rate_rps"`
	RateBurst      int     `yaml:"rate_burst"`
}

func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// SyncConfig holds per-kind cycle intervals (seconds) and batch sizes.
type SyncConfig struct {
	AvailabilityIntervalSeconds int `yaml:"availability_interval_seconds"`
	PackageIntervalSeconds      int `yaml:"package_interval_seconds"`
	ReservationIntervalSeconds  int `yaml:"reservation_interval_seconds"`
	HousekeepingIntervalSeconds int `yaml:"housekeeping_interval_seconds"`
	AvailabilityBatchSize       int `yaml:"availability_batch_size"`
	PackageBatchSize            int `yaml:"package_batch_size"`
	ReservationBatchSize        int `yaml:"reservation_batch_size"`
	HorizonMonths               int `yaml:"horizon_months"`
	ReservationBlockDays        int `yaml:"reservation_block_days"`
}

func (s SyncConfig) AvailabilityInterval() time.Duration {
	return time.Duration(s.AvailabilityIntervalSeconds) * time.Second
}

func (s SyncConfig) PackageInterval() time.Duration {
	return time.Duration(s.PackageIntervalSeconds) * time.Second
}

func (s SyncConfig) ReservationInterval() time.Duration {
	return time.Duration(s.ReservationIntervalSeconds) * time.Second
}

func (s SyncConfig) HousekeepingInterval() time.Duration {
	return time.Duration(s.HousekeepingIntervalSeconds) * time.Second
}

type QueryConfig struct {
	RedemptionRatio float64 `yaml:"redemption_ratio"`
	PageSize        int     `yaml:"page_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type OpsConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      OpsAuthConfig      `yaml:"auth"`
	RateLimit OpsRateLimitConfig `yaml:"rate_limit"`
}

type OpsAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []OpsClientKey `yaml:"api_keys"`
}

type OpsClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type OpsRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values referenced from the YAML via ${VAR} still
	// resolve against the process environment.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

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
	if c.Redis.Address == "" {
		return errors.New("redis address is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Provider.BaseURL == "" {
		return errors.New("provider base_url is required")
	}

	if c.Query.RedemptionRatio <= 0 {
		return errors.New("query redemption_ratio must be positive")
	}

	return ValidateDestinations(c.Destinations)
}

func ValidateDestinations(destinations []models.Destination) error {
	// Check for duplicate destination IDs
	ids := make(map[int64]bool)
	for _, dest := range destinations {
		if dest.ID == 0 {
			return fmt.Errorf("destination '%s' has invalid ID 0", dest.Name)
		}
		if ids[dest.ID] {
			return fmt.Errorf("duplicate destination ID found: %d", dest.ID)
		}
		ids[dest.ID] = true
		if dest.ExternalID == "" {
			return fmt.Errorf("destination %d is missing external_id", dest.ID)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Sync.AvailabilityIntervalSeconds == 0 {
		c.Sync.AvailabilityIntervalSeconds = 300
	}
	if c.Sync.PackageIntervalSeconds == 0 {
		c.Sync.PackageIntervalSeconds = 600
	}
	if c.Sync.ReservationIntervalSeconds == 0 {
		c.Sync.ReservationIntervalSeconds = 900
	}
	if c.Sync.HousekeepingIntervalSeconds == 0 {
		c.Sync.HousekeepingIntervalSeconds = 3600
	}
	if c.Sync.AvailabilityBatchSize == 0 {
		c.Sync.AvailabilityBatchSize = models.DefaultSyncBatchSize
	}
	if c.Sync.PackageBatchSize == 0 {
		c.Sync.PackageBatchSize = models.DefaultSyncBatchSize
	}
	if c.Sync.ReservationBatchSize == 0 {
		c.Sync.ReservationBatchSize = models.DefaultSyncBatchSize
	}
	if c.Sync.HorizonMonths == 0 {
		c.Sync.HorizonMonths = models.DefaultHorizonMonths
	}
	if c.Sync.ReservationBlockDays == 0 {
		c.Sync.ReservationBlockDays = models.DefaultReservationBlockDays
	}

	if c.Query.RedemptionRatio == 0 {
		c.Query.RedemptionRatio = models.DefaultRedemptionRatio
	}
	if c.Query.PageSize == 0 {
		c.Query.PageSize = models.DefaultPageSize
	}

	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = 15
	}
	if c.Provider.RateRPS == 0 {
		c.Provider.RateRPS = 2
	}
	if c.Provider.RateBurst == 0 {
		c.Provider.RateBurst = 5
	}

	if c.Ops.Enabled && c.Ops.Port == 0 {
		c.Ops.Port = 8080
	}
	if c.Ops.Auth.HeaderAPIKey == "" {
		c.Ops.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
