package config

import (
	"os"
	"path/filepath"
	"testing"

	"innsync/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
redis:
  address: "localhost:6379"
database:
  path: "test.db"
provider:
  base_url: "https://inventory.example.com"
query:
  redemption_ratio: 50
destinations:
  - id: 1
    company_id: 10
    external_id: "EXT-1"
    name: "Seaside Resort"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Redis.Address != "localhost:6379" {
		t.Errorf("expected redis address localhost:6379, got %s", cfg.Redis.Address)
	}

	if len(cfg.Destinations) != 1 || cfg.Destinations[0].ID != 1 {
		t.Errorf("expected 1 destination with ID 1")
	}

	if cfg.Query.RedemptionRatio != 50 {
		t.Errorf("expected redemption ratio 50, got %v", cfg.Query.RedemptionRatio)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		Redis:    RedisConfig{Address: "localhost:6379"},
		Database: DatabaseConfig{Path: "path"},
		Provider: ProviderConfig{BaseURL: "https://example.com"},
		Query:    QueryConfig{RedemptionRatio: 100},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing redis address",
			mutate:  func(c *Config) { c.Redis.Address = "" },
			wantErr: true,
		},
		{
			name:    "missing provider base url",
			mutate:  func(c *Config) { c.Provider.BaseURL = "" },
			wantErr: true,
		},
		{
			name: "duplicate destination id",
			mutate: func(c *Config) {
				c.Destinations = []models.Destination{
					{ID: 1, ExternalID: "A"},
					{ID: 1, ExternalID: "B"},
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Sync.AvailabilityBatchSize != models.DefaultSyncBatchSize {
		t.Errorf("expected default batch size %d, got %d", models.DefaultSyncBatchSize, cfg.Sync.AvailabilityBatchSize)
	}
	if cfg.Sync.HorizonMonths != models.DefaultHorizonMonths {
		t.Errorf("expected default horizon %d, got %d", models.DefaultHorizonMonths, cfg.Sync.HorizonMonths)
	}
	if cfg.Sync.ReservationBlockDays != models.DefaultReservationBlockDays {
		t.Errorf("expected default block days %d, got %d", models.DefaultReservationBlockDays, cfg.Sync.ReservationBlockDays)
	}
	if cfg.Query.RedemptionRatio != models.DefaultRedemptionRatio {
		t.Errorf("expected default redemption ratio %v, got %v", models.DefaultRedemptionRatio, cfg.Query.RedemptionRatio)
	}
	if cfg.Ops.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.Ops.Auth.HeaderAPIKey)
	}
}

func TestValidateDestinations(t *testing.T) {
	tests := []struct {
		name         string
		destinations []models.Destination
		wantErr      bool
	}{
		{
			name: "valid destinations",
			destinations: []models.Destination{
				{ID: 1, ExternalID: "A"},
				{ID: 2, ExternalID: "B"},
			},
			wantErr: false,
		},
		{
			name: "duplicate ID",
			destinations: []models.Destination{
				{ID: 1, ExternalID: "A"},
				{ID: 1, ExternalID: "B"},
			},
			wantErr: true,
		},
		{
			name: "ID 0",
			destinations: []models.Destination{
				{ID: 0, ExternalID: "A"},
			},
			wantErr: true,
		},
		{
			name: "missing external id",
			destinations: []models.Destination{
				{ID: 1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDestinations(tt.destinations)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDestinations() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
