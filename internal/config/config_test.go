package config

import (
	"testing"
	"time"

	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sync.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %v, want 30s", cfg.Sync.TickInterval)
	}
	if cfg.Sync.MinInterval != 65*time.Second {
		t.Errorf("MinInterval = %v, want 65s", cfg.Sync.MinInterval)
	}
	if cfg.Sync.HourlyCap != 55 {
		t.Errorf("HourlyCap = %d, want 55", cfg.Sync.HourlyCap)
	}
	if cfg.Sync.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.Sync.BatchSize)
	}
	if cfg.TileCache.BudgetBytes != 250*1024*1024 {
		t.Errorf("BudgetBytes = %d, want 250 MB", cfg.TileCache.BudgetBytes)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SYNC_TICK_INTERVAL", "10s")
	t.Setenv("SYNC_BATCH_SIZE", "25")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.TickInterval != 10*time.Second {
		t.Errorf("TickInterval = %v, want 10s", cfg.Sync.TickInterval)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.Sync.BatchSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SYNC_TICK_INTERVAL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject an unparsable duration")
	}
}

func TestSeed(t *testing.T) {
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		t.Fatal(err)
	}
	repo := db.NewRepository(database.DB)

	cfg := &Config{Server: ServerConfig{URL: "https://api.example.com", APIToken: "tok"}}
	if err := cfg.Seed(repo); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	configured, err := repo.IsConfigured()
	if err != nil {
		t.Fatal(err)
	}
	if !configured {
		t.Error("seeded repo should report configured")
	}

	// Empty env values leave existing settings alone.
	empty := &Config{}
	if err := empty.Seed(repo); err != nil {
		t.Fatal(err)
	}
	url, _, err := repo.GetSetting(models.SettingServerURL)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://api.example.com" {
		t.Errorf("url = %q, want preserved value", url)
	}
}
