package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")
	os.Unsetenv("PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("BLOCK_INTERVAL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.BlockInterval != 60*time.Second {
		t.Errorf("Expected default block interval 60s, got %v", cfg.BlockInterval)
	}
	if cfg.Ledger.InitialBlockRewardE9s != DefaultInitialBlockRewardE9s {
		t.Errorf("Expected default initial reward, got %d", cfg.Ledger.InitialBlockRewardE9s)
	}
	if cfg.Ledger.HalvingIntervalBlocks != DefaultHalvingIntervalBlocks {
		t.Errorf("Expected default halving interval, got %d", cfg.Ledger.HalvingIntervalBlocks)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BLOCK_INTERVAL", "5s")
	t.Setenv("SEED_NODES", `["10.0.0.1:8080","10.0.0.2:8080"]`)
	t.Setenv("RATE_LIMIT_PER_MINUTE", "42")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("Expected port 9999, got %s", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.BlockInterval != 5*time.Second {
		t.Errorf("Expected block interval 5s, got %v", cfg.BlockInterval)
	}
	if len(cfg.SeedNodes) != 2 || cfg.SeedNodes[0] != "10.0.0.1:8080" {
		t.Errorf("Expected 2 seed nodes, got %v", cfg.SeedNodes)
	}
	if cfg.RateLimitPerMinute != 42 {
		t.Errorf("Expected rate limit 42, got %d", cfg.RateLimitPerMinute)
	}
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	configYAML := `
port: "7777"
logLevel: warn
ledger:
  initialBlockRewardE9s: 1000
  halvingIntervalBlocks: 10
  paymentFeeBps: 100
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config file: %v", err)
	}

	if cfg.Port != "7777" {
		t.Errorf("Expected port 7777 from file, got %s", cfg.Port)
	}
	if cfg.Ledger.InitialBlockRewardE9s != 1000 {
		t.Errorf("Expected initial reward 1000, got %d", cfg.Ledger.InitialBlockRewardE9s)
	}
	if cfg.Ledger.HalvingIntervalBlocks != 10 {
		t.Errorf("Expected halving interval 10, got %d", cfg.Ledger.HalvingIntervalBlocks)
	}
	if cfg.Ledger.PaymentFeeBps != 100 {
		t.Errorf("Expected payment fee 100 bps, got %d", cfg.Ledger.PaymentFeeBps)
	}
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	configYAML := "port: \"7777\"\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "8888")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Port != "8888" {
		t.Errorf("Expected env override 8888, got %s", cfg.Port)
	}
}

func TestLedgerParams_Validate(t *testing.T) {
	p := DefaultLedgerParams()
	if err := p.Validate(); err != nil {
		t.Errorf("Default parameters failed validation: %v", err)
	}

	p = DefaultLedgerParams()
	p.HalvingIntervalBlocks = 0
	if err := p.Validate(); err == nil {
		t.Error("Expected zero halving interval to be rejected")
	}

	p = DefaultLedgerParams()
	p.PaymentFeeBps = 10001
	if err := p.Validate(); err == nil {
		t.Error("Expected fee over 100% to be rejected")
	}
}
