package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LedgerParams are the consensus-critical parameters of the emission schedule
// and the transition engine. Every node on a chain must use identical values
// or replays diverge.
type LedgerParams struct {
	InitialBlockRewardE9s  uint64 `yaml:"initialBlockRewardE9s" json:"initialBlockRewardE9s"`
	HalvingIntervalBlocks  uint64 `yaml:"halvingIntervalBlocks" json:"halvingIntervalBlocks"`
	PaymentFeeBps          uint64 `yaml:"paymentFeeBps" json:"paymentFeeBps"`
	ReputationBumpBps      uint64 `yaml:"reputationBumpBps" json:"reputationBumpBps"`
	PenaltyMultiplierBps   uint64 `yaml:"penaltyMultiplierBps" json:"penaltyMultiplierBps"`
	MaxReputationBumpPerTx uint64 `yaml:"maxReputationBumpPerTx" json:"maxReputationBumpPerTx"`
	GenesisTimestamp       int64  `yaml:"genesisTimestamp" json:"genesisTimestamp"`
}

// Config holds the application configuration
type Config struct {
	Port               string        `yaml:"port"`
	SeedNodes          []string      `yaml:"seedNodes"`
	LogLevel           string        `yaml:"logLevel"`
	BlockInterval      time.Duration `yaml:"blockInterval"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
	MaxBodySizeBytes   int64         `yaml:"maxBodySizeBytes"`
	DataDir            string        `yaml:"dataDir"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout"`
	Ledger             LedgerParams  `yaml:"ledger"`
}

// Default values
const (
	DefaultRateLimitPerMinute = 100
	DefaultMaxBodySizeBytes   = 1 << 20 // 1MB
	DefaultDataDir            = "./data"
	DefaultShutdownTimeout    = 30 * time.Second

	DefaultInitialBlockRewardE9s  = 50 * 1_000_000_000 // 50 tokens
	DefaultHalvingIntervalBlocks  = 210_000
	DefaultPaymentFeeBps          = 200   // 2%
	DefaultReputationBumpBps      = 100   // 1%
	DefaultPenaltyMultiplierBps   = 20000 // receiver loses 200% of sender's spend
	DefaultMaxReputationBumpPerTx = 10 * 1_000_000_000

	// Fixed so that independently constructed genesis blocks are identical.
	DefaultGenesisTimestamp = int64(1_700_000_000)
)

// DefaultLedgerParams returns the ledger parameters used when none are configured
func DefaultLedgerParams() LedgerParams {
	return LedgerParams{
		InitialBlockRewardE9s:  DefaultInitialBlockRewardE9s,
		HalvingIntervalBlocks:  DefaultHalvingIntervalBlocks,
		PaymentFeeBps:          DefaultPaymentFeeBps,
		ReputationBumpBps:      DefaultReputationBumpBps,
		PenaltyMultiplierBps:   DefaultPenaltyMultiplierBps,
		MaxReputationBumpPerTx: DefaultMaxReputationBumpPerTx,
		GenesisTimestamp:       DefaultGenesisTimestamp,
	}
}

// Validate rejects parameter combinations that would make the emission
// schedule or the fee rules undefined.
func (p LedgerParams) Validate() error {
	if p.HalvingIntervalBlocks == 0 {
		return fmt.Errorf("halvingIntervalBlocks must be positive")
	}
	if p.PaymentFeeBps > 10000 {
		return fmt.Errorf("paymentFeeBps must not exceed 10000")
	}
	if p.ReputationBumpBps > 10000 {
		return fmt.Errorf("reputationBumpBps must not exceed 10000")
	}
	return nil
}

// LoadConfig reads configuration from an optional YAML file (CONFIG_FILE)
// with environment variable overrides on top.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:               "8080",
		SeedNodes:          nil,
		LogLevel:           "info",
		BlockInterval:      60 * time.Second,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		MaxBodySizeBytes:   DefaultMaxBodySizeBytes,
		DataDir:            DefaultDataDir,
		ShutdownTimeout:    DefaultShutdownTimeout,
		Ledger:             DefaultLedgerParams(),
	}

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if seedNodesEnv := os.Getenv("SEED_NODES"); seedNodesEnv != "" {
		var seedNodes []string
		if err := json.Unmarshal([]byte(seedNodesEnv), &seedNodes); err == nil && len(seedNodes) > 0 {
			cfg.SeedNodes = seedNodes
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if blockInterval := os.Getenv("BLOCK_INTERVAL"); blockInterval != "" {
		if duration, err := time.ParseDuration(blockInterval); err == nil {
			cfg.BlockInterval = duration
		}
	}

	if rateLimitEnv := os.Getenv("RATE_LIMIT_PER_MINUTE"); rateLimitEnv != "" {
		if rateLimit, err := strconv.Atoi(rateLimitEnv); err == nil && rateLimit > 0 {
			cfg.RateLimitPerMinute = rateLimit
		}
	}

	if maxBodyEnv := os.Getenv("MAX_BODY_SIZE_BYTES"); maxBodyEnv != "" {
		if maxBody, err := strconv.ParseInt(maxBodyEnv, 10, 64); err == nil && maxBody > 0 {
			cfg.MaxBodySizeBytes = maxBody
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	if shutdownTimeout := os.Getenv("SHUTDOWN_TIMEOUT"); shutdownTimeout != "" {
		if duration, err := time.ParseDuration(shutdownTimeout); err == nil {
			cfg.ShutdownTimeout = duration
		}
	}

	if err := cfg.Ledger.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger parameters: %w", err)
	}

	return cfg, nil
}
