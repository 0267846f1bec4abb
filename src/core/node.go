package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Package-level logger
var logger *slog.Logger

// initLogger initializes the structured logger based on the log level
func initLogger(logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger = slog.New(handler)
}

// PeerNode is another ledger node this one knows about
type PeerNode struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// LedgerNode is the main server structure
type LedgerNode struct {
	NodeID     string
	PrivateKey ed25519.PrivateKey
	Chain      *Chain
	Store      *BlockStore

	PendingTxs []Transaction
	KnownNodes map[string]PeerNode

	// token value pushed by the price oracle, in USD e6 per token
	tokenValueUSDe6 atomic.Uint64

	startTime int64
	cfg       *Config

	// HTTP client for network communication
	httpClient *http.Client

	// Mutexes for thread safety
	PendingTxsMutex sync.RWMutex
	KnownNodesMutex sync.RWMutex
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	initLogger(cfg.LogLevel)

	node, err := NewLedgerNode(cfg)
	if err != nil {
		logger.Error("Failed to initialize ledger node", "error", err)
		os.Exit(1)
	}
	defer node.Close()

	if err := node.LoadPendingTransactions(cfg.DataDir); err != nil {
		logger.Warn("Could not restore pending transactions", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go node.DiscoverPeers(cfg.SeedNodes)
	go node.SyncFromPeers(ctx)
	go node.runProposer(ctx, cfg.BlockInterval)

	if err := node.StartServer(ctx, cfg); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	if err := node.SavePendingTransactions(cfg.DataDir); err != nil {
		logger.Warn("Could not save pending transactions", "error", err)
	}
	logger.Info("Node shut down cleanly")
}

// NewLedgerNode opens the block store, rebuilds the chain from it, and
// generates this node's signing identity.
func NewLedgerNode(cfg *Config) (*LedgerNode, error) {
	nodeID, priv, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}

	store, err := OpenBlockStore(filepath.Join(cfg.DataDir, "blocks"))
	if err != nil {
		return nil, err
	}

	chain, err := NewChain(cfg.Ledger, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("Ledger node initialized",
		"nodeId", nodeID,
		"height", chain.Head().Height,
		"totalSupplyE9s", chain.TotalSupplyE9s())

	return &LedgerNode{
		NodeID:     nodeID,
		PrivateKey: priv,
		Chain:      chain,
		Store:      store,
		KnownNodes: make(map[string]PeerNode),
		startTime:  time.Now().Unix(),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Close releases the node's resources
func (node *LedgerNode) Close() {
	if node.Store != nil {
		node.Store.Close()
	}
}

// SubmitTransaction validates a transaction and queues it for the next block
func (node *LedgerNode) SubmitTransaction(tx Transaction) error {
	if err := ValidateTransaction(tx); err != nil {
		RecordTransactionRejected()
		return err
	}
	// Semantic failures against committed state are reported right away
	// instead of silently vanishing at the next proposal.
	if err := node.Chain.PrecheckTransaction(tx); err != nil {
		RecordTransactionRejected()
		return err
	}

	node.PendingTxsMutex.Lock()
	for _, pending := range node.PendingTxs {
		if pending.ID == tx.ID {
			node.PendingTxsMutex.Unlock()
			return fmt.Errorf("transaction %s is already pending", tx.ID)
		}
	}
	node.PendingTxs = append(node.PendingTxs, tx)
	poolSize := len(node.PendingTxs)
	node.PendingTxsMutex.Unlock()

	RecordPendingPoolSize(poolSize)
	logger.Debug("Transaction queued", "txId", tx.ID, "type", tx.Type, "poolSize", poolSize)

	go node.BroadcastTransaction(tx)
	return nil
}

// runProposer produces a block every interval from whatever is pending.
// Empty blocks still advance the chain so the emission schedule keeps time.
func (node *LedgerNode) runProposer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := node.ProduceBlock(ctx); err != nil {
				logger.Error("Failed to produce block", "error", err)
			}
		}
	}
}

// ProduceBlock proposes a block from the pending pool, commits it, and
// removes the included transactions from the pool.
func (node *LedgerNode) ProduceBlock(ctx context.Context) error {
	node.PendingTxsMutex.RLock()
	pending := make([]Transaction, len(node.PendingTxs))
	copy(pending, node.PendingTxs)
	node.PendingTxsMutex.RUnlock()

	block, included := node.Chain.ProposeBlock(pending, time.Now().Unix())

	effects, err := node.Chain.Append(ctx, block)
	if err != nil {
		RecordBlockRejected("local_proposal")
		return err
	}

	includedIDs := make(map[string]bool, len(included))
	for _, tx := range included {
		includedIDs[tx.ID] = true
	}
	droppedIDs := make(map[string]bool)
	for _, tx := range pending {
		if !includedIDs[tx.ID] {
			droppedIDs[tx.ID] = true
		}
	}

	node.PendingTxsMutex.Lock()
	remaining := node.PendingTxs[:0]
	for _, tx := range node.PendingTxs {
		if !includedIDs[tx.ID] && !droppedIDs[tx.ID] {
			remaining = append(remaining, tx)
		}
	}
	node.PendingTxs = remaining
	poolSize := len(remaining)
	node.PendingTxsMutex.Unlock()

	RecordBlockCommitted(block, effects, node.Chain.TotalSupplyE9s())
	RecordPendingPoolSize(poolSize)
	go node.BroadcastBlock(block)

	logger.Info("Block committed",
		"height", block.Height,
		"transactions", len(block.Transactions),
		"mintedE9s", effects.NewlyMintedE9s,
		"distributedE9s", effects.DistributedE9s,
		"eligible", len(effects.Eligible))

	if poolSize == 0 {
		if err := node.ClearPendingTransactionsFile(node.cfg.DataDir); err != nil {
			logger.Warn("Could not clear pending transactions file", "error", err)
		}
	}
	return nil
}

// TokenValueUSDe6 returns the last oracle-reported token value
func (node *LedgerNode) TokenValueUSDe6() uint64 {
	return node.tokenValueUSDe6.Load()
}

// SetTokenValueUSDe6 records an oracle-reported token value
func (node *LedgerNode) SetTokenValueUSDe6(v uint64) {
	node.tokenValueUSDe6.Store(v)
}
