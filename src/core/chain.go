package main

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var chainTracer = otel.Tracer("ledger/chain")

// Chain is the append-only block store plus the committed account state it
// implies. Appends are serialized behind an exclusive lock; readers share a
// read lock, so dashboard queries never block each other.
//
// Blocks are held in a height-indexed slice; parent linkage is the index, and
// the chain is acyclic by construction. Each chain instance is self-contained
// so tests can run several side by side.
type Chain struct {
	mu       sync.RWMutex
	params   LedgerParams
	blocks   []Block
	byDigest map[string]uint64
	state    *AccountState
	store    *BlockStore

	// first height at which each provider paid a registration fee
	registered map[string]uint64
}

// NewChain creates a chain with a deterministic genesis block, or rebuilds
// one by replaying the blocks found in the store. Replay goes through the
// same transition engine as live appends, so a rebuilt chain is bit-identical
// to the one that wrote the store.
func NewChain(params LedgerParams, store *BlockStore) (*Chain, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	c := &Chain{
		params:     params,
		byDigest:   make(map[string]uint64),
		state:      NewAccountState(),
		registered: make(map[string]uint64),
	}

	var stored []Block
	if store != nil {
		var err error
		stored, err = store.LoadBlocks()
		if err != nil {
			return nil, fmt.Errorf("failed to load block store: %w", err)
		}
	}

	if len(stored) == 0 {
		genesis := Block{
			Height:     0,
			Timestamp:  params.GenesisTimestamp,
			MintAmount: params.BlockRewardE9s(0),
			PrevDigest: GenesisPrevDigest,
		}
		genesis.Digest = calculateBlockDigest(genesis)
		c.blocks = []Block{genesis}
		c.byDigest[genesis.Digest] = 0
		if store != nil {
			if err := store.PutBlock(genesis); err != nil {
				return nil, fmt.Errorf("failed to persist genesis block: %w", err)
			}
		}
	} else {
		genesis := stored[0]
		if genesis.Height != 0 || genesis.PrevDigest != GenesisPrevDigest {
			return nil, fmt.Errorf("stored chain has malformed genesis block")
		}
		if calculateBlockDigest(genesis) != genesis.Digest {
			return nil, fmt.Errorf("stored genesis block: %w", ErrDigestMismatch)
		}
		c.blocks = []Block{genesis}
		c.byDigest[genesis.Digest] = 0
		for _, block := range stored[1:] {
			if _, err := c.appendLocked(context.Background(), block, false); err != nil {
				return nil, fmt.Errorf("replay of stored block %d failed: %w", block.Height, err)
			}
		}
	}

	// Attach the store only after replay so replayed blocks are not
	// rewritten.
	c.store = store
	return c, nil
}

// Append validates a block against the chain head, applies its transactions
// atomically, and commits it. Structural failures return a chain error;
// a transaction precondition failure rejects the whole block and leaves
// committed state untouched.
func (c *Chain) Append(ctx context.Context, block Block) (BlockEffects, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(ctx, block, true)
}

func (c *Chain) appendLocked(ctx context.Context, block Block, persist bool) (BlockEffects, error) {
	_, span := chainTracer.Start(ctx, "chain.append", trace.WithAttributes(
		attribute.Int64("block.height", int64(block.Height)),
		attribute.Int("block.transactions", len(block.Transactions)),
	))
	defer span.End()

	head := c.blocks[len(c.blocks)-1]
	if block.Height != head.Height+1 {
		return BlockEffects{}, fmt.Errorf("%w: got %d, head is %d", ErrNotContiguous, block.Height, head.Height)
	}
	if block.PrevDigest != head.Digest {
		return BlockEffects{}, fmt.Errorf("%w at height %d", ErrPrevDigestMismatch, block.Height)
	}
	if calculateBlockDigest(block) != block.Digest {
		return BlockEffects{}, fmt.Errorf("%w at height %d", ErrDigestMismatch, block.Height)
	}
	// The mint amount is dictated by the schedule, never by the proposer.
	if expected := c.params.BlockRewardE9s(block.Height); block.MintAmount != expected {
		return BlockEffects{}, fmt.Errorf("%w: got %d, schedule says %d", ErrMintMismatch, block.MintAmount, expected)
	}

	prevReputations := c.state.Reputations()
	next := c.state.Clone()
	effects, err := applyBlockTransactions(c.params, next, prevReputations, block)
	if err != nil {
		return BlockEffects{}, fmt.Errorf("invalid transition in block %d: %w", block.Height, err)
	}

	if persist && c.store != nil {
		if err := c.store.PutBlock(block); err != nil {
			return BlockEffects{}, fmt.Errorf("failed to persist block %d: %w", block.Height, err)
		}
	}

	c.blocks = append(c.blocks, block)
	c.byDigest[block.Digest] = block.Height
	c.state = next
	for _, id := range effects.Eligible {
		if _, seen := c.registered[id]; !seen {
			c.registered[id] = block.Height
		}
	}
	return effects, nil
}

// ProposeBlock assembles a candidate block from pending transactions,
// dropping any that would invalidate the block. The engine itself stays
// all-or-nothing; the dry run happens here, before a block exists.
func (c *Chain) ProposeBlock(pending []Transaction, timestamp int64) (Block, []Transaction) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	head := c.blocks[len(c.blocks)-1]
	block := Block{
		Height:     head.Height + 1,
		Timestamp:  timestamp,
		MintAmount: c.params.BlockRewardE9s(head.Height + 1),
		PrevDigest: head.Digest,
	}

	prevReputations := c.state.Reputations()
	var included []Transaction
	for _, tx := range pending {
		candidate := append(append([]Transaction{}, included...), tx)
		block.Transactions = candidate
		if _, err := applyBlockTransactions(c.params, c.state.Clone(), prevReputations, block); err != nil {
			logger.Warn("Dropping transaction from block proposal", "txId", tx.ID, "error", err)
			continue
		}
		included = candidate
	}

	block.Transactions = included
	block.Digest = calculateBlockDigest(block)
	return block, included
}

// PrecheckTransaction reports whether the transaction could apply on its own
// on top of committed state, so callers can reject obvious failures at
// submission time instead of at the next block.
func (c *Chain) PrecheckTransaction(tx Transaction) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	head := c.blocks[len(c.blocks)-1]
	block := Block{
		Height:       head.Height + 1,
		Timestamp:    head.Timestamp,
		Transactions: []Transaction{tx},
		MintAmount:   c.params.BlockRewardE9s(head.Height + 1),
		PrevDigest:   head.Digest,
	}
	_, err := applyBlockTransactions(c.params, c.state.Clone(), c.state.Reputations(), block)
	return err
}

// Head returns the latest committed block
func (c *Chain) Head() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// NumBlocks returns the number of committed blocks, genesis included
func (c *Chain) NumBlocks() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.blocks))
}

// GetBlock returns the committed block at the given height
func (c *Chain) GetBlock(height uint64) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height >= uint64(len(c.blocks)) {
		return Block{}, false
	}
	return c.blocks[height], true
}

// GetBlockByDigest returns the committed block with the given digest
func (c *Chain) GetBlockByDigest(digest string) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	height, ok := c.byDigest[digest]
	if !ok {
		return Block{}, false
	}
	return c.blocks[height], true
}

// BlocksFrom returns up to limit committed blocks starting at the given
// height, in order. Used by the remote synchronization endpoint.
func (c *Chain) BlocksFrom(height uint64, limit int) []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height >= uint64(len(c.blocks)) || limit <= 0 {
		return nil
	}
	end := height + uint64(limit)
	if end > uint64(len(c.blocks)) {
		end = uint64(len(c.blocks))
	}
	out := make([]Block, end-height)
	copy(out, c.blocks[height:end])
	return out
}

// AccountOf returns the committed account of a principal
func (c *Chain) AccountOf(id string) Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Account(id)
}

// TotalSupplyE9s returns the circulating supply
func (c *Chain) TotalSupplyE9s() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TotalSupplyE9s()
}

// NumAccounts returns the number of principals on the ledger
func (c *Chain) NumAccounts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.NumAccounts()
}

// Params returns the chain's ledger parameters
func (c *Chain) Params() LedgerParams {
	return c.params
}
