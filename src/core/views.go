package main

import "fmt"

// Read-side projections over the committed chain. Everything here is derived
// from blocks the chain has already accepted; nothing mutates state.

// IsProvider reports whether the principal has ever paid a registration fee
func (c *Chain) IsProvider(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.registered[id]
	return ok
}

// ProviderCount returns the number of principals that have ever registered
func (c *Chain) ProviderCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.registered)
}

// EligibleAt returns the principals that paid a registration fee within the
// block at the given height, in the order rewards credited them.
func (c *Chain) EligibleAt(height uint64) []string {
	block, ok := c.GetBlock(height)
	if !ok {
		return nil
	}
	return eligibleInBlock(block)
}

func eligibleInBlock(block Block) []string {
	seen := make(map[string]bool)
	var eligible []string
	for _, tx := range block.Transactions {
		if tx.Type == TxTypeRegistrationFee && !seen[tx.From] {
			seen[tx.From] = true
			eligible = append(eligible, tx.From)
		}
	}
	return eligible
}

// ValidatorCountAt returns how many principals checked in at the given height
func (c *Chain) ValidatorCountAt(height uint64) int {
	return len(c.EligibleAt(height))
}

// Metadata returns the ledger summary map served by the metadata endpoint.
// Keys follow the ledger:* naming that client tooling already scrapes.
func (c *Chain) Metadata(tokenValueUSDe6 uint64) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	head := c.blocks[len(c.blocks)-1]
	nextHeight := head.Height + 1
	return map[string]interface{}{
		"ledger:num_blocks":                uint64(len(c.blocks)),
		"ledger:latest_block_digest":       head.Digest,
		"ledger:latest_block_timestamp":    head.Timestamp,
		"ledger:current_block_rewards_e9s": c.params.BlockRewardE9s(nextHeight),
		"ledger:current_registration_fee":  EffectiveRegistrationFeeE9s(c.params, nextHeight),
		"ledger:blocks_until_next_halving": c.params.BlocksUntilNextHalving(nextHeight),
		"ledger:current_block_validators":  len(eligibleInBlock(head)),
		"ledger:total_providers":           len(c.registered),
		"ledger:total_supply_e9s":          c.state.TotalSupplyE9s(),
		"ledger:num_accounts":              c.state.NumAccounts(),
		"ledger:token_value_in_usd_e6":     tokenValueUSDe6,
		"ledger:token_name":                TokenName,
		"ledger:token_symbol":              TokenSymbol,
		"ledger:token_decimals":            TokenDecimals,
	}
}

// FormatTokenAmount renders an e9s amount as a decimal token string
func FormatTokenAmount(amountE9s uint64) string {
	whole := amountE9s / TokenDecimalsDiv
	frac := amountE9s % TokenDecimalsDiv
	return fmt.Sprintf("%d.%09d", whole, frac)
}
