package main

// The emission schedule is a pure function of block height so that any node
// recomputes the same mint amount independently: the base reward halves every
// HalvingIntervalBlocks, truncating toward zero, and stays at zero once
// truncation reaches it.

// BlockRewardE9s returns the mint amount of the block at the given height.
// A height exactly on a halving boundary already uses the halved reward.
func (p LedgerParams) BlockRewardE9s(height uint64) uint64 {
	epoch := height / p.HalvingIntervalBlocks
	if epoch >= 64 {
		return 0
	}
	return p.InitialBlockRewardE9s >> epoch
}

// RegistrationFeeE9s returns the fee a principal must pay in the block at the
// given height to participate in that block's reward distribution. The fee is
// 1/100 of the block reward and funds the development wallet.
func (p LedgerParams) RegistrationFeeE9s(height uint64) uint64 {
	return p.BlockRewardE9s(height) / 100
}

// BlocksUntilNextHalving returns how many blocks remain before the reward of
// the block at the given height halves again.
func (p LedgerParams) BlocksUntilNextHalving(height uint64) uint64 {
	return p.HalvingIntervalBlocks - height%p.HalvingIntervalBlocks
}
