package main

import "fmt"

// BlockEffects summarizes what applying one block did, for logging, metrics
// and the query facade.
type BlockEffects struct {
	FeesCollectedE9s uint64
	FeesDestroyedE9s uint64
	NewlyMintedE9s   uint64
	DistributedE9s   uint64
	Eligible         []string
}

// EffectiveRegistrationFeeE9s is the fee actually charged for a registration
// at the given height. No tokens circulate before the first distribution, so
// blocks at heights 0 and 1 admit registrants free of charge; after that the
// fee follows the emission schedule. The metadata facade advertises this same
// value, so a client paying the advertised fee always matches the engine.
func EffectiveRegistrationFeeE9s(p LedgerParams, height uint64) uint64 {
	if height <= 1 {
		return 0
	}
	return p.RegistrationFeeE9s(height)
}

// applyBlockTransactions runs the transition engine over one block's ordered
// transaction list, mutating st. The caller passes a clone of committed state
// and the reputation snapshot taken at the end of the previous block; on any
// error the clone is discarded, so rejection is atomic by construction.
func applyBlockTransactions(p LedgerParams, st *AccountState, prevReputations map[string]uint64, block Block) (BlockEffects, error) {
	var effects BlockEffects
	registrationFee := EffectiveRegistrationFeeE9s(p, block.Height)
	eligibleSet := make(map[string]bool)

	for i, tx := range block.Transactions {
		var err error
		switch tx.Type {
		case TxTypePayment:
			err = applyPayment(p, st, &effects, tx)
		case TxTypeReputationPenalty:
			err = applyReputationPenalty(p, st, tx)
		case TxTypeRegistrationFee:
			err = applyRegistrationFee(st, registrationFee, tx)
			if err == nil && !eligibleSet[tx.From] {
				eligibleSet[tx.From] = true
				effects.Eligible = append(effects.Eligible, tx.From)
			}
		default:
			err = ErrUnknownTransactionType
		}
		if err != nil {
			return BlockEffects{}, fmt.Errorf("transaction %d (%s): %w", i, tx.ID, err)
		}
	}

	// The reward pool equals the block's mint amount. Payment fees collected
	// in this block fund the pool first; only the shortfall is newly created,
	// so recycled fees plus fresh emission add up to the mint amount exactly.
	// With no eligible principals nothing is distributed or re-minted, and
	// the collected fees are destroyed.
	pool := block.MintAmount
	if len(effects.Eligible) > 0 && pool > 0 {
		recycled := effects.FeesCollectedE9s
		if recycled > pool {
			recycled = pool
		}
		effects.NewlyMintedE9s = pool - recycled
		effects.FeesDestroyedE9s = effects.FeesCollectedE9s - recycled

		// Weights come from the previous block's reputations, never from
		// reputation gained inside this block.
		shares := DistributeRewards(pool, effects.Eligible, prevReputations)
		for id, share := range shares {
			if err := st.credit(id, share); err != nil {
				return BlockEffects{}, fmt.Errorf("reward distribution to %s: %w", id, err)
			}
			effects.DistributedE9s += share
		}
	} else {
		effects.FeesDestroyedE9s = effects.FeesCollectedE9s
	}

	return effects, nil
}

func applyPayment(p LedgerParams, st *AccountState, effects *BlockEffects, tx Transaction) error {
	if st.BalanceE9s(tx.From) < tx.AmountE9s {
		return ErrInsufficientBalance
	}

	fee, err := checkedMulBps(tx.AmountE9s, p.PaymentFeeBps)
	if err != nil {
		return err
	}
	if err := st.debit(tx.From, tx.AmountE9s); err != nil {
		return err
	}
	st.touch(tx.To)
	if err := st.credit(tx.To, tx.AmountE9s-fee); err != nil {
		return err
	}
	feesCollected, err := checkedAdd(effects.FeesCollectedE9s, fee)
	if err != nil {
		return err
	}
	effects.FeesCollectedE9s = feesCollected

	// Both parties earn reputation proportional to the payment size.
	bump, err := checkedMulBps(tx.AmountE9s, p.ReputationBumpBps)
	if err != nil {
		return err
	}
	if err := st.bumpReputation(tx.From, bump, p.MaxReputationBumpPerTx); err != nil {
		return err
	}
	return st.bumpReputation(tx.To, bump, p.MaxReputationBumpPerTx)
}

func applyReputationPenalty(p LedgerParams, st *AccountState, tx Transaction) error {
	if err := st.spendReputation(tx.From, tx.AmountE9s); err != nil {
		return err
	}
	loss, err := checkedMulBps(tx.AmountE9s, p.PenaltyMultiplierBps)
	if err != nil {
		return err
	}
	st.touch(tx.To)
	st.reduceReputation(tx.To, loss)
	return nil
}

func applyRegistrationFee(st *AccountState, expectedFee uint64, tx Transaction) error {
	// The fee is dictated by the emission schedule, not chosen by the payer.
	if tx.AmountE9s != expectedFee {
		return ErrWrongRegistrationFee
	}
	if st.BalanceE9s(tx.From) < tx.AmountE9s {
		return ErrInsufficientBalance
	}
	st.touch(tx.From)
	if err := st.debit(tx.From, tx.AmountE9s); err != nil {
		return err
	}
	return st.credit(DevelopmentFundID, tx.AmountE9s)
}
