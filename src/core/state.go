package main

// AccountState is the principal registry: committed balances and reputations
// keyed by principal ID. It is a plain value container with no locking of its
// own; the chain serializes writers and hands read-only snapshots to readers.
type AccountState struct {
	accounts map[string]Account
}

// NewAccountState returns an empty principal registry
func NewAccountState() *AccountState {
	return &AccountState{accounts: make(map[string]Account)}
}

// Clone returns a deep copy. Block application mutates a clone and the chain
// swaps it in only after the whole block succeeds.
func (s *AccountState) Clone() *AccountState {
	cp := &AccountState{accounts: make(map[string]Account, len(s.accounts))}
	for id, acct := range s.accounts {
		cp.accounts[id] = acct
	}
	return cp
}

// Account returns the account for a principal. Principals are created
// implicitly on first appearance, so a missing entry is a zero account.
func (s *AccountState) Account(id string) Account {
	return s.accounts[id]
}

// BalanceE9s returns the committed token balance of a principal
func (s *AccountState) BalanceE9s(id string) uint64 {
	return s.accounts[id].BalanceE9s
}

// Reputation returns the committed reputation of a principal
func (s *AccountState) Reputation(id string) uint64 {
	return s.accounts[id].Reputation
}

// Reputations returns a copy of all reputation scores, used to snapshot the
// previous block's reputations before applying a new block.
func (s *AccountState) Reputations() map[string]uint64 {
	reps := make(map[string]uint64, len(s.accounts))
	for id, acct := range s.accounts {
		if acct.Reputation > 0 {
			reps[id] = acct.Reputation
		}
	}
	return reps
}

// TotalSupplyE9s returns the sum of all balances. Fees are either recycled
// into reward distributions or destroyed, never held outside accounts, so the
// sum of balances is the circulating supply.
func (s *AccountState) TotalSupplyE9s() uint64 {
	var total uint64
	for _, acct := range s.accounts {
		total += acct.BalanceE9s
	}
	return total
}

// NumAccounts returns the number of principals that have appeared on the ledger
func (s *AccountState) NumAccounts() int {
	return len(s.accounts)
}

// checkedAdd returns a+b or ErrArithmeticOverflow. Balances and reputations
// never silently wrap.
func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// checkedMulBps returns amount*bps/10000 or ErrArithmeticOverflow
func checkedMulBps(amount, bps uint64) (uint64, error) {
	if bps != 0 && amount > ^uint64(0)/bps {
		return 0, ErrArithmeticOverflow
	}
	return amount * bps / 10000, nil
}

// credit adds amountE9s to a principal's balance
func (s *AccountState) credit(id string, amountE9s uint64) error {
	acct := s.accounts[id]
	balance, err := checkedAdd(acct.BalanceE9s, amountE9s)
	if err != nil {
		return err
	}
	acct.BalanceE9s = balance
	s.accounts[id] = acct
	return nil
}

// debit removes amountE9s from a principal's balance. The caller must have
// verified the balance; running short here is still an error, never a wrap.
func (s *AccountState) debit(id string, amountE9s uint64) error {
	acct := s.accounts[id]
	if acct.BalanceE9s < amountE9s {
		return ErrInsufficientBalance
	}
	acct.BalanceE9s -= amountE9s
	s.accounts[id] = acct
	return nil
}

// bumpReputation adds delta to a principal's reputation, capped per
// transaction
func (s *AccountState) bumpReputation(id string, delta, capPerTx uint64) error {
	if capPerTx > 0 && delta > capPerTx {
		delta = capPerTx
	}
	acct := s.accounts[id]
	rep, err := checkedAdd(acct.Reputation, delta)
	if err != nil {
		return err
	}
	acct.Reputation = rep
	s.accounts[id] = acct
	return nil
}

// spendReputation removes exactly delta from a principal's reputation and
// fails if the principal does not have that much.
func (s *AccountState) spendReputation(id string, delta uint64) error {
	acct := s.accounts[id]
	if acct.Reputation < delta {
		return ErrInsufficientReputation
	}
	acct.Reputation -= delta
	s.accounts[id] = acct
	return nil
}

// reduceReputation removes up to delta from a principal's reputation,
// flooring at zero. Used for the receiver side of a penalty.
func (s *AccountState) reduceReputation(id string, delta uint64) {
	acct := s.accounts[id]
	if acct.Reputation < delta {
		acct.Reputation = 0
	} else {
		acct.Reputation -= delta
	}
	s.accounts[id] = acct
}

// touch ensures a principal exists in the registry even with a zero account,
// so "created on first appearance" is observable in account counts.
func (s *AccountState) touch(id string) {
	if _, ok := s.accounts[id]; !ok {
		s.accounts[id] = Account{}
	}
}
