package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

var principalIDPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ValidatePrincipalID checks that a principal ID is 64 lowercase hex chars
func ValidatePrincipalID(id string) error {
	if !principalIDPattern.MatchString(id) {
		return fmt.Errorf("invalid principal ID %q: must be 64 lowercase hex characters", id)
	}
	return nil
}

// ValidateTransaction runs every check that does not need ledger state:
// field shape, transaction ID integrity, and the ed25519 signature. A
// transaction that passes here can still be rejected by the transition
// engine over balances or reputation.
func ValidateTransaction(tx Transaction) error {
	switch tx.Type {
	case TxTypePayment, TxTypeReputationPenalty, TxTypeRegistrationFee:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransactionType, tx.Type)
	}

	if err := ValidatePrincipalID(tx.From); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if err := ValidatePrincipalID(tx.To); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	if tx.Type == TxTypePayment && tx.From == tx.To {
		return fmt.Errorf("payment from %s to itself is not allowed", tx.From)
	}
	// Registration fees may legitimately be zero during bootstrap.
	if tx.AmountE9s == 0 && tx.Type != TxTypeRegistrationFee {
		return fmt.Errorf("transaction amount must be positive")
	}
	if tx.Timestamp <= 0 {
		return fmt.Errorf("transaction timestamp must be positive")
	}
	if tx.Nonce == "" {
		return fmt.Errorf("transaction nonce must be set")
	}
	if len(tx.Nonce) > 64 {
		return fmt.Errorf("nonce exceeds 64 bytes")
	}
	if len(tx.Memo) > 256 {
		return fmt.Errorf("memo exceeds 256 bytes")
	}

	if err := verifyTransactionID(tx); err != nil {
		return err
	}
	if !VerifyTransactionSignature(tx) {
		return fmt.Errorf("invalid signature for transaction %s", tx.ID)
	}
	return nil
}

// verifyTransactionID recomputes the ID from the transaction contents and
// compares it to the claimed one
func verifyTransactionID(tx Transaction) error {
	claimed := tx.ID
	tx.ID = ""
	data, err := TransactionSignableData(tx)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	digest := sha256.Sum256(data)
	if expected := hex.EncodeToString(digest[:]); claimed != expected {
		return fmt.Errorf("transaction ID mismatch: claimed %s, computed %s", claimed, expected)
	}
	return nil
}
