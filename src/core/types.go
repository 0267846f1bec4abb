package main

import "errors"

// Token amounts are unsigned fixed-point with 9 decimal places ("e9s").
const (
	TokenDecimals    = 9
	TokenDecimalsDiv = uint64(1_000_000_000)

	TokenName   = "Decent Cloud Token"
	TokenSymbol = "DCT"
)

// Core transaction types
type TransactionType string

const (
	TxTypePayment           TransactionType = "PAYMENT"
	TxTypeReputationPenalty TransactionType = "REPUTATION_PENALTY"
	TxTypeRegistrationFee   TransactionType = "REGISTRATION_FEE"
)

// Transaction is a single ledger operation. The same envelope carries all
// three transaction types:
//
//	PAYMENT:            From pays To AmountE9s tokens (a 2% fee is retained)
//	REPUTATION_PENALTY: From spends AmountE9s reputation to reduce To's
//	REGISTRATION_FEE:   From pays AmountE9s to the development fund and
//	                    becomes eligible for the block's reward distribution
//
// From and To are principal IDs: the lowercase hex encoding of a 32-byte
// ed25519 public key. The signature covers the canonical JSON of the
// transaction with the Signature field cleared, and verifies against From.
//
// Nonce is a client-chosen unique string. It keeps the ID of two otherwise
// identical transactions distinct, so a sender can repeat the same payment
// within the same second without colliding in the pending pool.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	AmountE9s uint64          `json:"amountE9s"`
	Memo      string          `json:"memo,omitempty"`
	Nonce     string          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
}

// Block represents a block in the ledger chain
type Block struct {
	Height       uint64        `json:"height"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	MintAmount   uint64        `json:"mintAmountE9s"`
	PrevDigest   string        `json:"prevDigest"`
	Digest       string        `json:"digest"`
}

// Account holds the committed balance and reputation of one principal
type Account struct {
	BalanceE9s uint64 `json:"balanceE9s"`
	Reputation uint64 `json:"reputation"`
}

// GenesisPrevDigest is the fixed previous-digest constant of block 0.
const GenesisPrevDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// DevelopmentFundID is the principal that collects registration fees. It is
// not derived from a real key pair, so nothing can ever be signed on its
// behalf; its balance only grows.
const DevelopmentFundID = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

// Structural chain errors: the block does not extend the committed chain.
var (
	ErrNotContiguous      = errors.New("block height is not contiguous with chain head")
	ErrPrevDigestMismatch = errors.New("block previous digest does not match chain head")
	ErrDigestMismatch     = errors.New("block digest does not match block contents")
	ErrMintMismatch       = errors.New("block mint amount does not match emission schedule")
)

// Semantic transition errors: a transaction violates a precondition. The
// whole block is rejected; committed state is never partially updated.
var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientReputation = errors.New("insufficient reputation")
	ErrWrongRegistrationFee   = errors.New("registration fee amount does not match schedule")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")
	ErrUnknownTransactionType = errors.New("unknown transaction type")
)

// IsChainError reports whether err is a structural chain error
func IsChainError(err error) bool {
	return errors.Is(err, ErrNotContiguous) ||
		errors.Is(err, ErrPrevDigestMismatch) ||
		errors.Is(err, ErrDigestMismatch) ||
		errors.Is(err, ErrMintMismatch)
}

// IsTransitionError reports whether err is a semantic transition error
func IsTransitionError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientReputation) ||
		errors.Is(err, ErrWrongRegistrationFee) ||
		errors.Is(err, ErrArithmeticOverflow) ||
		errors.Is(err, ErrUnknownTransactionType)
}
