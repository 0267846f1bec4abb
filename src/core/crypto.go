package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GenerateIdentity creates a new ed25519 key pair. The principal ID is the
// lowercase hex encoding of the 32-byte public key.
func GenerateIdentity() (id string, priv ed25519.PrivateKey, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return hex.EncodeToString(pub), priv, nil
}

// PrincipalPublicKey decodes a principal ID back into its public key
func PrincipalPublicKey(id string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid principal ID: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid principal ID: expected %d key bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// TransactionSignableData returns the canonical bytes a transaction signature
// covers: the JSON encoding with the signature field cleared. Go marshals
// struct fields in declaration order, which makes this deterministic.
func TransactionSignableData(tx Transaction) ([]byte, error) {
	tx.Signature = ""
	return json.Marshal(tx)
}

// SignTransaction fills in the transaction nonce, ID and signature. The ID
// is the hex SHA-256 of the signable data; the nonce keeps it unique even
// when the same sender repeats the same transfer within one second.
func SignTransaction(tx *Transaction, priv ed25519.PrivateKey) error {
	if tx.Nonce == "" {
		tx.Nonce = uuid.New().String()
	}
	tx.ID = ""
	data, err := TransactionSignableData(*tx)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(data)
	tx.ID = hex.EncodeToString(digest[:])

	data, err = TransactionSignableData(*tx)
	if err != nil {
		return err
	}
	tx.Signature = hex.EncodeToString(ed25519.Sign(priv, data))
	return nil
}

// VerifyTransactionSignature checks the signature against the From principal
func VerifyTransactionSignature(tx Transaction) bool {
	pub, err := PrincipalPublicKey(tx.From)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(tx.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	data, err := TransactionSignableData(tx)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// calculateBlockDigest computes the digest for a block: hex SHA-256 over the
// block's canonical JSON with the digest field excluded. Two blocks with
// identical contents always produce identical digests.
func calculateBlockDigest(block Block) string {
	blockData, _ := json.Marshal(struct {
		Height       uint64        `json:"height"`
		Timestamp    int64         `json:"timestamp"`
		Transactions []Transaction `json:"transactions"`
		MintAmount   uint64        `json:"mintAmountE9s"`
		PrevDigest   string        `json:"prevDigest"`
	}{
		Height:       block.Height,
		Timestamp:    block.Timestamp,
		Transactions: block.Transactions,
		MintAmount:   block.MintAmount,
		PrevDigest:   block.PrevDigest,
	})

	digest := sha256.Sum256(blockData)
	return hex.EncodeToString(digest[:])
}
