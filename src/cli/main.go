// Command dct is a small client for a ledger node: it manages a local
// ed25519 identity and submits signed transactions over the node's HTTP API.
package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	nodeURL string
	keyFile string
)

func main() {
	root := &cobra.Command{
		Use:   "dct",
		Short: "Client for a Decent Cloud ledger node",
	}

	defaultKeyFile := filepath.Join(os.Getenv("HOME"), ".dct", "identity.json")
	root.PersistentFlags().StringVar(&nodeURL, "node", "http://localhost:8080", "base URL of the ledger node")
	root.PersistentFlags().StringVar(&keyFile, "key-file", defaultKeyFile, "path to the identity file")

	root.AddCommand(
		keygenCmd(),
		accountCmd(),
		balanceCmd(),
		metadataCmd(),
		blocksCmd(),
		fetchCmd(),
		payCmd(),
		penalizeCmd(),
		registerCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// identity is the on-disk key format
type identity struct {
	Principal  string `json:"principal"`
	PrivateKey string `json:"privateKey"`
}

func loadIdentity() (identity, ed25519.PrivateKey, error) {
	var id identity
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return id, nil, fmt.Errorf("failed to read identity file %s (run 'dct keygen' first): %w", keyFile, err)
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return id, nil, fmt.Errorf("failed to parse identity file: %w", err)
	}
	raw, err := hex.DecodeString(id.PrivateKey)
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return id, nil, fmt.Errorf("identity file holds an invalid private key")
	}
	return id, ed25519.PrivateKey(raw), nil
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new identity and store it in the key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(keyFile); err == nil {
				return fmt.Errorf("identity file %s already exists", keyFile)
			}

			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("failed to generate key pair: %w", err)
			}
			id := identity{
				Principal:  hex.EncodeToString(pub),
				PrivateKey: hex.EncodeToString(priv),
			}

			if err := os.MkdirAll(filepath.Dir(keyFile), 0700); err != nil {
				return fmt.Errorf("failed to create key directory: %w", err)
			}
			data, _ := json.MarshalIndent(id, "", "  ")
			if err := os.WriteFile(keyFile, data, 0600); err != nil {
				return fmt.Errorf("failed to write identity file: %w", err)
			}

			fmt.Println("Principal:", id.Principal)
			fmt.Println("Identity saved to", keyFile)
			return nil
		},
	}
}

func accountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account [principal]",
		Short: "Show balance, reputation and provider status of a principal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := principalArg(args)
			if err != nil {
				return err
			}
			return getAndPrint("/api/accounts/" + principal)
		},
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [principal]",
		Short: "Show the token balance of a principal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := principalArg(args)
			if err != nil {
				return err
			}
			return getAndPrint("/api/token/balance/" + principal)
		},
	}
}

func metadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata",
		Short: "Show the ledger summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/api/metadata")
		},
	}
}

func blocksCmd() *cobra.Command {
	var from uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "List committed blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(fmt.Sprintf("/api/blocks?from=%d&limit=%d", from, limit))
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first block height to fetch")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of blocks")
	return cmd
}

func fetchCmd() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Pull blocks from a remote node into the local one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote == "" {
				return fmt.Errorf("--remote is required")
			}

			resp, err := http.Get(nodeURL + "/api/metadata")
			if err != nil {
				return fmt.Errorf("failed to reach local node: %w", err)
			}
			var md map[string]interface{}
			err = json.NewDecoder(resp.Body).Decode(&md)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("failed to decode local metadata: %w", err)
			}
			numBlocks, ok := md["ledger:num_blocks"].(float64)
			if !ok {
				return fmt.Errorf("local node metadata is missing the block count")
			}

			fetched := 0
			for {
				resp, err := http.Get(fmt.Sprintf("%s/api/blocks?from=%d", remote, uint64(numBlocks)+uint64(fetched)))
				if err != nil {
					return fmt.Errorf("failed to reach remote node: %w", err)
				}
				var page struct {
					Blocks []json.RawMessage `json:"blocks"`
				}
				err = json.NewDecoder(resp.Body).Decode(&page)
				resp.Body.Close()
				if err != nil {
					return fmt.Errorf("failed to decode remote blocks: %w", err)
				}
				if len(page.Blocks) == 0 {
					break
				}

				for _, raw := range page.Blocks {
					resp, err := http.Post(nodeURL+"/api/blocks", "application/json", bytes.NewReader(raw))
					if err != nil {
						return fmt.Errorf("failed to push block to local node: %w", err)
					}
					body, _ := io.ReadAll(resp.Body)
					resp.Body.Close()
					if resp.StatusCode != http.StatusOK {
						return fmt.Errorf("local node rejected block after %d fetched: %s",
							fetched, strings.TrimSpace(string(body)))
					}
					fetched++
				}
			}

			fmt.Printf("Fetched %d blocks from %s\n", fetched, remote)
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of the remote node to fetch from")
	return cmd
}

func payCmd() *cobra.Command {
	var memo string
	cmd := &cobra.Command{
		Use:   "pay <recipient> <amount>",
		Short: "Transfer tokens to another principal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseTokenAmount(args[1])
			if err != nil {
				return err
			}
			return submitTransaction("PAYMENT", args[0], amount, memo)
		},
	}
	cmd.Flags().StringVar(&memo, "memo", "", "optional payment memo")
	return cmd
}

func penalizeCmd() *cobra.Command {
	var memo string
	cmd := &cobra.Command{
		Use:   "penalize <target> <reputation>",
		Short: "Spend own reputation to reduce another principal's",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseTokenAmount(args[1])
			if err != nil {
				return err
			}
			return submitTransaction("REPUTATION_PENALTY", args[0], amount, memo)
		},
	}
	cmd.Flags().StringVar(&memo, "memo", "", "optional reason")
	return cmd
}

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Pay the registration fee for the next block's reward round",
		RunE: func(cmd *cobra.Command, args []string) error {
			fee, err := currentRegistrationFee()
			if err != nil {
				return err
			}
			const developmentFund = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
			return submitTransaction("REGISTRATION_FEE", developmentFund, fee, "")
		},
	}
}

// transaction mirrors the node's wire format; field order matters because the
// signature covers the canonical JSON encoding.
type transaction struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	AmountE9s uint64 `json:"amountE9s"`
	Memo      string `json:"memo,omitempty"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

func submitTransaction(txType, to string, amountE9s uint64, memo string) error {
	id, priv, err := loadIdentity()
	if err != nil {
		return err
	}

	tx := transaction{
		Type:      txType,
		From:      id.Principal,
		To:        to,
		AmountE9s: amountE9s,
		Memo:      memo,
		Nonce:     uuid.New().String(),
		Timestamp: time.Now().Unix(),
	}

	signable, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(signable)
	tx.ID = hex.EncodeToString(digest[:])

	signable, err = json.Marshal(tx)
	if err != nil {
		return err
	}
	tx.Signature = hex.EncodeToString(ed25519.Sign(priv, signable))

	body, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	resp, err := http.Post(nodeURL+"/api/transactions", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach node: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rejected transaction: %s", strings.TrimSpace(string(payload)))
	}
	fmt.Println(strings.TrimSpace(string(payload)))
	return nil
}

func currentRegistrationFee() (uint64, error) {
	resp, err := http.Get(nodeURL + "/api/metadata")
	if err != nil {
		return 0, fmt.Errorf("failed to reach node: %w", err)
	}
	defer resp.Body.Close()

	var md map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return 0, fmt.Errorf("failed to decode metadata: %w", err)
	}
	fee, ok := md["ledger:current_registration_fee"].(float64)
	if !ok {
		return 0, fmt.Errorf("node metadata is missing the registration fee")
	}
	return uint64(fee), nil
}

func principalArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	id, _, err := loadIdentity()
	if err != nil {
		return "", err
	}
	return id.Principal, nil
}

// parseTokenAmount converts a decimal token string like "1.5" into e9s
func parseTokenAmount(s string) (uint64, error) {
	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 9 {
		return 0, fmt.Errorf("amount %q has more than 9 decimal places", s)
	}
	frac += strings.Repeat("0", 9-len(frac))

	var amount uint64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		d := uint64(r - '0')
		if amount > (^uint64(0)-d)/10 {
			return 0, fmt.Errorf("amount %q is too large", s)
		}
		amount = amount*10 + d
	}
	return amount, nil
}

func getAndPrint(path string) error {
	resp, err := http.Get(nodeURL + path)
	if err != nil {
		return fmt.Errorf("failed to reach node: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		fmt.Println(strings.TrimSpace(string(payload)))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
