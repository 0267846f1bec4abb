package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBlocksPerPage = 1000

// StartServer starts the HTTP server for API endpoints and blocks until the
// context is cancelled, then drains in-flight requests.
func (node *LedgerNode) StartServer(ctx context.Context, cfg *Config) error {
	router := mux.NewRouter()

	// API endpoints
	router.HandleFunc("/api/health", node.HealthCheckHandler).Methods("GET")
	router.HandleFunc("/api/nodes", node.GetNodesHandler).Methods("GET")
	router.HandleFunc("/api/nodes", node.RegisterNodeHandler).Methods("POST")
	router.HandleFunc("/api/metadata", node.GetMetadataHandler).Methods("GET")

	// Transaction endpoints
	router.HandleFunc("/api/transactions", node.GetTransactionsHandler).Methods("GET")
	router.HandleFunc("/api/transactions", node.SubmitTransactionHandler).Methods("POST")

	// Block endpoints
	router.HandleFunc("/api/blocks", node.GetBlocksHandler).Methods("GET")
	router.HandleFunc("/api/blocks", node.ReceiveBlockHandler).Methods("POST")
	router.HandleFunc("/api/blocks/{height:[0-9]+}", node.GetBlockHandler).Methods("GET")
	router.HandleFunc("/api/blocks/digest/{digest}", node.GetBlockByDigestHandler).Methods("GET")

	// Account endpoints
	router.HandleFunc("/api/accounts/{id}", node.GetAccountHandler).Methods("GET")

	// Token endpoints
	router.HandleFunc("/api/token/info", node.GetTokenInfoHandler).Methods("GET")
	router.HandleFunc("/api/token/total-supply", node.GetTotalSupplyHandler).Methods("GET")
	router.HandleFunc("/api/token/balance/{id}", node.GetBalanceHandler).Methods("GET")

	// Oracle endpoint
	router.HandleFunc("/api/oracle/token-value", node.SetTokenValueHandler).Methods("POST")

	router.Handle("/metrics", promhttp.Handler())

	router.Use(RequestIDMiddleware)
	router.Use(MetricsMiddleware)
	router.Use(RateLimitMiddleware(NewIPRateLimiter(cfg.RateLimitPerMinute)))
	router.Use(BodySizeLimitMiddleware(cfg.MaxBodySizeBytes))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "ledger-node"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ledger node server", "port", cfg.Port, "nodeId", node.NodeID)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server")
		return server.Shutdown(shutdownCtx)
	}
}

// HealthCheckHandler handles health check requests
func (node *LedgerNode) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	head := node.Chain.Head()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"node_id": node.NodeID,
		"height":  head.Height,
		"uptime":  time.Now().Unix() - node.startTime,
		"version": "1.0.0",
	})
}

// GetNodesHandler returns the list of known nodes
func (node *LedgerNode) GetNodesHandler(w http.ResponseWriter, r *http.Request) {
	node.KnownNodesMutex.RLock()
	defer node.KnownNodesMutex.RUnlock()

	var nodesList []PeerNode
	for _, n := range node.KnownNodes {
		nodesList = append(nodesList, n)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"nodes": nodesList,
	})
}

// RegisterNodeHandler records a peer that announced itself
func (node *LedgerNode) RegisterNodeHandler(w http.ResponseWriter, r *http.Request) {
	var peer PeerNode
	if err := DecodeJSONBody(w, r, &peer); err != nil {
		return
	}
	if peer.ID == "" || peer.Address == "" {
		http.Error(w, "Peer id and address are required", http.StatusBadRequest)
		return
	}

	node.KnownNodesMutex.Lock()
	node.KnownNodes[peer.ID] = peer
	node.KnownNodesMutex.Unlock()

	logger.Debug("Registered peer", "peerId", peer.ID, "address", peer.Address)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
	})
}

// GetMetadataHandler returns the ledger summary map
func (node *LedgerNode) GetMetadataHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(node.Chain.Metadata(node.TokenValueUSDe6()))
}

// GetTransactionsHandler returns pending transactions
func (node *LedgerNode) GetTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	node.PendingTxsMutex.RLock()
	defer node.PendingTxsMutex.RUnlock()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"pending_transactions": node.PendingTxs,
	})
}

// SubmitTransactionHandler accepts a signed transaction for the pending pool
func (node *LedgerNode) SubmitTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var tx Transaction
	if err := DecodeJSONBody(w, r, &tx); err != nil {
		return
	}

	if err := node.SubmitTransaction(tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "success",
		"transaction_id": tx.ID,
		"message":        "Transaction added to pending pool",
	})
}

// GetBlocksHandler returns committed blocks, optionally starting at ?from=
func (node *LedgerNode) GetBlocksHandler(w http.ResponseWriter, r *http.Request) {
	from := uint64(0)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "Invalid from parameter", http.StatusBadRequest)
			return
		}
		from = parsed
	}

	limit := maxBlocksPerPage
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	blocks := node.Chain.BlocksFrom(from, limit)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"blocks": blocks,
		"height": node.Chain.Head().Height,
	})
}

// ReceiveBlockHandler accepts a block broadcast by a peer
func (node *LedgerNode) ReceiveBlockHandler(w http.ResponseWriter, r *http.Request) {
	var block Block
	if err := DecodeJSONBody(w, r, &block); err != nil {
		return
	}

	effects, err := node.Chain.Append(r.Context(), block)
	if err != nil {
		if IsChainError(err) {
			RecordBlockRejected("structural")
		} else {
			RecordBlockRejected("transition")
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	node.removeCommittedFromPool(block)
	RecordBlockCommitted(block, effects, node.Chain.TotalSupplyE9s())
	logger.Info("Accepted block from peer", "height", block.Height, "transactions", len(block.Transactions))

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
		"height": block.Height,
	})
}

// GetBlockHandler returns one block by height
func (node *LedgerNode) GetBlockHandler(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid block height", http.StatusBadRequest)
		return
	}

	block, ok := node.Chain.GetBlock(height)
	if !ok {
		http.Error(w, "Block not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(block)
}

// GetBlockByDigestHandler returns one block by digest
func (node *LedgerNode) GetBlockByDigestHandler(w http.ResponseWriter, r *http.Request) {
	block, ok := node.Chain.GetBlockByDigest(mux.Vars(r)["digest"])
	if !ok {
		http.Error(w, "Block not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(block)
}

// GetAccountHandler returns the balance, reputation and provider status of a principal
func (node *LedgerNode) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := ValidatePrincipalID(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	account := node.Chain.AccountOf(id)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"principal":   id,
		"balance_e9s": account.BalanceE9s,
		"balance":     FormatTokenAmount(account.BalanceE9s),
		"reputation":  account.Reputation,
		"is_provider": node.Chain.IsProvider(id),
	})
}

// GetTokenInfoHandler returns the token's static parameters
func (node *LedgerNode) GetTokenInfoHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"name":            TokenName,
		"symbol":          TokenSymbol,
		"decimals":        TokenDecimals,
		"payment_fee_bps": node.Chain.Params().PaymentFeeBps,
	})
}

// GetTotalSupplyHandler returns the circulating supply
func (node *LedgerNode) GetTotalSupplyHandler(w http.ResponseWriter, r *http.Request) {
	supply := node.Chain.TotalSupplyE9s()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_supply_e9s": supply,
		"total_supply":     FormatTokenAmount(supply),
	})
}

// GetBalanceHandler returns the balance of a principal
func (node *LedgerNode) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := ValidatePrincipalID(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	balance := node.Chain.AccountOf(id).BalanceE9s
	json.NewEncoder(w).Encode(map[string]interface{}{
		"principal":   id,
		"balance_e9s": balance,
		"balance":     FormatTokenAmount(balance),
	})
}

// SetTokenValueHandler records an oracle-reported token value in USD e6.
// The request must carry a valid HMAC signature when oracle auth is required.
func (node *LedgerNode) SetTokenValueHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if IsOracleAuthRequired() {
		signature := r.Header.Get(OracleSignatureHeader)
		timestampStr := r.Header.Get(OracleTimestampHeader)
		timestamp, parseErr := strconv.ParseInt(timestampStr, 10, 64)
		if signature == "" || parseErr != nil ||
			!VerifyRequest(r.Method, r.URL.Path, body, GetOracleAuthSecret(), timestamp, signature) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var payload struct {
		TokenValueUSDe6 uint64 `json:"tokenValueUsdE6"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	node.SetTokenValueUSDe6(payload.TokenValueUSDe6)
	logger.Info("Token value updated", "tokenValueUsdE6", payload.TokenValueUSDe6)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
	})
}

// removeCommittedFromPool drops pool entries that a committed block included
func (node *LedgerNode) removeCommittedFromPool(block Block) {
	if len(block.Transactions) == 0 {
		return
	}
	committed := make(map[string]bool, len(block.Transactions))
	for _, tx := range block.Transactions {
		committed[tx.ID] = true
	}

	node.PendingTxsMutex.Lock()
	remaining := node.PendingTxs[:0]
	for _, tx := range node.PendingTxs {
		if !committed[tx.ID] {
			remaining = append(remaining, tx)
		}
	}
	node.PendingTxs = remaining
	poolSize := len(remaining)
	node.PendingTxsMutex.Unlock()
	RecordPendingPoolSize(poolSize)
}
