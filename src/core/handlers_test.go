package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func newTestNode(t *testing.T) *LedgerNode {
	t.Helper()
	cfg := &Config{
		Port:               "0",
		LogLevel:           "error",
		BlockInterval:      time.Minute,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		MaxBodySizeBytes:   DefaultMaxBodySizeBytes,
		DataDir:            t.TempDir(),
		ShutdownTimeout:    time.Second,
		Ledger:             DefaultLedgerParams(),
	}
	node, err := NewLedgerNode(cfg)
	if err != nil {
		t.Fatalf("Failed to create test node: %v", err)
	}
	t.Cleanup(node.Close)
	return node
}

func setupTestRouter(node *LedgerNode) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/health", node.HealthCheckHandler).Methods("GET")
	router.HandleFunc("/api/nodes", node.GetNodesHandler).Methods("GET")
	router.HandleFunc("/api/nodes", node.RegisterNodeHandler).Methods("POST")
	router.HandleFunc("/api/metadata", node.GetMetadataHandler).Methods("GET")
	router.HandleFunc("/api/transactions", node.GetTransactionsHandler).Methods("GET")
	router.HandleFunc("/api/transactions", node.SubmitTransactionHandler).Methods("POST")
	router.HandleFunc("/api/blocks", node.GetBlocksHandler).Methods("GET")
	router.HandleFunc("/api/blocks", node.ReceiveBlockHandler).Methods("POST")
	router.HandleFunc("/api/blocks/{height:[0-9]+}", node.GetBlockHandler).Methods("GET")
	router.HandleFunc("/api/blocks/digest/{digest}", node.GetBlockByDigestHandler).Methods("GET")
	router.HandleFunc("/api/accounts/{id}", node.GetAccountHandler).Methods("GET")
	router.HandleFunc("/api/token/info", node.GetTokenInfoHandler).Methods("GET")
	router.HandleFunc("/api/token/total-supply", node.GetTotalSupplyHandler).Methods("GET")
	router.HandleFunc("/api/token/balance/{id}", node.GetBalanceHandler).Methods("GET")
	router.HandleFunc("/api/oracle/token-value", node.SetTokenValueHandler).Methods("POST")
	return router
}

func TestHealthCheckHandler(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
	if response["node_id"] != node.NodeID {
		t.Errorf("Expected node ID %s, got '%v'", node.NodeID, response["node_id"])
	}
}

func TestSubmitTransactionHandler(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	alice, alicePriv := newIdentity(t)
	tx := signedTx(t, TxTypeRegistrationFee, alice, alicePriv, DevelopmentFundID, 0)
	body, _ := json.Marshal(tx)

	req := httptest.NewRequest("POST", "/api/transactions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	node.PendingTxsMutex.RLock()
	pending := len(node.PendingTxs)
	node.PendingTxsMutex.RUnlock()
	if pending != 1 {
		t.Errorf("Expected 1 pending transaction, got %d", pending)
	}

	// The same transaction cannot be queued twice.
	req = httptest.NewRequest("POST", "/api/transactions", bytes.NewReader(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected duplicate submission to fail with 400, got %d", w.Code)
	}
}

func TestSubmitTransactionHandler_RejectsUnsigned(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	tx := Transaction{
		Type:      TxTypePayment,
		From:      testPrincipal('a'),
		To:        testPrincipal('b'),
		AmountE9s: 100,
		Timestamp: time.Now().Unix(),
	}
	body, _ := json.Marshal(tx)

	req := httptest.NewRequest("POST", "/api/transactions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unsigned transaction, got %d", w.Code)
	}
}

func TestReceiveBlockHandler_AcceptsAndRejects(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	block := buildBlock(node.Chain, nil)
	body, _ := json.Marshal(block)

	req := httptest.NewRequest("POST", "/api/blocks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if node.Chain.Head().Height != 1 {
		t.Errorf("Expected chain height 1, got %d", node.Chain.Head().Height)
	}

	// Replaying the same block must conflict.
	req = httptest.NewRequest("POST", "/api/blocks", bytes.NewReader(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for replayed block, got %d", w.Code)
	}
}

func TestGetBlocksHandler_Pagination(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	for i := 0; i < 3; i++ {
		if _, err := node.Chain.Append(context.Background(), buildBlock(node.Chain, nil)); err != nil {
			t.Fatalf("Failed to append block: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/blocks?from=2&limit=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Blocks []Block `json:"blocks"`
		Height uint64  `json:"height"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Blocks) != 1 || response.Blocks[0].Height != 2 {
		t.Errorf("Expected exactly block 2, got %d blocks", len(response.Blocks))
	}
	if response.Height != 3 {
		t.Errorf("Expected reported height 3, got %d", response.Height)
	}

	req = httptest.NewRequest("GET", "/api/blocks?from=abc", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad from parameter, got %d", w.Code)
	}
}

func TestGetAccountHandler(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	alice, alicePriv := newIdentity(t)
	registerPrincipal(t, node.Chain, alice, alicePriv)

	req := httptest.NewRequest("GET", "/api/accounts/"+alice, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["principal"] != alice {
		t.Errorf("Expected principal %s, got '%v'", alice, response["principal"])
	}
	if response["is_provider"] != true {
		t.Errorf("Expected is_provider true, got '%v'", response["is_provider"])
	}
	want := float64(node.Chain.AccountOf(alice).BalanceE9s)
	if response["balance_e9s"] != want {
		t.Errorf("Expected balance %v, got '%v'", want, response["balance_e9s"])
	}

	req = httptest.NewRequest("GET", "/api/accounts/short", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed principal, got %d", w.Code)
	}
}

func TestTokenHandlers(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	req := httptest.NewRequest("GET", "/api/token/info", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var info map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if info["symbol"] != TokenSymbol {
		t.Errorf("Expected symbol %s, got '%v'", TokenSymbol, info["symbol"])
	}
	if info["decimals"] != float64(TokenDecimals) {
		t.Errorf("Expected decimals %d, got '%v'", TokenDecimals, info["decimals"])
	}

	alice, alicePriv := newIdentity(t)
	registerPrincipal(t, node.Chain, alice, alicePriv)

	req = httptest.NewRequest("GET", "/api/token/total-supply", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var supply map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &supply); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if supply["total_supply_e9s"] != float64(node.Chain.TotalSupplyE9s()) {
		t.Errorf("Expected supply %d, got '%v'", node.Chain.TotalSupplyE9s(), supply["total_supply_e9s"])
	}

	req = httptest.NewRequest("GET", "/api/token/balance/"+alice, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var balance map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &balance); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if balance["balance_e9s"] != float64(node.Chain.AccountOf(alice).BalanceE9s) {
		t.Errorf("Unexpected balance: %v", balance["balance_e9s"])
	}
}

func TestMetadataHandler(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)
	node.SetTokenValueUSDe6(2_500_000)

	req := httptest.NewRequest("GET", "/api/metadata", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var md map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &md); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if md["ledger:num_blocks"] != float64(1) {
		t.Errorf("Expected 1 block, got '%v'", md["ledger:num_blocks"])
	}
	if md["ledger:token_value_in_usd_e6"] != float64(2_500_000) {
		t.Errorf("Expected token value 2500000, got '%v'", md["ledger:token_value_in_usd_e6"])
	}
	if md["ledger:token_symbol"] != TokenSymbol {
		t.Errorf("Expected symbol %s, got '%v'", TokenSymbol, md["ledger:token_symbol"])
	}
}

func TestSetTokenValueHandler_RequiresAuth(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	t.Setenv("ORACLE_AUTH_SECRET", "test-secret")
	t.Setenv("REQUIRE_ORACLE_AUTH", "true")
	ResetOracleAuthConfigForTesting()
	t.Cleanup(ResetOracleAuthConfigForTesting)

	body := []byte(`{"tokenValueUsdE6": 1500000}`)

	// Unsigned request fails.
	req := httptest.NewRequest("POST", "/api/oracle/token-value", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without signature, got %d", w.Code)
	}

	// Properly signed request succeeds.
	timestamp := time.Now().Unix()
	signature := SignRequest("POST", "/api/oracle/token-value", body, "test-secret", timestamp)

	req = httptest.NewRequest("POST", "/api/oracle/token-value", bytes.NewReader(body))
	req.Header.Set(OracleSignatureHeader, signature)
	req.Header.Set(OracleTimestampHeader, strconv.FormatInt(timestamp, 10))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 with signature, got %d: %s", w.Code, w.Body.String())
	}
	if node.TokenValueUSDe6() != 1_500_000 {
		t.Errorf("Expected token value 1500000, got %d", node.TokenValueUSDe6())
	}
}

func TestRegisterNodeHandler(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	peer := PeerNode{ID: "peer-1", Address: "10.0.0.2:8080"}
	body, _ := json.Marshal(peer)

	req := httptest.NewRequest("POST", "/api/nodes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/nodes", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response struct {
		Nodes []PeerNode `json:"nodes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Nodes) != 1 || response.Nodes[0].ID != "peer-1" {
		t.Errorf("Expected registered peer in node list, got %v", response.Nodes)
	}

	// Missing fields are rejected.
	req = httptest.NewRequest("POST", "/api/nodes", bytes.NewReader([]byte(`{"id":""}`)))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for incomplete peer, got %d", w.Code)
	}
}

func TestGetBlockHandlers(t *testing.T) {
	node := newTestNode(t)
	router := setupTestRouter(node)

	block := buildBlock(node.Chain, nil)
	if _, err := node.Chain.Append(context.Background(), block); err != nil {
		t.Fatalf("Failed to append block: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/blocks/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var got Block
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if got.Digest != block.Digest {
		t.Errorf("Expected digest %s, got %s", block.Digest, got.Digest)
	}

	req = httptest.NewRequest("GET", fmt.Sprintf("/api/blocks/digest/%s", block.Digest), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for digest lookup, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/blocks/999", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown height, got %d", w.Code)
	}
}
