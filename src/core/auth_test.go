package main

import (
	"testing"
	"time"
)

func TestSignAndVerifyRequest(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"tokenValueUsdE6": 1000000}`)
	timestamp := time.Now().Unix()

	signature := SignRequest("POST", "/api/oracle/token-value", body, secret, timestamp)
	if signature == "" {
		t.Fatal("Expected non-empty signature")
	}

	if !VerifyRequest("POST", "/api/oracle/token-value", body, secret, timestamp, signature) {
		t.Error("Valid signature rejected")
	}
}

func TestVerifyRequest_RejectsWrongSecret(t *testing.T) {
	body := []byte("payload")
	timestamp := time.Now().Unix()
	signature := SignRequest("POST", "/path", body, "secret-a", timestamp)

	if VerifyRequest("POST", "/path", body, "secret-b", timestamp, signature) {
		t.Error("Signature verified with wrong secret")
	}
}

func TestVerifyRequest_RejectsTamperedBody(t *testing.T) {
	secret := "test-secret"
	timestamp := time.Now().Unix()
	signature := SignRequest("POST", "/path", []byte("original"), secret, timestamp)

	if VerifyRequest("POST", "/path", []byte("tampered"), secret, timestamp, signature) {
		t.Error("Signature verified after body tampering")
	}
}

func TestVerifyRequest_RejectsStaleTimestamp(t *testing.T) {
	secret := "test-secret"
	body := []byte("payload")
	stale := time.Now().Add(-10 * time.Minute).Unix()
	signature := SignRequest("POST", "/path", body, secret, stale)

	if VerifyRequest("POST", "/path", body, secret, stale, signature) {
		t.Error("Stale timestamp accepted")
	}

	future := time.Now().Add(10 * time.Minute).Unix()
	signature = SignRequest("POST", "/path", body, secret, future)
	if VerifyRequest("POST", "/path", body, secret, future, signature) {
		t.Error("Future timestamp accepted")
	}
}

func TestOracleAuthConfig(t *testing.T) {
	t.Setenv("ORACLE_AUTH_SECRET", "from-env")
	t.Setenv("REQUIRE_ORACLE_AUTH", "true")
	ResetOracleAuthConfigForTesting()
	t.Cleanup(ResetOracleAuthConfigForTesting)

	if GetOracleAuthSecret() != "from-env" {
		t.Errorf("Expected secret from environment, got %q", GetOracleAuthSecret())
	}
	if !IsOracleAuthRequired() {
		t.Error("Expected oracle auth to be required")
	}
}
