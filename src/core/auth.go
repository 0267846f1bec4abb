package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
	"time"
)

// Oracle authentication header names
const (
	OracleSignatureHeader = "X-Oracle-Signature"
	OracleTimestampHeader = "X-Oracle-Timestamp"
)

// OracleAuthTimestampTolerance is the maximum age of a signed request (5 minutes)
const OracleAuthTimestampTolerance = 5 * time.Minute

// Package-level auth configuration loaded once from environment
var (
	oracleAuthConfig struct {
		secret   string
		required bool
	}
	oracleAuthConfigOnce sync.Once
)

// loadOracleAuthConfig loads auth configuration from environment variables
func loadOracleAuthConfig() {
	oracleAuthConfigOnce.Do(func() {
		oracleAuthConfig.secret = os.Getenv("ORACLE_AUTH_SECRET")
		oracleAuthConfig.required = os.Getenv("REQUIRE_ORACLE_AUTH") == "true"
	})
}

// GetOracleAuthSecret returns the oracle authentication secret
func GetOracleAuthSecret() string {
	loadOracleAuthConfig()
	return oracleAuthConfig.secret
}

// IsOracleAuthRequired returns whether oracle authentication is required
func IsOracleAuthRequired() bool {
	loadOracleAuthConfig()
	return oracleAuthConfig.required
}

// SignRequest creates an HMAC-SHA256 signature for a request.
// The signature covers: method + path + body + timestamp
func SignRequest(method, path string, body []byte, secret string, timestamp int64) string {
	message := fmt.Sprintf("%s\n%s\n%s\n%d", method, path, string(body), timestamp)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyRequest verifies the HMAC-SHA256 signature of a request.
// Returns false if the timestamp is stale or the signature doesn't match.
func VerifyRequest(method, path string, body []byte, secret string, timestamp int64, signature string) bool {
	now := time.Now().Unix()
	toleranceSec := int64(OracleAuthTimestampTolerance.Seconds())
	if timestamp < now-toleranceSec || timestamp > now+toleranceSec {
		return false
	}

	expectedSig := SignRequest(method, path, body, secret, timestamp)

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expectedSig)) == 1
}

// ResetOracleAuthConfigForTesting resets the auth config for testing purposes.
// This should only be used in tests.
func ResetOracleAuthConfigForTesting() {
	oracleAuthConfigOnce = sync.Once{}
}
