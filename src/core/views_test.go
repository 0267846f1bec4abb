package main

import (
	"context"
	"testing"
)

func TestEligibleAtAndValidatorCount(t *testing.T) {
	chain := newTestChain(t)
	alice, alicePriv := newIdentity(t)
	bob, bobPriv := newIdentity(t)

	regA := signedTx(t, TxTypeRegistrationFee, alice, alicePriv, DevelopmentFundID, 0)
	regB := signedTx(t, TxTypeRegistrationFee, bob, bobPriv, DevelopmentFundID, 0)
	block := buildBlock(chain, []Transaction{regA, regB})
	if _, err := chain.Append(context.Background(), block); err != nil {
		t.Fatalf("Failed to append registration block: %v", err)
	}

	eligible := chain.EligibleAt(1)
	if len(eligible) != 2 {
		t.Fatalf("Expected 2 eligible principals, got %d", len(eligible))
	}
	if eligible[0] != alice || eligible[1] != bob {
		t.Errorf("Expected transaction order preserved, got %v", eligible)
	}
	if chain.ValidatorCountAt(1) != 2 {
		t.Errorf("Expected 2 validators at height 1, got %d", chain.ValidatorCountAt(1))
	}
	if chain.ValidatorCountAt(0) != 0 {
		t.Errorf("Expected 0 validators at genesis, got %d", chain.ValidatorCountAt(0))
	}
	if chain.ValidatorCountAt(99) != 0 {
		t.Errorf("Expected 0 validators past the head, got %d", chain.ValidatorCountAt(99))
	}

	if chain.IsProvider(alice) != true || chain.IsProvider(bob) != true {
		t.Error("Expected both registrants to be providers")
	}
	if chain.IsProvider(testPrincipal('c')) {
		t.Error("Unregistered principal reported as provider")
	}
	if chain.ProviderCount() != 2 {
		t.Errorf("Expected 2 providers, got %d", chain.ProviderCount())
	}
}

func TestMetadataRegistrationFeeIsChargeable(t *testing.T) {
	chain := newTestChain(t)
	alice, alicePriv := newIdentity(t)

	// The advertised fee must be the one the engine accepts. On a fresh
	// chain the next block is the free bootstrap block, so the facade has
	// to say 0 rather than the schedule amount nobody could pay.
	fee, ok := chain.Metadata(0)["ledger:current_registration_fee"].(uint64)
	if !ok {
		t.Fatal("Metadata registration fee has the wrong type")
	}
	if fee != 0 {
		t.Fatalf("Expected advertised bootstrap fee 0, got %d", fee)
	}
	reg := signedTx(t, TxTypeRegistrationFee, alice, alicePriv, DevelopmentFundID, fee)
	if _, err := chain.Append(context.Background(), buildBlock(chain, []Transaction{reg})); err != nil {
		t.Fatalf("Registration at the advertised fee failed: %v", err)
	}

	// Past bootstrap the advertised fee follows the schedule and still
	// goes through as-is.
	fee = chain.Metadata(0)["ledger:current_registration_fee"].(uint64)
	if want := chain.Params().RegistrationFeeE9s(2); fee != want {
		t.Fatalf("Expected advertised fee %d at height 2, got %d", want, fee)
	}
	reg = signedTx(t, TxTypeRegistrationFee, alice, alicePriv, DevelopmentFundID, fee)
	if _, err := chain.Append(context.Background(), buildBlock(chain, []Transaction{reg})); err != nil {
		t.Fatalf("Registration at the advertised fee failed: %v", err)
	}
}

func TestEligibleAt_DeduplicatesRepeatCheckIns(t *testing.T) {
	chain := newTestChain(t)
	alice, alicePriv := newIdentity(t)

	regA := signedTx(t, TxTypeRegistrationFee, alice, alicePriv, DevelopmentFundID, 0)
	regB := signedTx(t, TxTypeRegistrationFee, alice, alicePriv, DevelopmentFundID, 0)
	regB.Memo = "again"
	if err := SignTransaction(&regB, alicePriv); err != nil {
		t.Fatalf("Failed to re-sign transaction: %v", err)
	}

	block := buildBlock(chain, []Transaction{regA, regB})
	if _, err := chain.Append(context.Background(), block); err != nil {
		t.Fatalf("Failed to append block: %v", err)
	}

	if got := chain.EligibleAt(1); len(got) != 1 {
		t.Errorf("Expected duplicate check-in collapsed to 1, got %d", len(got))
	}
	if chain.ProviderCount() != 1 {
		t.Errorf("Expected 1 provider, got %d", chain.ProviderCount())
	}
}
