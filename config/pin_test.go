package config

import "testing"

func TestHashAndVerifyPIN(t *testing.T) {
	hash, err := HashPIN("4242")
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	if !VerifyPIN(hash, "4242") {
		t.Fatalf("expected correct PIN to verify")
	}
	if VerifyPIN(hash, "0000") {
		t.Fatalf("expected incorrect PIN to fail verification")
	}
}

func TestHashPINRejectsEmpty(t *testing.T) {
	if _, err := HashPIN(""); err == nil {
		t.Fatalf("expected empty PIN to be rejected")
	}
}
