package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashSecretAndVerify(t *testing.T) {
	hash, err := HashSecret("correct horse battery", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !VerifySecret(hash, "correct horse battery") {
		t.Fatal("matching secret rejected")
	}
	if VerifySecret(hash, "wrong") {
		t.Fatal("mismatching secret accepted")
	}
	if VerifySecret(hash, "") {
		t.Fatal("empty secret accepted")
	}
}

func TestHashSecretEmpty(t *testing.T) {
	_, err := HashSecret("", bcrypt.MinCost)
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestHashSecretDefaultCost(t *testing.T) {
	hash, err := HashSecret("s3cret", 0)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Fatalf("cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestHashSecretUniqueSalts(t *testing.T) {
	a, err := HashSecret("same", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashSecret("same", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two hashes of the same secret must differ")
	}
}

func TestVerifySecretGarbageHash(t *testing.T) {
	if VerifySecret("", "anything") {
		t.Fatal("empty hash accepted")
	}
	if VerifySecret(strings.Repeat("x", 60), "anything") {
		t.Fatal("malformed hash accepted")
	}
}
