package config

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptFieldRoundTrip(t *testing.T) {
	plaintext := []byte("Grandma's Laptop")

	ciphertext, err := EncryptField(plaintext, "correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected encrypt error: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext must not equal plaintext")
	}

	got, err := DecryptField(ciphertext, "correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected decrypt error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("expected %q, got %q", plaintext, got)
	}
}

func TestDecryptFieldRejectsWrongPassphrase(t *testing.T) {
	ciphertext, err := EncryptField([]byte("secret"), "right-passphrase")
	if err != nil {
		t.Fatalf("unexpected encrypt error: %v", err)
	}

	if _, err := DecryptField(ciphertext, "wrong-passphrase"); err == nil {
		t.Fatal("expected decrypt error with wrong passphrase")
	}
}
