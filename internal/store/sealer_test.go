package store

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKeyDeterminism(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := DeriveKey("mypassphrase", salt)
	key2 := DeriveKey("mypassphrase", salt)

	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase+salt should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
	if bytes.Equal(key1, DeriveKey("other", salt)) {
		t.Error("different passphrases should produce different keys")
	}
}

func TestSealOpen(t *testing.T) {
	s := NewSealer("pass")

	a, err := s.Seal([]byte("hello"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, _ := s.Seal([]byte("hello"))
	if bytes.Equal(a, b) {
		t.Error("two seals of the same value should differ")
	}

	got, err := s.Open(a)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("open = %q, want %q", got, "hello")
	}
}

func TestOpenTampered(t *testing.T) {
	s := NewSealer("pass")
	sealed, _ := s.Seal([]byte("hello"))
	sealed[len(sealed)-1] ^= 0xff

	if _, err := s.Open(sealed); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestOpenTooSmall(t *testing.T) {
	_, err := NewSealer("pass").Open([]byte("short"))
	if !errors.Is(err, ErrSealedTooSmall) {
		t.Errorf("err = %v, want ErrSealedTooSmall", err)
	}
}
