package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"
)

func randomMasterKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, HKDFKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		t.Fatalf("failed to generate master key: %v", err)
	}
	return key
}

func TestNewHKDFEncryptor_InvalidKeySize(t *testing.T) {
	tests := []struct {
		name    string
		keySize int
	}{
		{"too short", 16},
		{"too long", 64},
		{"empty", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := make([]byte, tt.keySize)
			_, err := NewHKDFEncryptor(key)
			if !errors.Is(err, ErrInvalidKeySize) {
				t.Errorf("expected ErrInvalidKeySize, got %v", err)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewHKDFEncryptor(randomMasterKey(t))
	if err != nil {
		t.Fatalf("NewHKDFEncryptor failed: %v", err)
	}
	defer enc.Clear()

	plaintext := []byte("deployer signing key material")
	context := []byte("tomblang-deployer-signing-key")

	ciphertext, err := enc.EncryptWithContext(plaintext, context)
	if err != nil {
		t.Fatalf("EncryptWithContext failed: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("ciphertext must not contain the plaintext verbatim")
	}

	got, err := enc.DecryptWithContext(ciphertext, context)
	if err != nil {
		t.Fatalf("DecryptWithContext failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("decrypted plaintext does not match original")
	}
}

func TestDecryptWrongContextFails(t *testing.T) {
	enc, err := NewHKDFEncryptor(randomMasterKey(t))
	if err != nil {
		t.Fatalf("NewHKDFEncryptor failed: %v", err)
	}
	defer enc.Clear()

	ciphertext, err := enc.EncryptWithContext([]byte("payload"), []byte("context-a"))
	if err != nil {
		t.Fatalf("EncryptWithContext failed: %v", err)
	}

	if _, err := enc.DecryptWithContext(ciphertext, []byte("context-b")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	enc, err := NewHKDFEncryptor(randomMasterKey(t))
	if err != nil {
		t.Fatalf("NewHKDFEncryptor failed: %v", err)
	}
	defer enc.Clear()

	context := []byte("ctx")
	ciphertext, err := enc.EncryptWithContext([]byte("payload"), context)
	if err != nil {
		t.Fatalf("EncryptWithContext failed: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xFF

	if _, err := enc.DecryptWithContext(ciphertext, context); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestTwoContextsDeriveDifferentKeys(t *testing.T) {
	masterKey := randomMasterKey(t)
	enc, err := NewHKDFEncryptor(masterKey)
	if err != nil {
		t.Fatalf("NewHKDFEncryptor failed: %v", err)
	}
	defer enc.Clear()

	ciphertextA, err := enc.EncryptWithContext([]byte("payload"), []byte("context-a"))
	if err != nil {
		t.Fatalf("EncryptWithContext failed: %v", err)
	}

	// A key derived for context-b must not open ciphertext sealed for
	// context-a, even by the same encryptor/master key.
	if _, err := enc.DecryptWithContext(ciphertextA, []byte("context-b")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestClearMakesEncryptorUnusable(t *testing.T) {
	enc, err := NewHKDFEncryptor(randomMasterKey(t))
	if err != nil {
		t.Fatalf("NewHKDFEncryptor failed: %v", err)
	}

	enc.Clear()

	if _, err := enc.EncryptWithContext([]byte("payload"), []byte("ctx")); err == nil {
		t.Error("expected an error encrypting with a cleared encryptor")
	}
}
