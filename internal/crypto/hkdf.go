package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidKeySize  = errors.New("invalid key size")
	ErrDecryptionFailed = errors.New("decryption failed")
)

const (
	HKDFKeySize    = 32
	HKDFSaltSize   = 32
	HKDFInfoString = "tomblang-deployer-key-envelope-v1"
	NonceSize      = 24
)

// HKDFEncryptor seals byte payloads under keys derived from one master key.
// Each call to EncryptWithContext/DecryptWithContext derives a fresh
// XChaCha20-Poly1305 key from the master key, a salt fixed at construction,
// and a caller-supplied context label, rather than keying an AEAD directly
// off the master key: internal/keys uses this to seal a deployer's Ed25519
// private key at rest, labeling that one context so a future second use of
// the same master key (a different secret entirely) can never collide with
// or be decrypted under the deployer key's derived key.
type HKDFEncryptor struct {
	mu        sync.RWMutex
	masterKey []byte
	salt      []byte
}

// NewHKDFEncryptor builds an encryptor keyed by masterKey (exactly
// HKDFKeySize bytes), generating a fresh random salt for the lifetime of
// this encryptor.
func NewHKDFEncryptor(masterKey []byte) (*HKDFEncryptor, error) {
	if len(masterKey) != HKDFKeySize {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidKeySize, HKDFKeySize, len(masterKey))
	}

	salt := make([]byte, HKDFSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}

	mk := make([]byte, len(masterKey))
	copy(mk, masterKey)

	return &HKDFEncryptor{masterKey: mk, salt: salt}, nil
}

// deriveKey expands the master key and salt with context as the HKDF info
// label, so every distinct context yields an independent derived key.
func (e *HKDFEncryptor) deriveKey(context []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.masterKey == nil {
		return nil, fmt.Errorf("crypto: encryptor already cleared")
	}

	info := append([]byte(HKDFInfoString), context...)
	r := hkdf.New(sha256.New, e.masterKey, e.salt, info)
	key := make([]byte, HKDFKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	return key, nil
}

// EncryptWithContext seals plaintext under a key derived for context,
// prepending the random nonce it generates to the returned ciphertext.
func (e *HKDFEncryptor) EncryptWithContext(plaintext, context []byte) ([]byte, error) {
	key, err := e.deriveKey(context)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: build cipher: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, context)
	out := make([]byte, len(nonce)+len(sealed))
	copy(out, nonce)
	copy(out[len(nonce):], sealed)
	return out, nil
}

// DecryptWithContext reverses EncryptWithContext, re-deriving the same key
// from context. A tampered ciphertext or a mismatched context both surface
// as ErrDecryptionFailed.
func (e *HKDFEncryptor) DecryptWithContext(ciphertext, context []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrDecryptionFailed
	}
	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]

	key, err := e.deriveKey(context)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: build cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, context)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Clear wipes the master key and salt; the encryptor is unusable afterward.
func (e *HKDFEncryptor) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	clearBytes(e.masterKey)
	clearBytes(e.salt)
	e.masterKey = nil
	e.salt = nil
}

// clearBytes does a two-pass wipe, random overwrite followed by zeroing,
// rather than a single memset a compiler could theoretically elide.
func clearBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	rand.Read(b)
	for i := range b {
		b[i] = 0
	}
}
