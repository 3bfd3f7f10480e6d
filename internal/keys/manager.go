// Package keys manages the deployer signing key used to attest a compiled
// module's (script, abi) pair before it is hashed and stored. The private
// key never sits in memory or at rest unsealed longer than a single Sign
// call needs it, using an HKDF-derive-then-AEAD-seal envelope.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/iotaledger/hive.go/logger"
	"github.com/iotaledger/hive.go/runtime/event"

	"github.com/tombwork/tomblang/internal/crypto"
)

var (
	ErrNoKey         = errors.New("keys: no deployer key generated yet")
	ErrSealedKeySize = errors.New("keys: sealed key has the wrong size after unsealing")
)

// signingKeyContext is the HKDF context label distinguishing this derived
// key from any other secret the same master key might seal.
var signingKeyContext = []byte("tomblang-deployer-signing-key")

// Events reports key lifecycle changes, scoped to generation and rotation.
type Events struct {
	KeyGenerated *event.Event1[string]
	KeyRotated   *event.Event1[string]
}

// Manager holds one deployer's Ed25519 signing key, sealed at rest.
type Manager struct {
	*logger.WrappedLogger

	mu         sync.RWMutex
	encryptor  *crypto.HKDFEncryptor
	sealedPriv []byte
	publicKey  ed25519.PublicKey

	Events *Events
}

// NewManager builds a Manager whose seal is derived from masterKey (32
// bytes, e.g. a node operator secret loaded from configuration). No key is
// generated yet; call GenerateKey or the manager returns ErrNoKey.
func NewManager(log *logger.Logger, masterKey []byte) (*Manager, error) {
	encryptor, err := crypto.NewHKDFEncryptor(masterKey)
	if err != nil {
		return nil, fmt.Errorf("keys: build encryptor: %w", err)
	}

	return &Manager{
		WrappedLogger: logger.NewWrappedLogger(log),
		encryptor:     encryptor,
		Events: &Events{
			KeyGenerated: event.New1[string](),
			KeyRotated:   event.New1[string](),
		},
	}, nil
}

// GenerateKey creates a fresh Ed25519 keypair and seals the private half.
// Calling it again (or RotateKey) replaces the previous key entirely.
func (m *Manager) GenerateKey() (ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate ed25519 key: %w", err)
	}
	defer clearBytes(priv)

	sealed, err := m.encryptor.EncryptWithContext(priv, signingKeyContext)
	if err != nil {
		return nil, fmt.Errorf("keys: seal private key: %w", err)
	}

	m.mu.Lock()
	m.sealedPriv = sealed
	m.publicKey = pub
	m.mu.Unlock()

	m.Events.KeyGenerated.Trigger(fmt.Sprintf("%x", pub))
	return pub, nil
}

// RotateKey replaces the current key with a new one.
func (m *Manager) RotateKey() (ed25519.PublicKey, error) {
	pub, err := m.GenerateKey()
	if err != nil {
		return nil, err
	}
	m.Events.KeyRotated.Trigger(fmt.Sprintf("%x", pub))
	return pub, nil
}

// PublicKey returns the deployer's current public key, or ErrNoKey if none
// has been generated.
func (m *Manager) PublicKey() (ed25519.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.publicKey == nil {
		return nil, ErrNoKey
	}
	pub := make(ed25519.PublicKey, len(m.publicKey))
	copy(pub, m.publicKey)
	return pub, nil
}

// Sign unseals the deployer's private key just long enough to sign payload
// (a compiled module's script and ABI, concatenated by the caller), then
// wipes the unsealed key from memory before returning.
func (m *Manager) Sign(payload []byte) ([]byte, error) {
	m.mu.RLock()
	sealed := m.sealedPriv
	m.mu.RUnlock()

	if sealed == nil {
		return nil, ErrNoKey
	}

	priv, err := m.encryptor.DecryptWithContext(sealed, signingKeyContext)
	if err != nil {
		return nil, fmt.Errorf("keys: unseal private key: %w", err)
	}
	defer clearBytes(priv)

	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrSealedKeySize
	}

	return ed25519.Sign(ed25519.PrivateKey(priv), payload), nil
}

// Verify checks sig against payload using pub, exposed so downstream
// consumers of a stored provenance record don't need to import ed25519
// themselves for the one call they need.
func Verify(pub ed25519.PublicKey, payload, sig []byte) bool {
	return ed25519.Verify(pub, payload, sig)
}

// Clear wipes the sealed key material and encryptor state. Call it on
// shutdown; a Manager is unusable afterward.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clearBytes(m.sealedPriv)
	m.sealedPriv = nil
	m.publicKey = nil
	m.encryptor.Clear()
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
