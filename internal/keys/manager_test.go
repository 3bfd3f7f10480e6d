package keys

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/iotaledger/hive.go/logger"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	masterKey := bytes.Repeat([]byte{0x42}, 32)
	m, err := NewManager(logger.NewLogger("test"), masterKey)
	require.NoError(t, err)
	return m
}

func TestSignBeforeGenerateKeyFails(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Sign([]byte("payload"))
	require.ErrorIs(t, err, ErrNoKey)
}

func TestGenerateKeySignAndVerify(t *testing.T) {
	m := newTestManager(t)

	pub, err := m.GenerateKey()
	require.NoError(t, err)
	require.Len(t, pub, ed25519.PublicKeySize)

	payload := []byte("script-and-abi-bytes")
	sig, err := m.Sign(payload)
	require.NoError(t, err)
	require.True(t, Verify(pub, payload, sig))
	require.False(t, Verify(pub, []byte("tampered"), sig))
}

func TestRotateKeyChangesPublicKey(t *testing.T) {
	m := newTestManager(t)

	first, err := m.GenerateKey()
	require.NoError(t, err)

	second, err := m.RotateKey()
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	pub, err := m.PublicKey()
	require.NoError(t, err)
	require.Equal(t, second, pub)
}

func TestClearMakesManagerUnusable(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GenerateKey()
	require.NoError(t, err)

	m.Clear()

	_, err = m.PublicKey()
	require.ErrorIs(t, err, ErrNoKey)

	_, err = m.Sign([]byte("payload"))
	require.ErrorIs(t, err, ErrNoKey)
}
