package artifacts

import (
	"testing"

	"github.com/iotaledger/hive.go/kvstore/mapdb"
	"github.com/stretchr/testify/require"

	"github.com/tombwork/tomblang/internal/tomblang"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(mapdb.NewMapDB())
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	err := s.Put("Escrow", tomblang.ModuleContract, []byte{0x01, 0x02}, []byte{0xAB})
	require.NoError(t, err)

	art, err := s.Get("Escrow")
	require.NoError(t, err)
	require.Equal(t, "Escrow", art.Name)
	require.Equal(t, tomblang.ModuleContract, art.Kind)
	require.Equal(t, []byte{0x01, 0x02}, art.Script)
	require.Equal(t, []byte{0xAB}, art.ABI)
	require.NotEmpty(t, art.Commitment)
	require.Equal(t, bytecodeCommitment([]byte{0x01, 0x02}), art.Commitment)
}

func TestBytecodeCommitmentDiffersByScript(t *testing.T) {
	a := bytecodeCommitment([]byte{0x01, 0x02})
	b := bytecodeCommitment([]byte{0x01, 0x03})
	require.NotEqual(t, a, b)
}

func TestGetMissingModuleFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("Nope")
	require.Error(t, err)
}

func TestHasReflectsPutAndDelete(t *testing.T) {
	s := newTestStore(t)
	name := "Voucher"

	ok, err := s.Has(name)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(name, tomblang.ModuleContract, []byte{1}, []byte{2}))
	ok, err = s.Has(name)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Delete(name))
	ok, err = s.Has(name)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutOverwritesPreviousArtifact(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("Ticket", tomblang.ModuleContract, []byte{1}, []byte{1}))
	require.NoError(t, s.Put("Ticket", tomblang.ModuleContract, []byte{2, 2}, []byte{2, 2}))

	art, err := s.Get("Ticket")
	require.NoError(t, err)
	require.Equal(t, []byte{2, 2}, art.Script)
}

func TestPutModuleRecursesSubModules(t *testing.T) {
	s := newTestStore(t)
	m := tomblang.Module{
		Name:   "Wallet",
		Kind:   tomblang.ModuleContract,
		Script: []byte{0x10},
		ABI:    []byte{0x11},
		SubModules: []tomblang.Module{
			{Name: "WalletCard", Kind: tomblang.ModuleNFT, Script: []byte{0x20}, ABI: []byte{0x21}},
		},
	}
	require.NoError(t, s.PutModule(m))

	parent, err := s.Get("Wallet")
	require.NoError(t, err)
	require.Equal(t, []byte{0x10}, parent.Script)

	child, err := s.Get("WalletCard")
	require.NoError(t, err)
	require.Equal(t, tomblang.ModuleNFT, child.Kind)
}

func TestListReturnsAllStoredMetadata(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("A", tomblang.ModuleContract, []byte{1}, []byte{1}))
	require.NoError(t, s.Put("B", tomblang.ModuleContract, []byte{2}, []byte{2}))

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)

	names := map[string]bool{}
	for _, m := range metas {
		names[m.Name] = true
	}
	require.True(t, names["A"])
	require.True(t, names["B"])
}
