// Package artifacts persists compiled TombLang modules: the bytecode script
// and ABI table a compile produces, so a deployer can look a module back up
// by name without recompiling it.
package artifacts

import (
	"encoding/json"
	"fmt"

	"github.com/iotaledger/hive.go/kvstore"
	"github.com/iotaledger/hive.go/serializer/v2/marshalutil"
	"golang.org/x/crypto/blake2b"

	"github.com/tombwork/tomblang/internal/tomblang"
)

// Realm prefix this store claims on the shared KVStore.
const artifactsRealm = 0xA0

// Field bytes distinguish the four records kept per module (metadata,
// script, ABI, commitment). Putting the field byte before the module hash
// (rather than after) lets List iterate every metadata entry by prefix
// without touching script or ABI bytes.
const (
	fieldMeta       byte = 0
	fieldScript     byte = 1
	fieldABI        byte = 2
	fieldCommitment byte = 3
)

// Artifact is one compiled module as returned by Get and List.
type Artifact struct {
	Name       string
	Kind       tomblang.ModuleKind
	Script     []byte
	ABI        []byte
	Commitment []byte
}

// ArtifactMeta is the lightweight (name, kind) pair List returns without
// paying to load a module's script or ABI bytes.
type ArtifactMeta struct {
	Name string              `json:"name"`
	Kind tomblang.ModuleKind `json:"kind"`
}

// Store persists Module values keyed by blake2b256(moduleName). This
// hashing is the store's own: generated code addresses globals by bare
// field name in SLOAD/SSTORE, with no contract-name hash prefix.
type Store struct {
	store kvstore.KVStore
}

// NewStore claims the artifacts realm on store.
func NewStore(store kvstore.KVStore) (*Store, error) {
	realm, err := store.WithRealm([]byte{artifactsRealm})
	if err != nil {
		return nil, fmt.Errorf("artifacts: claim realm: %w", err)
	}
	return &Store{store: realm}, nil
}

func moduleHash(name string) [32]byte {
	return blake2b.Sum256([]byte(name))
}

func fieldKey(field byte, hash [32]byte) []byte {
	mu := marshalutil.New(1 + len(hash))
	mu.WriteByte(field)
	mu.WriteBytes(hash[:])
	return mu.Bytes()
}

// Put stores a module's script and ABI under its name's hash. It overwrites
// any artifact previously stored under the same name.
func (s *Store) Put(name string, kind tomblang.ModuleKind, script, abi []byte) error {
	hash := moduleHash(name)

	metaBytes, err := json.Marshal(ArtifactMeta{Name: name, Kind: kind})
	if err != nil {
		return fmt.Errorf("artifacts: marshal metadata for %q: %w", name, err)
	}
	if err := s.store.Set(fieldKey(fieldMeta, hash), metaBytes); err != nil {
		return fmt.Errorf("artifacts: store metadata for %q: %w", name, err)
	}
	if err := s.store.Set(fieldKey(fieldScript, hash), script); err != nil {
		return fmt.Errorf("artifacts: store script for %q: %w", name, err)
	}
	if err := s.store.Set(fieldKey(fieldABI, hash), abi); err != nil {
		return fmt.Errorf("artifacts: store abi for %q: %w", name, err)
	}
	if err := s.store.Set(fieldKey(fieldCommitment, hash), bytecodeCommitment(script)); err != nil {
		return fmt.Errorf("artifacts: store commitment for %q: %w", name, err)
	}
	return nil
}

// PutModule is a convenience wrapper storing a tomblang.Module directly,
// recursing into its sub-modules (nft blocks nested under a contract).
func (s *Store) PutModule(m tomblang.Module) error {
	if err := s.Put(m.Name, m.Kind, m.Script, m.ABI); err != nil {
		return err
	}
	for _, sub := range m.SubModules {
		if err := s.PutModule(sub); err != nil {
			return err
		}
	}
	return nil
}

// Get looks up a previously stored module by name.
func (s *Store) Get(name string) (*Artifact, error) {
	hash := moduleHash(name)

	metaBytes, err := s.store.Get(fieldKey(fieldMeta, hash))
	if err != nil {
		return nil, fmt.Errorf("artifacts: get metadata for %q: %w", name, err)
	}
	var meta ArtifactMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("artifacts: unmarshal metadata for %q: %w", name, err)
	}

	script, err := s.store.Get(fieldKey(fieldScript, hash))
	if err != nil {
		return nil, fmt.Errorf("artifacts: get script for %q: %w", name, err)
	}
	abi, err := s.store.Get(fieldKey(fieldABI, hash))
	if err != nil {
		return nil, fmt.Errorf("artifacts: get abi for %q: %w", name, err)
	}
	commitment, err := s.store.Get(fieldKey(fieldCommitment, hash))
	if err != nil {
		return nil, fmt.Errorf("artifacts: get commitment for %q: %w", name, err)
	}

	return &Artifact{Name: meta.Name, Kind: meta.Kind, Script: script, ABI: abi, Commitment: commitment}, nil
}

// Has reports whether a module is stored under name, without fetching its
// bytecode.
func (s *Store) Has(name string) (bool, error) {
	hash := moduleHash(name)
	ok, err := s.store.Has(fieldKey(fieldMeta, hash))
	if err != nil {
		return false, fmt.Errorf("artifacts: has metadata for %q: %w", name, err)
	}
	return ok, nil
}

// Delete removes every field stored for name. It is not an error to delete
// a name that was never stored.
func (s *Store) Delete(name string) error {
	hash := moduleHash(name)
	if err := s.store.Delete(fieldKey(fieldMeta, hash)); err != nil {
		return fmt.Errorf("artifacts: delete metadata for %q: %w", name, err)
	}
	if err := s.store.Delete(fieldKey(fieldScript, hash)); err != nil {
		return fmt.Errorf("artifacts: delete script for %q: %w", name, err)
	}
	if err := s.store.Delete(fieldKey(fieldABI, hash)); err != nil {
		return fmt.Errorf("artifacts: delete abi for %q: %w", name, err)
	}
	if err := s.store.Delete(fieldKey(fieldCommitment, hash)); err != nil {
		return fmt.Errorf("artifacts: delete commitment for %q: %w", name, err)
	}
	return nil
}

// List returns the name and kind of every stored artifact, without loading
// script or ABI bytes.
func (s *Store) List() ([]ArtifactMeta, error) {
	var metas []ArtifactMeta
	err := s.store.Iterate([]byte{fieldMeta}, func(_ kvstore.Key, value kvstore.Value) bool {
		var meta ArtifactMeta
		if jsonErr := json.Unmarshal(value, &meta); jsonErr != nil {
			return true // skip a corrupt entry rather than abort the scan
		}
		metas = append(metas, meta)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: list: %w", err)
	}
	return metas, nil
}
