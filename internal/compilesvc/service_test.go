package compilesvc

import (
	"context"
	"testing"

	"github.com/iotaledger/hive.go/kvstore/mapdb"
	"github.com/iotaledger/hive.go/logger"
	"github.com/stretchr/testify/require"

	"github.com/tombwork/tomblang/internal/artifacts"
	"github.com/tombwork/tomblang/internal/keys"
	"github.com/tombwork/tomblang/internal/tomblang"
)

const sampleSource = `
contract Greeter {
	public greet(): string {
		return "hi";
	}
}`

func newTestService(t *testing.T) *Service {
	t.Helper()

	km, err := keys.NewManager(logger.NewLogger("test"), make([]byte, 32))
	require.NoError(t, err)
	_, err = km.GenerateKey()
	require.NoError(t, err)

	store, err := artifacts.NewStore(mapdb.NewMapDB())
	require.NoError(t, err)

	return New(logger.NewLogger("test"), km, store, NewMetricsForTest())
}

func TestCompileSignsAndPersists(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.Compile(context.Background(), sampleSource)
	require.NoError(t, err)
	require.Len(t, result.Modules, 1)
	require.Equal(t, "Greeter", result.Modules[0].Name)
	require.NotEmpty(t, result.Signature)

	pub, err := svc.keyMgr.PublicKey()
	require.NoError(t, err)
	require.True(t, keys.Verify(pub, concatModules(result.Modules), result.Signature))

	art, err := svc.artifacts.Get("Greeter")
	require.NoError(t, err)
	require.Equal(t, result.Modules[0].Script, art.Script)
}

func TestCompileCachesBySourceHash(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.Compile(context.Background(), sampleSource)
	require.NoError(t, err)

	second, err := svc.Compile(context.Background(), sampleSource)
	require.NoError(t, err)

	require.Equal(t, first.RequestID, second.RequestID, "second call should hit the cache, not recompile")
}

func TestCompileInvalidSourceReturnsCompilerError(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Compile(context.Background(), "not valid tomblang")
	require.Error(t, err)
	require.IsType(t, &tomblang.CompilerError{}, err)
}

func TestCompileWithoutKeyManagerSkipsSigning(t *testing.T) {
	svc := New(logger.NewLogger("test"), nil, nil, NewMetricsForTest())
	result, err := svc.Compile(context.Background(), sampleSource)
	require.NoError(t, err)
	require.Empty(t, result.Signature)
}
