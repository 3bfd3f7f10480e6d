// Package compilesvc wraps the tomblang compiler in a request-serving
// shape: a content-addressed result cache, deployer-key signing of every
// compiled module, and gRPC/REST fronts.
package compilesvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iotaledger/hive.go/logger"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/tombwork/tomblang/internal/artifacts"
	"github.com/tombwork/tomblang/internal/keys"
	"github.com/tombwork/tomblang/internal/tomblang"
)

// CompileResult is one cached compilation outcome: the modules the compiler
// produced, plus the deployer signature over their concatenated scripts
// and ABIs (see concatModules).
type CompileResult struct {
	RequestID  string
	SourceHash string
	Modules    []tomblang.Module
	Signature  []byte
	CompiledAt time.Time
}

// Service compiles TombLang source, signs the result with the deployer
// key, persists it to the artifact store, and caches it by source hash,
// safe under concurrent compile requests.
type Service struct {
	*logger.WrappedLogger

	metrics *Metrics

	keyMgr    *keys.Manager
	artifacts *artifacts.Store

	cacheMu sync.RWMutex
	cache   map[string]*CompileResult
}

// New builds a Service. keyMgr and artifactStore may be nil for a
// compile-only instance, in which case Compile skips signing and
// persistence.
func New(log *logger.Logger, keyMgr *keys.Manager, artifactStore *artifacts.Store, metrics *Metrics) *Service {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Service{
		WrappedLogger: logger.NewWrappedLogger(log),
		metrics:       metrics,
		keyMgr:        keyMgr,
		artifacts:     artifactStore,
		cache:         make(map[string]*CompileResult),
	}
}

// sourceHash content-addresses a compile request over the raw source text,
// using blake2b256 to match the hash already used for on-disk artifact
// keys.
func sourceHash(source string) string {
	h := blake2b.Sum256([]byte(source))
	return fmt.Sprintf("%x", h)
}

// Compile compiles source, reusing a cached result for identical source
// text. Every fresh compilation is signed by the deployer key (if one was
// configured) and persisted to the artifact store before being cached.
func (s *Service) Compile(ctx context.Context, source string) (*CompileResult, error) {
	requestID := uuid.New().String()
	hash := sourceHash(source)

	s.cacheMu.RLock()
	cached, ok := s.cache[hash]
	s.cacheMu.RUnlock()
	if ok {
		s.metrics.RecordCompile("cache", "hit")
		return cached, nil
	}

	start := time.Now()
	modules, err := tomblang.Compile(source)
	duration := time.Since(start)
	if err != nil {
		phase, result := classifyCompileError(err)
		s.metrics.RecordCompile(phase, result)
		s.metrics.ObserveDuration(duration)
		s.LogWarnf("compile %s failed: %v", requestID, err)
		return nil, err
	}

	var sig []byte
	if s.keyMgr != nil {
		sig, err = s.keyMgr.Sign(concatModules(modules))
		if err != nil {
			s.metrics.RecordCompile("sign", "error")
			return nil, errors.Wrap(err, "compilesvc: sign compiled modules")
		}
	}

	if s.artifacts != nil {
		for _, m := range modules {
			if err := s.artifacts.PutModule(m); err != nil {
				s.metrics.RecordCompile("persist", "error")
				return nil, errors.Wrapf(err, "compilesvc: persist module %q", m.Name)
			}
		}
	}

	result := &CompileResult{
		RequestID:  requestID,
		SourceHash: hash,
		Modules:    modules,
		Signature:  sig,
		CompiledAt: time.Now(),
	}

	s.cacheMu.Lock()
	s.cache[hash] = result
	s.cacheMu.Unlock()

	s.metrics.RecordCompile("codegen", "ok")
	s.metrics.ObserveDuration(duration)
	s.LogInfof("compile %s ok: %d module(s), %s", requestID, len(modules), hash[:12])

	return result, nil
}

// concatModules concatenates every module's script and ABI, in order, into
// one buffer for the deployer key to sign over, so a single signature
// covers the whole compilation unit rather than one per module.
func concatModules(modules []tomblang.Module) []byte {
	var buf []byte
	for _, m := range modules {
		buf = append(buf, m.Script...)
		buf = append(buf, m.ABI...)
		for _, sub := range m.SubModules {
			buf = append(buf, sub.Script...)
			buf = append(buf, sub.ABI...)
		}
	}
	return buf
}

// classifyCompileError maps a tomblang.CompilerError's phase onto the
// metrics label set; a non-CompilerError (should not happen given the
// compiler's contract) is reported as an unknown phase.
func classifyCompileError(err error) (phase, result string) {
	ce, ok := err.(*tomblang.CompilerError)
	if !ok {
		return "unknown", "error"
	}
	return ce.Phase.String(), "error"
}
