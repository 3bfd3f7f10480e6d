package tomblang

import (
	"sort"
	"strings"
)

// Module is the compiler's public output for one top-level (or nested nft)
// source unit: bytecode plus its ABI.
type Module struct {
	Name       string
	Kind       ModuleKind
	Script     []byte
	ABI        []byte
	SubModules []Module
}

// CompileContext holds everything a single compilation needs: the type
// interner and the library registry. It holds no source provider, and no
// line annotations are produced. It is created fresh per Compile call and
// never shared across compilations, so concurrent compilations on
// different goroutines never interfere.
type CompileContext struct {
	interner *Interner
	registry *Registry
}

func NewCompileContext() *CompileContext {
	in := NewInterner()
	return &CompileContext{interner: in, registry: NewRegistry(in)}
}

// Compile lexes, parses, elaborates, and lowers source into one Module per
// top-level declaration. It fails fast on the first CompilerError; there
// are no partial results.
func Compile(source string) ([]Module, error) {
	ctx := NewCompileContext()
	return ctx.Compile(source)
}

// CompileLines is a per-line convenience wrapper: joining source lines
// with "\n" before compiling, so line numbers in diagnostics match the
// caller's original line-oriented input.
func CompileLines(lines []string) ([]Module, error) {
	return Compile(strings.Join(lines, "\n"))
}

func (ctx *CompileContext) Compile(source string) ([]Module, error) {
	lexer := NewLexer(source)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, err
	}

	parser := NewParser(tokens, ctx.interner)
	modules, err := parser.ParseProgram()
	if err != nil {
		return nil, err
	}

	el := NewElaborator(ctx.interner, ctx.registry)
	for _, m := range modules {
		if err := el.ElaborateModule(m, nil); err != nil {
			return nil, err
		}
	}

	var out []Module
	for _, m := range modules {
		mod, err := ctx.lowerModule(m)
		if err != nil {
			return nil, err
		}
		out = append(out, mod)
	}
	return out, nil
}

// lowerModule generates code for every method of m, appends each builtin
// snippet a call site used exactly once, assembles the whole thing as one
// script in a single pass (so every CALL, whether to another method or to a
// builtin snippet, resolves against one label namespace), and recursively
// lowers nested nft sub-modules the same way.
func (ctx *CompileContext) lowerModule(m *ModuleDecl) (Module, error) {
	builtinsUsed := make(map[string]int)
	var compiled []*CompiledMethod
	var allLines []string

	for _, md := range m.Methods {
		cg := NewCodeGen(ctx.interner, m, md, m.Scope, builtinsUsed)
		cm, err := cg.Generate()
		if err != nil {
			return Module{}, err
		}
		compiled = append(compiled, cm)
		allLines = append(allLines, cm.Lines...)
	}

	// Append each builtin snippet actually used, once, in a stable order so
	// the emitted script is deterministic across compiles of the same
	// source.
	keys := make([]string, 0, len(builtinsUsed))
	for k := range builtinsUsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		allLines = append(allLines, builtinSnippetLines(key, builtinsUsed[key])...)
	}

	asm := NewAssembler(allLines)
	am, err := asm.Assemble()
	if err != nil {
		return Module{}, err
	}

	offsets := make([]uint32, len(compiled))
	for i, cm := range compiled {
		off, ok := asm.EntryOffset(entryLabel(cm.Name))
		if !ok {
			return Module{}, newError(PhaseAssemble, Position{}, "method %q has no entry label in the assembled script", cm.Name)
		}
		offsets[i] = uint32(off)
	}

	var subs []Module
	for _, sub := range m.SubModules {
		sm, err := ctx.lowerModule(sub)
		if err != nil {
			return Module{}, err
		}
		subs = append(subs, sm)
	}

	return Module{
		Name:       m.Name,
		Kind:       m.Kind,
		Script:     am.Bytes,
		ABI:        EncodeABI(m.Name, compiled, offsets),
		SubModules: subs,
	}, nil
}

