package tomblang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOK(t *testing.T, src string) []Module {
	t.Helper()
	mods, err := Compile(src)
	require.NoError(t, err)
	return mods
}

func compileErr(t *testing.T, src string) *CompilerError {
	t.Helper()
	_, err := Compile(src)
	require.Error(t, err)
	ce, ok := err.(*CompilerError)
	require.True(t, ok, "expected *CompilerError, got %T", err)
	return ce
}

func TestSwitchDispatchCompiles(t *testing.T) {
	src := `
contract Traffic {
	public classify(code: number): number {
		switch (code) {
		case 1:
			return 10;
		case 2:
			return 20;
		default:
			return 0;
		}
	}
}`
	mods := compileOK(t, src)
	require.Len(t, mods, 1)
	assert.Equal(t, "Traffic", mods[0].Name)
	assert.NotEmpty(t, mods[0].Script)
}

func TestForLoopAccumulation(t *testing.T) {
	src := `
contract Sum {
	public total(n: number): number {
		local acc: number = 0;
		for (local i: number = 0; i < n; i += 1) {
			acc += i;
		}
		return acc;
	}
}`
	mods := compileOK(t, src)
	assert.NotEmpty(t, mods[0].Script)
}

func TestStringLengthGetterAndGlobalInit(t *testing.T) {
	src := `
contract Greeter {
	global name: string;

	constructor() {
		name = "hello";
	}

	public getLength(): number {
		return name.length();
	}
}`
	mods := compileOK(t, src)
	require.Len(t, mods, 1)
	abi := string(mods[0].ABI)
	assert.Contains(t, abi, "getLength")
}

func TestBuiltinSnippetEmittedOnce(t *testing.T) {
	src := `
contract Lengths {
	public sumThree(a: string, b: string, c: string): number {
		return a.length() + b.length() + c.length();
	}

	public sumTwoMore(a: string, b: string): number {
		return a.length() + b.length();
	}
}`
	in := NewInterner()
	lexer := NewLexer(src)
	tokens, err := lexer.Tokenize()
	require.NoError(t, err)
	parser := NewParser(tokens, in)
	modules, err := parser.ParseProgram()
	require.NoError(t, err)
	require.Len(t, modules, 1)

	reg := NewRegistry(in)
	el := NewElaborator(in, reg)
	require.NoError(t, el.ElaborateModule(modules[0], nil))

	builtinsUsed := make(map[string]int)
	snippetLabel := builtinEntryLabel("string_length") + ":"
	var allLines []string
	for _, md := range modules[0].Methods {
		cg := NewCodeGen(in, modules[0], md, modules[0].Scope, builtinsUsed)
		cm, err := cg.Generate()
		require.NoError(t, err)
		allLines = append(allLines, cm.Lines...)
	}

	// Five call sites (three in sumThree, two in sumTwoMore) share one key;
	// codegen records it once in the map keyed by BuiltinKey, never emitting
	// the snippet body inline, so it never appears in any method's lines.
	require.Contains(t, builtinsUsed, "string_length")
	assert.Equal(t, 1, len(builtinsUsed), "only the used builtin keys are tracked, once each")
	for _, line := range allLines {
		assert.NotEqual(t, snippetLabel, line, "codegen must never emit the snippet body inline at a call site")
	}

	// lowerModule appends the snippet body for each used key exactly once,
	// after every method's lines, regardless of how many call sites shared it.
	allLines = append(allLines, builtinSnippetLines("string_length", builtinsUsed["string_length"])...)
	occurrences := 0
	for _, line := range allLines {
		if line == snippetLabel {
			occurrences++
		}
	}
	assert.Equal(t, 1, occurrences, "builtin snippet body must appear exactly once regardless of call-site count")

	mods := compileOK(t, src)
	require.Len(t, mods, 1)
	assert.NotEmpty(t, mods[0].Script)
}

func TestChainedIfElse(t *testing.T) {
	src := `
contract Grade {
	public letter(score: number): string {
		if (score >= 90) {
			return "A";
		} else if (score >= 80) {
			return "B";
		} else {
			return "C";
		}
	}
}`
	mods := compileOK(t, src)
	assert.NotEmpty(t, mods[0].Script)
}

func TestInferredLocalWithStringConcat(t *testing.T) {
	src := `
contract Concat {
	public greet(name: string): string {
		local msg = "hi " + name;
		return msg;
	}
}`
	mods := compileOK(t, src)
	assert.NotEmpty(t, mods[0].Script)
}

func TestDuplicateMethodRejected(t *testing.T) {
	src := `
contract Dup {
	public foo(): number { return 1; }
	public foo(): number { return 2; }
}`
	ce := compileErr(t, src)
	assert.Contains(t, ce.Message, "duplicate")
}

func TestDeprecatedWalrusRejected(t *testing.T) {
	src := `
contract Walrus {
	public bad(): number {
		x := 1;
		return x;
	}
}`
	ce := compileErr(t, src)
	assert.Contains(t, ce.Message, "deprecated")
}

func TestDecimalPrecisionOverflow(t *testing.T) {
	src := `
contract Money {
	global amount: decimal<3>;

	constructor() {
		amount = 2.4587;
	}
}`
	ce := compileErr(t, src)
	assert.Contains(t, ce.Message, "precision")
}

func TestTooManyArgumentsRejected(t *testing.T) {
	src := `
contract Args {
	public add(a: number, b: number): number {
		return a + b;
	}

	public callIt(): number {
		return this.add(1, 2, 3);
	}
}`
	compileErr(t, src)
}

func TestNoReturnExprAfterBareReturn(t *testing.T) {
	src := `
contract Stream {
	public produce(n: number): number* {
		if (n < 0) {
			return;
		}
		return n;
	}
}`
	compileErr(t, src)
}

func TestUndefinedIdentifierFails(t *testing.T) {
	src := `
contract Broken {
	public run(): number {
		return missing;
	}
}`
	ce := compileErr(t, src)
	assert.Equal(t, PhaseResolve, ce.Phase)
}

func TestArrayLiteralUsesBraces(t *testing.T) {
	src := `
contract Arr {
	public first(): number {
		local xs = {1, 2, 3};
		return xs[0];
	}
}`
	mods := compileOK(t, src)
	assert.NotEmpty(t, mods[0].Script)
}

func TestMacroExpansion(t *testing.T) {
	src := `
contract Self {
	public whoAmI(): string {
		return $THIS_SYMBOL;
	}
}`
	mods := compileOK(t, src)
	assert.NotEmpty(t, mods[0].Script)
}
