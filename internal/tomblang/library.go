package tomblang

import (
	"fmt"
	"strings"
)

// LowerStrategy is how a library method call gets turned into assembly.
type LowerStrategy int

const (
	StrategyExtCall LowerStrategy = iota
	StrategyContractCall
	StrategyLocalCall
	StrategyBuiltinInline
	StrategyCustom
)

// CustomLowerFunc is the "custom" strategy's pre/post callback: given the
// emitter, the call's evaluated argument registers, and the call site, it
// emits assembly and returns the register holding the result.
type CustomLowerFunc func(cg *CodeGen, call *Expr, argRegs []RegID) (RegID, error)

// LibMethod is one entry in a Library's method table: name, parameter
// types, return type, and how to lower a call to it.
type LibMethod struct {
	Name       string
	Params     []*Type
	Return     *Type
	Variadic   bool
	Strategy   LowerStrategy
	ExtName    string          // qualified name for StrategyExtCall, e.g. "Runtime.tostring"
	BuiltinKey string          // snippet key for StrategyBuiltinInline, emitted at most once
	Custom     CustomLowerFunc // required when Strategy == StrategyCustom
}

// libraryNameForType maps a value's static type onto the library that owns
// its instance methods, for value.method(...) call sugar. Types with no
// instance-method library (Number, Bool, Address, structs, ...) return ok
// == false; a call against one of those must go through the qualified
// Lib.method(value) form instead.
func libraryNameForType(t *Type) (string, bool) {
	switch t.Kind {
	case KindString:
		return "String", true
	case KindArray:
		return "Array", true
	case KindMap:
		return "Map", true
	}
	return "", false
}

// Library is a catalog of built-in methods callable once imported.
type Library struct {
	Name    string
	Methods map[string]*LibMethod
}

func newLibrary(name string) *Library {
	return &Library{Name: name, Methods: make(map[string]*LibMethod)}
}

func (lib *Library) add(m *LibMethod) *Library {
	lib.Methods[m.Name] = m
	return lib
}

// Registry catalogs every built-in library known to the compiler. It is
// built once per CompileContext, never shared or mutated across
// compilations.
type Registry struct {
	libraries map[string]*Library
	in        *Interner
}

func NewRegistry(in *Interner) *Registry {
	r := &Registry{libraries: make(map[string]*Library), in: in}
	r.registerBuiltinLibraries()
	return r
}

func (r *Registry) Lookup(name string) (*Library, bool) {
	lib, ok := r.libraries[name]
	return lib, ok
}

func (r *Registry) register(lib *Library) {
	r.libraries[lib.Name] = lib
}

// registerBuiltinLibraries fills the catalog: Runtime, Math, Map, List,
// Array, Crypto, NFT, Time, Call, String, Struct.
func (r *Registry) registerBuiltinLibraries() {
	in := r.in

	runtime := newLibrary("Runtime")
	runtime.add(&LibMethod{Name: "log", Params: []*Type{in.String()}, Return: in.None(), Strategy: StrategyExtCall, ExtName: "Runtime.log"})
	runtime.add(&LibMethod{Name: "revert", Params: []*Type{in.String()}, Return: in.None(), Strategy: StrategyExtCall, ExtName: "Runtime.revert"})
	runtime.add(&LibMethod{Name: "caller", Params: nil, Return: in.Address(), Strategy: StrategyExtCall, ExtName: "Runtime.caller"})
	r.register(runtime)

	math := newLibrary("Math")
	math.add(&LibMethod{Name: "abs", Params: []*Type{in.Number()}, Return: in.Number(), Strategy: StrategyExtCall, ExtName: "Math.abs"})
	math.add(&LibMethod{Name: "min", Params: []*Type{in.Number(), in.Number()}, Return: in.Number(), Strategy: StrategyExtCall, ExtName: "Math.min"})
	math.add(&LibMethod{Name: "max", Params: []*Type{in.Number(), in.Number()}, Return: in.Number(), Strategy: StrategyExtCall, ExtName: "Math.max"})
	r.register(math)

	str := newLibrary("String")
	str.add(&LibMethod{Name: "length", Params: []*Type{in.String()}, Return: in.Number(), Strategy: StrategyBuiltinInline, BuiltinKey: "string_length"})
	str.add(&LibMethod{Name: "concat", Params: []*Type{in.String(), in.String()}, Return: in.String(), Strategy: StrategyBuiltinInline, BuiltinKey: "string_concat"})
	str.add(&LibMethod{Name: "toArray", Params: []*Type{in.String()}, Return: in.Array(in.String()), Strategy: StrategyBuiltinInline, BuiltinKey: "string_to_array"})
	r.register(str)

	mp := newLibrary("Map")
	mp.add(&LibMethod{Name: "get", Params: []*Type{in.Any(), in.Any()}, Return: in.Any(), Strategy: StrategyExtCall, ExtName: "Map.get"})
	mp.add(&LibMethod{Name: "set", Params: []*Type{in.Any(), in.Any(), in.Any()}, Return: in.None(), Strategy: StrategyExtCall, ExtName: "Map.set"})
	mp.add(&LibMethod{Name: "has", Params: []*Type{in.Any(), in.Any()}, Return: in.Bool(), Strategy: StrategyExtCall, ExtName: "Map.has"})
	r.register(mp)

	list := newLibrary("List")
	list.add(&LibMethod{Name: "push", Params: []*Type{in.Any(), in.Any()}, Return: in.None(), Strategy: StrategyExtCall, ExtName: "List.push"})
	list.add(&LibMethod{Name: "len", Params: []*Type{in.Any()}, Return: in.Number(), Strategy: StrategyExtCall, ExtName: "List.len"})
	r.register(list)

	arr := newLibrary("Array")
	arr.add(&LibMethod{Name: "len", Params: []*Type{in.Any()}, Return: in.Number(), Strategy: StrategyExtCall, ExtName: "Array.len"})
	r.register(arr)

	cr := newLibrary("Crypto")
	cr.add(&LibMethod{Name: "sha256", Params: []*Type{in.Bytes()}, Return: in.Hash(), Strategy: StrategyExtCall, ExtName: "Crypto.sha256"})
	cr.add(&LibMethod{Name: "verifySig", Params: []*Type{in.Bytes(), in.Bytes(), in.Address()}, Return: in.Bool(), Strategy: StrategyExtCall, ExtName: "Crypto.verifySig"})
	r.register(cr)

	nft := newLibrary("NFT")
	nft.add(&LibMethod{Name: "mint", Params: []*Type{in.Address()}, Return: in.Number(), Strategy: StrategyContractCall})
	nft.add(&LibMethod{Name: "burn", Params: []*Type{in.Number()}, Return: in.None(), Strategy: StrategyContractCall})
	r.register(nft)

	tm := newLibrary("Time")
	tm.add(&LibMethod{Name: "now", Params: nil, Return: in.Timestamp(), Strategy: StrategyExtCall, ExtName: "Time.now"})
	r.register(tm)

	strct := newLibrary("Struct")
	// Struct.NAME(...) constructors are resolved dynamically per struct
	// declaration by elaborate.go, not enumerated ahead of time here; this
	// entry exists so `import Struct;` resolves as a library.
	r.register(strct)

	call := newLibrary("Call")
	call.add(&LibMethod{
		Name: "method", Params: []*Type{in.String()}, Return: in.Any(), Variadic: true,
		Strategy: StrategyCustom, Custom: lowerCallMethod,
	})
	call.add(&LibMethod{
		Name: "interop", Params: []*Type{in.String(), in.String()}, Return: in.Any(), Variadic: true,
		Strategy: StrategyCustom, Custom: lowerCallInterop,
	})
	r.register(call)
}

// lowerCallMethod implements Call.method<T>(name, args...): the dynamic
// contract-call custom strategy. It emits CTX and SWITCH on the register
// holding the first argument (the callee name, a runtime string rather than
// a literal) and copies that register into the result. It pushes nothing:
// arguments after the name are not passed to the callee.
func lowerCallMethod(cg *CodeGen, call *Expr, argRegs []RegID) (RegID, error) {
	if len(argRegs) == 0 {
		return NoRegister, newError(PhaseCodeGen, call.Pos, "Call.method requires a method name argument")
	}
	out := cg.alloc("call_method_result")
	cg.emitf("CTX %s %s", cg.reg(argRegs[0]), cg.reg(argRegs[0]))
	cg.emitf("SWITCH %s", cg.reg(argRegs[0]))
	cg.emitf("COPY %s %s", cg.reg(argRegs[0]), cg.reg(out))
	return out, nil
}

// builtinSnippetLines returns the canned assembly body for a builtin call
// site's key: an ordinary locally-callable subroutine, entered via
// builtinEntryLabel(key), that pops argc pushed arguments (ARG), invokes the
// VM's BUILTIN primitive on them, and pushes the primitive's result back to
// the caller. lowerModule appends one of these per key actually used by a
// module, however many call sites shared that key.
func builtinSnippetLines(key string, argc int) []string {
	lines := []string{builtinEntryLabel(key) + ":"}
	argRegs := make([]string, argc)
	for i := 0; i < argc; i++ {
		argRegs[i] = fmt.Sprintf("r%d", i)
		lines = append(lines, fmt.Sprintf("ARG r%d", i))
	}
	lines = append(lines, fmt.Sprintf("BUILTIN %q %d %s", key, argc, strings.Join(argRegs, " ")))
	result := fmt.Sprintf("r%d", argc)
	lines = append(lines,
		fmt.Sprintf("COPY r0 %s", result),
		fmt.Sprintf("PUSH %s", result),
		"RET",
	)
	return lines
}

// lowerCallInterop implements Call.interop<T>("Name", method, args...): it
// emits EXTCALL on the register holding the interop name and copies that
// register into the result. The method name and further arguments are not
// passed, and no coercion of the result to T is emitted.
func lowerCallInterop(cg *CodeGen, call *Expr, argRegs []RegID) (RegID, error) {
	if len(argRegs) < 2 {
		return NoRegister, newError(PhaseCodeGen, call.Pos, "Call.interop requires an interop name and a method name")
	}
	out := cg.alloc("interop_result")
	cg.emitf("EXTCALL %s", cg.reg(argRegs[0]))
	cg.emitf("COPY %s %s", cg.reg(argRegs[0]), cg.reg(out))
	return out, nil
}
