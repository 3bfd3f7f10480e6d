package tomblang

import (
	"fmt"
)

// CodeGen walks one method body and emits textual VM assembly, one
// instruction per line. A fresh CodeGen is created per method; apart from
// the module-wide builtinsUsed set passed in by the caller, nothing survives
// across methods.
type CodeGen struct {
	in      *Interner
	regs    *RegisterBank
	scope   *Scope
	module  *ModuleDecl
	method  *MethodDecl
	lines   []string
	labelN  int
	builtinsUsed map[string]int
	loopStack []loopLabels
}

type loopLabels struct {
	continueLabel string
	breakLabel    string
}

func NewCodeGen(in *Interner, module *ModuleDecl, method *MethodDecl, scope *Scope, builtinsUsed map[string]int) *CodeGen {
	return &CodeGen{
		in:           in,
		regs:         NewRegisterBank(defaultRegisterBankSize),
		scope:        scope,
		module:       module,
		method:       method,
		builtinsUsed: builtinsUsed,
	}
}

func (cg *CodeGen) reg(r RegID) string { return fmt.Sprintf("r%d", int(r)) }

func (cg *CodeGen) alloc(hint string) RegID {
	r, err := cg.regs.Alloc(hint)
	if err != nil {
		panic(err) // register pressure is a compiler-fatal error, caught by Compile's recover boundary
	}
	return r
}

func (cg *CodeGen) free(r RegID) { cg.regs.Dealloc(r) }

// freeDecl releases d's bound register, if any, and clears it so a second
// pass over the same Decl (there isn't one today, but this keeps the
// operation idempotent) is a no-op rather than a double free.
func (cg *CodeGen) freeDecl(d *Decl) {
	if d == nil || d.Register == NoRegister {
		return
	}
	cg.free(d.Register)
	d.Register = NoRegister
}

// collectLocalDecls walks a method body and returns the elaborated Decl for
// every `local` statement reached, regardless of block nesting. Codegen
// emits every branch of an if/switch unconditionally at compile time, so
// every local declaration in the body binds a register that Generate must
// free in its epilogue sweep.
func collectLocalDecls(stmts []*Stmt) []*Decl {
	var out []*Decl
	for _, s := range stmts {
		switch s.Kind {
		case StmtLocal:
			out = append(out, s.LocalRegHolder)
		case StmtIf:
			out = append(out, collectLocalDecls(s.Then)...)
			out = append(out, collectLocalDecls(s.Else)...)
		case StmtSwitch:
			for _, c := range s.Cases {
				out = append(out, collectLocalDecls(c.Body)...)
			}
			out = append(out, collectLocalDecls(s.Default)...)
		case StmtWhile, StmtDoWhile:
			out = append(out, collectLocalDecls(s.Body)...)
		case StmtFor:
			if s.ForInit != nil {
				out = append(out, collectLocalDecls([]*Stmt{s.ForInit})...)
			}
			out = append(out, collectLocalDecls(s.Body)...)
		case StmtBlock:
			out = append(out, collectLocalDecls(s.Block)...)
		}
	}
	return out
}

func (cg *CodeGen) emitf(format string, args ...interface{}) {
	cg.lines = append(cg.lines, fmt.Sprintf(format, args...))
}

func (cg *CodeGen) emitLineComment(pos Position, src string) {
	cg.lines = append(cg.lines, fmt.Sprintf("; line %d: %s", pos.Line, src))
}

func (cg *CodeGen) newLabel(prefix string) string {
	cg.labelN++
	return fmt.Sprintf("%s_%s_%d", prefix, cg.method.Name, cg.labelN)
}

// entryLabel is the address a CALL to method name targets: every method in
// a module shares one label namespace once the assembler concatenates all
// of them into a single script, so it's qualified up front.
func entryLabel(name string) string {
	return "entry_" + name
}

// builtinEntryLabel is the address a builtin snippet's canned body starts
// at, once appended to the end of the script.
func builtinEntryLabel(key string) string {
	return "entry_builtin_" + key
}

// CompiledMethod is the textual assembly and metadata for one method,
// ready for the assembler.
type CompiledMethod struct {
	Name       string
	Visibility Visibility
	Kind       MethodKind
	Params     []Param
	ParamTypes []*Type
	ReturnType *Type
	Variadic   bool
	Lines      []string
}

// Generate lowers md's body to assembly text and returns the compiled
// method, or an error if register pressure is exceeded or an unresolved
// construct escapes elaboration.
func (cg *CodeGen) Generate() (cm *CompiledMethod, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*CompilerError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	cg.emitf("%s:", entryLabel(cg.method.Name))

	for i, prm := range cg.method.Params {
		r := cg.alloc("arg_" + prm.Name)
		cg.method.ParamDecls[i].Register = r
		cg.emitf("ARG %s", cg.reg(r))
	}

	for _, s := range cg.method.Body {
		cg.genStmt(s)
	}

	if cg.method.ReturnType == nil || cg.method.ReturnType.Kind == KindNone {
		cg.emitf("RET")
	}

	// Argument and local registers live for the whole method body, so
	// nothing in genStmt/genExpr ever frees them; free them here, once,
	// before checking that the bank came back empty.
	for _, d := range cg.method.ParamDecls {
		cg.freeDecl(d)
	}
	for _, d := range collectLocalDecls(cg.method.Body) {
		cg.freeDecl(d)
	}

	if err := cg.regs.AssertNoLeaks(); err != nil {
		return nil, err
	}

	return &CompiledMethod{
		Name:       cg.method.Name,
		Visibility: cg.method.Visibility,
		Kind:       cg.method.Kind,
		Params:     cg.method.Params,
		ParamTypes: cg.method.ParamTypes,
		ReturnType: cg.method.ReturnType,
		Variadic:   cg.method.Variadic,
		Lines:      cg.lines,
	}, nil
}

func (cg *CodeGen) genStmt(s *Stmt) {
	switch s.Kind {
	case StmtLocal:
		cg.genLocal(s)
	case StmtAssign:
		cg.genAssign(s)
	case StmtIf:
		cg.genIf(s)
	case StmtSwitch:
		cg.genSwitch(s)
	case StmtWhile:
		cg.genWhile(s)
	case StmtDoWhile:
		cg.genDoWhile(s)
	case StmtFor:
		cg.genFor(s)
	case StmtBreak:
		if len(cg.loopStack) == 0 {
			panic(newError(PhaseCodeGen, s.Pos, "break outside a loop"))
		}
		cg.emitf("JMP %s", cg.loopStack[len(cg.loopStack)-1].breakLabel)
	case StmtContinue:
		if len(cg.loopStack) == 0 {
			panic(newError(PhaseCodeGen, s.Pos, "continue outside a loop"))
		}
		cg.emitf("JMP %s", cg.loopStack[len(cg.loopStack)-1].continueLabel)
	case StmtReturn:
		cg.genReturn(s)
	case StmtThrow:
		cg.emitf("THROW %q", s.ThrowMsg)
	case StmtExpr:
		r := cg.genExpr(s.Expression)
		cg.free(r)
	case StmtBlock:
		for _, inner := range s.Block {
			cg.genStmt(inner)
		}
	}
}

func (cg *CodeGen) genLocal(s *Stmt) {
	d := s.LocalRegHolder
	if d == nil {
		panic(newError(PhaseCodeGen, s.Pos, "local %q missing its elaborated declaration", s.Name))
	}
	if s.Init == nil {
		r := cg.alloc(s.Name)
		d.Register = r
		cg.emitf("ZERO %s", cg.reg(r))
		return
	}
	valReg := cg.genExpr(s.Init)
	d.Register = valReg
	cg.regs.alias[valReg] = s.Name
}

func (cg *CodeGen) genAssign(s *Stmt) {
	valReg := cg.genExpr(s.Value)
	switch s.Target.Kind {
	case ExprIdent:
		d := s.Target.ResolvedDecl
		if d == nil {
			panic(newError(PhaseCodeGen, s.Pos, "undefined assignment target %q", s.Target.Name))
		}
		if d.Storage == StorageGlobal {
			cg.emitf("SSTORE %q %s", s.Target.Name, cg.reg(valReg))
			cg.free(valReg)
			return
		}
		if d.Register == NoRegister {
			d.Register = valReg
			return
		}
		cg.emitf("COPY %s %s", cg.reg(valReg), cg.reg(d.Register))
		cg.free(valReg)

	case ExprField:
		baseReg := cg.genExpr(s.Target.Base)
		cg.emitf("SETFIELD %s %q %s", cg.reg(baseReg), s.Target.Name, cg.reg(valReg))
		cg.free(baseReg)
		cg.free(valReg)

	case ExprIndex:
		baseReg := cg.genExpr(s.Target.Base)
		idxReg := cg.genExpr(s.Target.Index)
		cg.emitf("SETINDEX %s %s %s", cg.reg(baseReg), cg.reg(idxReg), cg.reg(valReg))
		cg.free(baseReg)
		cg.free(idxReg)
		cg.free(valReg)

	default:
		panic(newError(PhaseCodeGen, s.Pos, "unassignable expression on the left of ="))
	}
}

func (cg *CodeGen) genIf(s *Stmt) {
	elseLabel := cg.newLabel("else")
	endLabel := cg.newLabel("endif")
	condReg := cg.genExpr(s.Cond)
	cg.emitf("JMPNOT %s %s", cg.reg(condReg), elseLabel)
	cg.free(condReg)
	for _, inner := range s.Then {
		cg.genStmt(inner)
	}
	if len(s.Else) > 0 {
		cg.emitf("JMP %s", endLabel)
	}
	cg.emitf("%s:", elseLabel)
	for _, inner := range s.Else {
		cg.genStmt(inner)
	}
	if len(s.Else) > 0 {
		cg.emitf("%s:", endLabel)
	}
}

// genSwitch lowers a switch/case/default into a chain of equality tests
// against the scrutinee, falling through to default: switch has no direct
// VM opcode, so it desugars to compares and jumps.
func (cg *CodeGen) genSwitch(s *Stmt) {
	endLabel := cg.newLabel("endswitch")
	scrutReg := cg.genExpr(s.Scrutinee)
	var caseLabels []string
	for range s.Cases {
		caseLabels = append(caseLabels, cg.newLabel("case"))
	}
	defaultLabel := cg.newLabel("default")

	for i, c := range s.Cases {
		for _, lbl := range c.Labels {
			lblReg := cg.genExpr(lbl)
			cmpReg := cg.alloc("switch_cmp")
			cg.emitf("EQUAL %s %s %s", cg.reg(scrutReg), cg.reg(lblReg), cg.reg(cmpReg))
			cg.emitf("JMPIF %s %s", cg.reg(cmpReg), caseLabels[i])
			cg.free(lblReg)
			cg.free(cmpReg)
		}
	}
	cg.emitf("JMP %s", defaultLabel)

	for i, c := range s.Cases {
		cg.emitf("%s:", caseLabels[i])
		for _, inner := range c.Body {
			cg.genStmt(inner)
		}
		cg.emitf("JMP %s", endLabel)
	}
	cg.emitf("%s:", defaultLabel)
	for _, inner := range s.Default {
		cg.genStmt(inner)
	}
	cg.emitf("%s:", endLabel)
	cg.free(scrutReg)
}

func (cg *CodeGen) genWhile(s *Stmt) {
	startLabel := cg.newLabel("while")
	endLabel := cg.newLabel("endwhile")
	cg.loopStack = append(cg.loopStack, loopLabels{continueLabel: startLabel, breakLabel: endLabel})
	cg.emitf("%s:", startLabel)
	condReg := cg.genExpr(s.Cond)
	cg.emitf("JMPNOT %s %s", cg.reg(condReg), endLabel)
	cg.free(condReg)
	for _, inner := range s.Body {
		cg.genStmt(inner)
	}
	cg.emitf("JMP %s", startLabel)
	cg.emitf("%s:", endLabel)
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
}

func (cg *CodeGen) genDoWhile(s *Stmt) {
	startLabel := cg.newLabel("dowhile")
	condLabel := cg.newLabel("dowhile_cond")
	endLabel := cg.newLabel("enddowhile")
	cg.loopStack = append(cg.loopStack, loopLabels{continueLabel: condLabel, breakLabel: endLabel})
	cg.emitf("%s:", startLabel)
	for _, inner := range s.Body {
		cg.genStmt(inner)
	}
	cg.emitf("%s:", condLabel)
	condReg := cg.genExpr(s.Cond)
	cg.emitf("JMPIF %s %s", cg.reg(condReg), startLabel)
	cg.free(condReg)
	cg.emitf("%s:", endLabel)
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
}

func (cg *CodeGen) genFor(s *Stmt) {
	if s.ForInit != nil {
		cg.genStmt(s.ForInit)
	}
	startLabel := cg.newLabel("for")
	postLabel := cg.newLabel("for_post")
	endLabel := cg.newLabel("endfor")
	cg.loopStack = append(cg.loopStack, loopLabels{continueLabel: postLabel, breakLabel: endLabel})
	cg.emitf("%s:", startLabel)
	if s.ForCond != nil {
		condReg := cg.genExpr(s.ForCond)
		cg.emitf("JMPNOT %s %s", cg.reg(condReg), endLabel)
		cg.free(condReg)
	}
	for _, inner := range s.Body {
		cg.genStmt(inner)
	}
	cg.emitf("%s:", postLabel)
	if s.ForPost != nil {
		cg.genStmt(s.ForPost)
	}
	cg.emitf("JMP %s", startLabel)
	cg.emitf("%s:", endLabel)
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
}

func (cg *CodeGen) genReturn(s *Stmt) {
	if s.RetValue == nil {
		cg.emitf("RET")
		return
	}
	r := cg.genExpr(s.RetValue)
	cg.emitf("PUSH %s", cg.reg(r))
	cg.emitf("RET")
	cg.free(r)
}

// genExpr lowers e and returns the register holding its value. Callers own
// releasing that register once consumed.
func (cg *CodeGen) genExpr(e *Expr) RegID {
	out := cg.genExprRaw(e)
	if e.CastTo != nil {
		out = cg.emitCast(out, e.ResolvedType, e.CastTo)
	}
	return out
}

func (cg *CodeGen) emitCast(r RegID, from, to *Type) RegID {
	casted := cg.alloc("cast")
	cg.emitf("CAST %s %q %s", cg.reg(r), vmTypeName(to), cg.reg(casted))
	cg.free(r)
	return casted
}

func vmTypeName(t *Type) string {
	if t == nil {
		return "any"
	}
	return t.Kind.String()
}

func (cg *CodeGen) genExprRaw(e *Expr) RegID {
	switch e.Kind {
	case ExprLiteral:
		return cg.genLiteral(e)
	case ExprIdent:
		return cg.genIdent(e)
	case ExprThis:
		r := cg.alloc("this")
		cg.emitf("THIS %s", cg.reg(r))
		return r
	case ExprUnary:
		return cg.genUnary(e)
	case ExprBinary:
		return cg.genBinary(e)
	case ExprField:
		return cg.genField(e)
	case ExprIndex:
		return cg.genIndex(e)
	case ExprCall:
		return cg.genCall(e)
	case ExprConstruct:
		return cg.genConstruct(e)
	case ExprArrayLit:
		return cg.genArrayLit(e)
	}
	panic(newError(PhaseCodeGen, e.Pos, "unhandled expression kind in codegen"))
}

func (cg *CodeGen) genLiteral(e *Expr) RegID {
	r := cg.alloc("lit")
	switch e.LitType.Kind {
	case KindString:
		cg.emitf("PUSHS %s %q", cg.reg(r), e.LitValue.Str)
	case KindAddress, KindHash, KindBytes:
		cg.emitf("PUSHA %s %q", cg.reg(r), e.LitValue.Str)
	case KindBool:
		cg.emitf("PUSHI %s %d", cg.reg(r), e.LitValue.Number)
	default:
		cg.emitf("PUSHI %s %d", cg.reg(r), e.LitValue.Number)
	}
	return r
}

func (cg *CodeGen) genIdent(e *Expr) RegID {
	d := e.ResolvedDecl
	if d == nil {
		panic(newError(PhaseCodeGen, e.Pos, "undefined identifier %q reached codegen", e.Name))
	}
	if d.Storage == StorageGlobal {
		r := cg.alloc(e.Name)
		cg.emitf("SLOAD %s %q", cg.reg(r), e.Name)
		return r
	}
	if d.Register == NoRegister {
		panic(newError(PhaseCodeGen, e.Pos, "local %q used before its register was bound", e.Name))
	}
	r := cg.alloc(e.Name)
	cg.emitf("COPY %s %s", cg.reg(d.Register), cg.reg(r))
	return r
}

func (cg *CodeGen) genUnary(e *Expr) RegID {
	operand := cg.genExpr(e.Right)
	out := cg.alloc("unary")
	switch e.Op {
	case "!":
		cg.emitf("NOT %s %s", cg.reg(operand), cg.reg(out))
	case "-":
		cg.emitf("NEG %s %s", cg.reg(operand), cg.reg(out))
	}
	cg.free(operand)
	return out
}

var binOpcode = map[string]string{
	"+": "ADD", "-": "SUB", "*": "MUL", "/": "DIV", "%": "MOD",
	"==": "EQUAL", "!=": "NEQ", "<": "LT", "<=": "LE", ">": "GT", ">=": "GE",
	"&&": "AND", "||": "OR", "<<": "SHL", ">>": "SHR",
}

func (cg *CodeGen) genBinary(e *Expr) RegID {
	l := cg.genExpr(e.Left)
	r := cg.genExpr(e.Right)
	out := cg.alloc("bin")
	opcode, ok := binOpcode[e.Op]
	if !ok {
		panic(newError(PhaseCodeGen, e.Pos, "unhandled binary operator %q", e.Op))
	}
	cg.emitf("%s %s %s %s", opcode, cg.reg(l), cg.reg(r), cg.reg(out))
	cg.free(l)
	cg.free(r)
	return out
}

func (cg *CodeGen) genField(e *Expr) RegID {
	baseReg := cg.genExpr(e.Base)
	out := cg.alloc("field")
	cg.emitf("GETFIELD %s %q %s", cg.reg(baseReg), e.Name, cg.reg(out))
	cg.free(baseReg)
	return out
}

func (cg *CodeGen) genIndex(e *Expr) RegID {
	baseReg := cg.genExpr(e.Base)
	idxReg := cg.genExpr(e.Index)
	out := cg.alloc("index")
	cg.emitf("GETINDEX %s %s %s", cg.reg(baseReg), cg.reg(idxReg), cg.reg(out))
	cg.free(baseReg)
	cg.free(idxReg)
	return out
}

// genCall lowers a call using the strategy elaborate.go decided.
func (cg *CodeGen) genCall(e *Expr) RegID {
	rc := e.ResolvedCall
	if rc == nil {
		panic(newError(PhaseCodeGen, e.Pos, "call left unresolved by elaboration"))
	}

	argRegs := make([]RegID, len(e.Args))
	for i, a := range e.Args {
		argRegs[i] = cg.genExpr(a)
	}

	switch rc.Strategy {
	case StrategyLocalCall:
		out := cg.alloc("call_result")
		for _, ar := range argRegs {
			cg.emitf("PUSHARG %s", cg.reg(ar))
		}
		cg.emitf("CALL %s %s", entryLabel(rc.LocalDecl.Name), cg.reg(out))
		for _, ar := range argRegs {
			cg.free(ar)
		}
		return out

	case StrategyExtCall:
		out := cg.alloc("ext_result")
		for _, ar := range argRegs {
			cg.emitf("PUSHARG %s", cg.reg(ar))
		}
		cg.emitf("EXTCALL %q %s", rc.LibMethod.ExtName, cg.reg(out))
		for _, ar := range argRegs {
			cg.free(ar)
		}
		return out

	case StrategyContractCall:
		out := cg.alloc("contract_result")
		for _, ar := range argRegs {
			cg.emitf("PUSHARG %s", cg.reg(ar))
		}
		cg.emitf("CCALL %q %s", e.LibName+"."+e.Method, cg.reg(out))
		for _, ar := range argRegs {
			cg.free(ar)
		}
		return out

	case StrategyBuiltinInline:
		key := rc.LibMethod.BuiltinKey
		cg.builtinsUsed[key] = len(argRegs)
		out := cg.alloc("builtin_result")
		for _, ar := range argRegs {
			cg.emitf("PUSHARG %s", cg.reg(ar))
		}
		cg.emitf("CALL %s %s", builtinEntryLabel(key), cg.reg(out))
		for _, ar := range argRegs {
			cg.free(ar)
		}
		return out

	case StrategyCustom:
		out, err := rc.LibMethod.Custom(cg, e, argRegs)
		if err != nil {
			panic(err)
		}
		for _, ar := range argRegs {
			cg.free(ar)
		}
		return out
	}
	panic(newError(PhaseCodeGen, e.Pos, "unknown lowering strategy"))
}

// genConstruct lowers Struct.NAME(args) / Type(args) into field-by-field
// stores onto a freshly allocated struct register.
func (cg *CodeGen) genConstruct(e *Expr) RegID {
	out := cg.alloc("struct_" + e.TypeName)
	cg.emitf("NEWSTRUCT %q %s", e.TypeName, cg.reg(out))
	d, ok := cg.scope.Resolve(e.TypeName)
	if ok && d.Kind == DeclStruct {
		for i, f := range d.Fields {
			if i >= len(e.TypeArgs) {
				continue
			}
			vr := cg.genExpr(e.TypeArgs[i])
			cg.emitf("SETFIELD %s %q %s", cg.reg(out), f.Name, cg.reg(vr))
			cg.free(vr)
		}
	}
	return out
}

func (cg *CodeGen) genArrayLit(e *Expr) RegID {
	out := cg.alloc("array")
	cg.emitf("NEWARRAY %d %s", len(e.Elems), cg.reg(out))
	for i, el := range e.Elems {
		vr := cg.genExpr(el)
		cg.emitf("SETINDEX %s %d %s", cg.reg(out), i, cg.reg(vr))
		cg.free(vr)
	}
	return out
}
