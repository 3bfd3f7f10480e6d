package tomblang

import "strings"

// Elaborator performs name resolution, type checking, macro expansion, and
// implicit-conversion insertion. It carries no state beyond the interner
// and library registry, both scoped to one CompileContext, never
// package-level.
type Elaborator struct {
	in  *Interner
	reg *Registry
}

func NewElaborator(in *Interner, reg *Registry) *Elaborator {
	return &Elaborator{in: in, reg: reg}
}

// methodState tracks the "no return expr after a bare return" rule across
// one method body's statement list.
type methodState struct {
	sawBareReturn bool
	loopDepth     int
	method        *MethodDecl
	module        *ModuleDecl
}

// ElaborateModule type-checks m (and any nested nft sub-modules) against a
// freshly built scope tree rooted at parentScope (nil for a top-level
// module). It mutates the AST in place: types are resolved onto
// ParamTypes/ReturnType/ResolvedType fields, and m.Scope is bound.
func (el *Elaborator) ElaborateModule(m *ModuleDecl, parentScope *Scope) error {
	scope := NewScope(parentScope)
	m.Scope = scope

	if m.Kind == ModuleNFT {
		scope.Declare(&Decl{Kind: DeclVar, Name: "_ROM", VarType: el.in.Any(), Storage: StorageLocal, Register: NoRegister})
		scope.Declare(&Decl{Kind: DeclVar, Name: "_RAM", VarType: el.in.Any(), Storage: StorageLocal, Register: NoRegister})
		scope.Declare(&Decl{Kind: DeclVar, Name: "_tokenID", VarType: el.in.Number(), Storage: StorageLocal, Register: NoRegister})
	}

	for _, sd := range m.Structs {
		st := el.in.Struct(sd.Name)
		fields := make([]StructField, len(sd.Fields))
		for i, f := range sd.Fields {
			ft, err := el.resolveTypeExpr(f.TypeStr, scope)
			if err != nil {
				return err
			}
			fields[i] = StructField{Name: f.Name, Type: ft}
		}
		if !scope.Declare(&Decl{Kind: DeclStruct, Name: sd.Name, Pos: sd.Pos, Fields: fields}) {
			return newError(PhaseResolve, sd.Pos, "duplicate declaration of struct %q", sd.Name)
		}
		_ = st
	}

	for _, ed := range m.Enums {
		entries := make([]EnumEntry, len(ed.Entries))
		for i, e := range ed.Entries {
			entries[i] = EnumEntry{Name: e.Name, Value: e.Value}
		}
		if !scope.Declare(&Decl{Kind: DeclEnum, Name: ed.Name, Pos: ed.Pos, Entries: entries}) {
			return newError(PhaseResolve, ed.Pos, "duplicate declaration of enum %q", ed.Name)
		}
	}

	for _, imp := range m.Imports {
		lib, ok := el.reg.Lookup(imp)
		if !ok {
			return newError(PhaseResolve, m.Pos, "unknown library %q", imp)
		}
		scope.Declare(&Decl{Kind: DeclLibrary, Name: imp, Library: lib})
	}

	for _, g := range m.Globals {
		gt, err := el.resolveTypeExpr(g.TypeStr, scope)
		if err != nil {
			return err
		}
		if !scope.Declare(&Decl{Kind: DeclVar, Name: g.Name, Pos: g.Pos, VarType: gt, Storage: StorageGlobal, Register: NoRegister}) {
			return newError(PhaseResolve, g.Pos, "duplicate declaration of global %q", g.Name)
		}
	}

	for _, c := range m.Consts {
		ct, err := el.elaborateExpr(c.Value, scope, m)
		if err != nil {
			return err
		}
		if c.TypeStr != "" {
			declared, err := el.resolveTypeExpr(c.TypeStr, scope)
			if err != nil {
				return err
			}
			ct = declared
		}
		if !scope.Declare(&Decl{Kind: DeclConst, Name: c.Name, Pos: c.Pos, ConstType: ct, ConstValue: c.Value.LitValue}) {
			return newError(PhaseResolve, c.Pos, "duplicate declaration of const %q", c.Name)
		}
	}

	// Duplicate method names are rejected.
	seen := make(map[string]bool)
	for _, md := range m.Methods {
		if seen[md.Name] {
			return newError(PhaseTypeCheck, md.Pos, "duplicate method name %q in module %q", md.Name, m.Name)
		}
		seen[md.Name] = true
	}

	for _, md := range m.Methods {
		pt := make([]*Type, len(md.Params))
		for i, prm := range md.Params {
			t, err := el.resolveTypeExpr(prm.TypeStr, scope)
			if err != nil {
				return err
			}
			pt[i] = t
		}
		md.ParamTypes = pt
		if md.ReturnStr == "" {
			md.ReturnType = el.in.None()
		} else {
			rt, err := el.resolveTypeExpr(md.ReturnStr, scope)
			if err != nil {
				return err
			}
			md.ReturnType = rt
		}
		if !scope.Declare(&Decl{Kind: DeclMethod, Name: md.Name, Pos: md.Pos, Method: md}) {
			return newError(PhaseTypeCheck, md.Pos, "duplicate method name %q", md.Name)
		}
	}

	for _, md := range m.Methods {
		if err := el.elaborateMethodBody(m, md, scope); err != nil {
			return err
		}
	}

	for _, sub := range m.SubModules {
		if err := el.ElaborateModule(sub, scope); err != nil {
			return err
		}
	}

	return nil
}

func (el *Elaborator) elaborateMethodBody(m *ModuleDecl, md *MethodDecl, moduleScope *Scope) error {
	methodScope := NewScope(moduleScope)
	md.ParamDecls = make([]*Decl, len(md.Params))
	for i, prm := range md.Params {
		d := &Decl{Kind: DeclVar, Name: prm.Name, Pos: md.Pos, VarType: md.ParamTypes[i], Storage: StorageArgument, Register: NoRegister}
		if !methodScope.Declare(d) {
			return newError(PhaseTypeCheck, md.Pos, "duplicate parameter name %q", prm.Name)
		}
		md.ParamDecls[i] = d
	}
	state := &methodState{method: md, module: m}
	return el.elaborateBlock(md.Body, methodScope, state)
}

func (el *Elaborator) elaborateBlock(stmts []*Stmt, scope *Scope, state *methodState) error {
	for _, s := range stmts {
		if err := el.elaborateStmt(s, scope, state); err != nil {
			return err
		}
	}
	return nil
}

func (el *Elaborator) elaborateStmt(s *Stmt, scope *Scope, state *methodState) error {
	switch s.Kind {
	case StmtLocal:
		var t *Type
		if s.Init != nil {
			it, err := el.elaborateExpr(s.Init, scope, state.module)
			if err != nil {
				return err
			}
			t = it
		}
		if s.DeclaredTy != "" {
			dt, err := el.resolveTypeExpr(s.DeclaredTy, scope)
			if err != nil {
				return err
			}
			if s.Init != nil {
				if err := el.checkAssignable(dt, s.Init); err != nil {
					return err
				}
			}
			t = dt
		}
		if t == nil {
			t = el.in.Unknown()
		}
		d := &Decl{Kind: DeclVar, Name: s.Name, Pos: s.Pos, VarType: t, Storage: StorageLocal, Register: NoRegister}
		if !scope.Declare(d) {
			return newError(PhaseResolve, s.Pos, "duplicate local declaration %q", s.Name)
		}
		s.LocalRegHolder = d
		return nil

	case StmtAssign:
		if _, err := el.elaborateExpr(s.Target, scope, state.module); err != nil {
			return err
		}
		targetType := s.Target.ResolvedType
		vt, err := el.elaborateExpr(s.Value, scope, state.module)
		if err != nil {
			return err
		}
		_ = vt
		if targetType != nil {
			return el.checkAssignable(targetType, s.Value)
		}
		return nil

	case StmtIf:
		if _, err := el.elaborateExpr(s.Cond, scope, state.module); err != nil {
			return err
		}
		if err := el.elaborateBlock(s.Then, NewScope(scope), state); err != nil {
			return err
		}
		return el.elaborateBlock(s.Else, NewScope(scope), state)

	case StmtSwitch:
		if _, err := el.elaborateExpr(s.Scrutinee, scope, state.module); err != nil {
			return err
		}
		var labelKind TypeKind
		var labelEnum string
		haveKind := false
		for _, c := range s.Cases {
			for _, lbl := range c.Labels {
				if _, err := el.elaborateExpr(lbl, scope, state.module); err != nil {
					return err
				}
				if lbl.Kind != ExprLiteral {
					return newError(PhaseTypeCheck, lbl.Pos, "switch case labels must be literals")
				}
				kind := lbl.ResolvedType.Kind
				if kind != KindNumber && kind != KindString && kind != KindEnum {
					return newError(PhaseTypeCheck, lbl.Pos, "switch case labels must be Number, String, or Enum literals")
				}
				if !haveKind {
					haveKind = true
					labelKind = kind
					labelEnum = lbl.ResolvedType.Name
					continue
				}
				if kind != labelKind || (kind == KindEnum && lbl.ResolvedType.Name != labelEnum) {
					return newError(PhaseTypeCheck, lbl.Pos, "switch case labels must all share one ordinal type")
				}
			}
			if err := el.elaborateBlock(c.Body, NewScope(scope), state); err != nil {
				return err
			}
		}
		return el.elaborateBlock(s.Default, NewScope(scope), state)

	case StmtWhile, StmtDoWhile:
		if _, err := el.elaborateExpr(s.Cond, scope, state.module); err != nil {
			return err
		}
		state.loopDepth++
		err := el.elaborateBlock(s.Body, NewScope(scope), state)
		state.loopDepth--
		return err

	case StmtFor:
		forScope := NewScope(scope)
		if s.ForInit != nil {
			if err := el.elaborateStmt(s.ForInit, forScope, state); err != nil {
				return err
			}
		}
		if s.ForCond != nil {
			if _, err := el.elaborateExpr(s.ForCond, forScope, state.module); err != nil {
				return err
			}
		}
		if s.ForPost != nil {
			if err := el.elaborateStmt(s.ForPost, forScope, state); err != nil {
				return err
			}
		}
		state.loopDepth++
		err := el.elaborateBlock(s.Body, NewScope(forScope), state)
		state.loopDepth--
		return err

	case StmtBreak, StmtContinue:
		if state.loopDepth == 0 {
			return newError(PhaseTypeCheck, s.Pos, "break/continue outside a loop")
		}
		return nil

	case StmtReturn:
		if state.method.Variadic && state.sawBareReturn && s.RetValue != nil {
			return newError(PhaseTypeCheck, s.Pos, "return with a value cannot follow a bare 'return;' in the same variadic method")
		}
		if s.RetValue == nil {
			state.sawBareReturn = true
			return nil
		}
		rt, err := el.elaborateExpr(s.RetValue, scope, state.module)
		if err != nil {
			return err
		}
		if state.method.ReturnType != nil && state.method.ReturnType.Kind != KindNone {
			if !typesCompatible(rt, state.method.ReturnType) {
				if canCastForAssignment(rt, state.method.ReturnType) {
					s.RetValue.CastTo = state.method.ReturnType
				}
			}
		}
		return nil

	case StmtThrow:
		return nil

	case StmtExpr:
		_, err := el.elaborateExpr(s.Expression, scope, state.module)
		return err

	case StmtBlock:
		return el.elaborateBlock(s.Block, NewScope(scope), state)
	}
	return nil
}

func typesCompatible(a, b *Type) bool { return a == b }

func canCastForAssignment(from, to *Type) bool {
	if from.Kind == KindString && to.IsNumeric() {
		return false // never implicit: "String ← any never (must be explicit)"
	}
	if from.IsNumeric() && to.Kind == KindString {
		return true
	}
	return ConvertibleTo(from, to)
}

// checkAssignable implements the assignment-compatibility table.
func (el *Elaborator) checkAssignable(target *Type, valueExpr *Expr) error {
	vt := valueExpr.ResolvedType
	if vt == nil || target == nil {
		return nil
	}
	if vt == target {
		return nil
	}
	if target.Kind == KindDecimal && valueExpr.Kind == ExprLiteral && valueExpr.LitValue.Type != nil && valueExpr.LitValue.Type.Kind == KindDecimal {
		if valueExpr.LitValue.FracDigits > int(target.Places) {
			return newError(PhaseTypeCheck, valueExpr.Pos, "decimal literal %q exceeds declared precision %d", valueExpr.LitValue.Str, target.Places)
		}
		return nil
	}
	if ConvertibleTo(vt, target) {
		return nil
	}
	if vt.Kind == KindString && target.Kind != KindString {
		return newError(PhaseTypeCheck, valueExpr.Pos, "cannot assign string to %s without an explicit conversion", target)
	}
	return newError(PhaseTypeCheck, valueExpr.Pos, "type mismatch: cannot assign %s to %s", vt, target)
}

// elaborateExpr assigns e.ResolvedType bottom-up and returns it, performing
// macro expansion, call resolution, and cast insertion along the way.
func (el *Elaborator) elaborateExpr(e *Expr, scope *Scope, module *ModuleDecl) (*Type, error) {
	switch e.Kind {
	case ExprLiteral:
		e.ResolvedType = e.LitType
		return e.ResolvedType, nil

	case ExprThis:
		e.ResolvedType = el.in.Module(module.Name)
		return e.ResolvedType, nil

	case ExprMacro:
		expanded, err := expandMacro(el.in, module, e)
		if err != nil {
			return nil, err
		}
		*e = *expanded
		e.ResolvedType = e.LitType
		return e.ResolvedType, nil

	case ExprIdent:
		d, ok := scope.Resolve(e.Name)
		if !ok {
			return nil, newError(PhaseResolve, e.Pos, "undefined identifier %q", e.Name)
		}
		e.ResolvedDecl = d
		switch d.Kind {
		case DeclVar:
			e.ResolvedType = d.VarType
		case DeclConst:
			e.ResolvedType = d.ConstType
		case DeclEnum:
			e.ResolvedType = el.in.Enum(d.Name)
		case DeclStruct:
			e.ResolvedType = el.in.Struct(d.Name)
		case DeclModule:
			e.ResolvedType = el.in.Module(d.Name)
		default:
			e.ResolvedType = el.in.Unknown()
		}
		return e.ResolvedType, nil

	case ExprField:
		// EnumName.Entry resolves to a literal of the enum's ordinal
		// value; anything else resolves as a struct field read.
		if e.Base.Kind == ExprIdent {
			if d, ok := scope.Resolve(e.Base.Name); ok && d.Kind == DeclEnum {
				for _, entry := range d.Entries {
					if entry.Name == e.Name {
						enumType := el.in.Enum(d.Name)
						e.Kind = ExprLiteral
						e.LitType = enumType
						e.LitValue = Value{Type: enumType, Number: entry.Value}
						e.ResolvedType = enumType
						return enumType, nil
					}
				}
				return nil, newError(PhaseResolve, e.Pos, "enum %q has no entry %q", d.Name, e.Name)
			}
		}
		baseType, err := el.elaborateExpr(e.Base, scope, module)
		if err != nil {
			return nil, err
		}
		if baseType != nil && baseType.Kind == KindStruct {
			if sd, ok := scope.Resolve(baseType.Name); ok {
				for _, f := range sd.Fields {
					if f.Name == e.Name {
						e.ResolvedType = f.Type
						return f.Type, nil
					}
				}
			}
			return nil, newError(PhaseResolve, e.Pos, "struct %q has no field %q", baseType.Name, e.Name)
		}
		e.ResolvedType = el.in.Any()
		return e.ResolvedType, nil

	case ExprIndex:
		baseType, err := el.elaborateExpr(e.Base, scope, module)
		if err != nil {
			return nil, err
		}
		if _, err := el.elaborateExpr(e.Index, scope, module); err != nil {
			return nil, err
		}
		switch {
		case baseType == nil:
			e.ResolvedType = el.in.Any()
		case baseType.Kind == KindArray || baseType.Kind == KindStorageList:
			e.ResolvedType = baseType.Elem
		case baseType.Kind == KindMap || baseType.Kind == KindStorageMap:
			e.ResolvedType = baseType.Val
		default:
			e.ResolvedType = el.in.Any()
		}
		return e.ResolvedType, nil

	case ExprUnary:
		rt, err := el.elaborateExpr(e.Right, scope, module)
		if err != nil {
			return nil, err
		}
		if e.Op == "!" {
			e.ResolvedType = el.in.Bool()
		} else {
			e.ResolvedType = rt
		}
		return e.ResolvedType, nil

	case ExprBinary:
		return el.elaborateBinary(e, scope, module)

	case ExprCall:
		return el.elaborateCall(e, scope, module)

	case ExprConstruct:
		return el.elaborateConstruct(e, scope, module)

	case ExprArrayLit:
		var elemType *Type
		for _, el2 := range e.Elems {
			t, err := el.elaborateExpr(el2, scope, module)
			if err != nil {
				return nil, err
			}
			elemType = t
		}
		if elemType == nil {
			elemType = el.in.Any()
		}
		e.ResolvedType = el.in.Array(elemType)
		return e.ResolvedType, nil
	}
	return nil, newError(PhaseTypeCheck, e.Pos, "unhandled expression kind %d", e.Kind)
}

func (el *Elaborator) elaborateBinary(e *Expr, scope *Scope, module *ModuleDecl) (*Type, error) {
	lt, err := el.elaborateExpr(e.Left, scope, module)
	if err != nil {
		return nil, err
	}
	rt, err := el.elaborateExpr(e.Right, scope, module)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "+":
		if lt.Kind == KindString || rt.Kind == KindString {
			if lt.Kind == KindString && rt.Kind == KindString && e.Left.Kind == ExprLiteral && e.Right.Kind == ExprLiteral {
				s := el.in.String()
				*e = Expr{Kind: ExprLiteral, Pos: e.Pos, LitType: s, LitValue: Value{Type: s, Str: e.Left.LitValue.Str + e.Right.LitValue.Str}, ResolvedType: s}
				return s, nil
			}
			if lt.Kind != KindString {
				e.Left.CastTo = el.in.String()
			}
			if rt.Kind != KindString {
				e.Right.CastTo = el.in.String()
			}
			e.ResolvedType = el.in.String()
			return e.ResolvedType, nil
		}
		fallthrough
	case "-", "*", "/", "%":
		if !lt.IsNumeric() || !rt.IsNumeric() || !SameNumeric(lt, rt) {
			return nil, newError(PhaseTypeCheck, e.Pos, "operator %q requires two Number or equal-precision Decimal operands", e.Op)
		}
		e.ResolvedType = lt
		return e.ResolvedType, nil

	case "==", "!=", "<", "<=", ">", ">=":
		e.ResolvedType = el.in.Bool()
		return e.ResolvedType, nil

	case "&&", "||":
		if lt.Kind != KindBool || rt.Kind != KindBool {
			return nil, newError(PhaseTypeCheck, e.Pos, "operator %q requires Bool operands", e.Op)
		}
		e.ResolvedType = el.in.Bool()
		return e.ResolvedType, nil

	case "<<", ">>":
		if !lt.IsNumeric() || !rt.IsNumeric() {
			return nil, newError(PhaseTypeCheck, e.Pos, "operator %q requires Number operands", e.Op)
		}
		e.ResolvedType = lt
		return e.ResolvedType, nil
	}
	return nil, newError(PhaseTypeCheck, e.Pos, "unknown binary operator %q", e.Op)
}

// elaborateCall resolves this.method(...), Lib.method(...), Struct.NAME(...)
// and value.method(...) call forms into a ResolvedCall for codegen. Which
// of the last two a bare-identifier receiver means can only be told apart
// by resolving the identifier in scope, so that happens here rather than
// in the parser.
func (el *Elaborator) elaborateCall(e *Expr, scope *Scope, module *ModuleDecl) (*Type, error) {
	if e.Receiver != nil && e.Receiver.Kind == ExprIdent && e.Receiver.Name == "Struct" {
		e.LibName = "Struct"
		e.Kind = ExprConstruct
		e.TypeName = e.Method
		e.TypeArgs = e.Args
		return el.elaborateConstruct(e, scope, module)
	}

	for _, a := range e.Args {
		if _, err := el.elaborateExpr(a, scope, module); err != nil {
			return nil, err
		}
	}

	if e.Receiver != nil && e.Receiver.Kind == ExprThis {
		d, ok := scope.Resolve(e.Method)
		if !ok || d.Kind != DeclMethod {
			return nil, newError(PhaseResolve, e.Pos, "undefined method %q on %s", e.Method, module.Name)
		}
		md := d.Method
		if err := el.checkArgs(e, md.ParamTypes, false); err != nil {
			return nil, err
		}
		e.ResolvedCall = &ResolvedCall{Strategy: StrategyLocalCall, LocalDecl: d}
		e.ResolvedType = md.ReturnType
		return e.ResolvedType, nil
	}

	if e.Receiver != nil && e.Receiver.Kind == ExprIdent {
		if ld, ok := scope.Resolve(e.Receiver.Name); ok && ld.Kind == DeclLibrary {
			e.LibName = e.Receiver.Name
			e.Receiver = nil
		}
	}

	if e.Receiver != nil {
		return el.elaborateValueCall(e, scope, module)
	}

	if e.LibName != "" {
		ld, ok := scope.Resolve(e.LibName)
		if !ok || ld.Kind != DeclLibrary {
			return nil, newError(PhaseResolve, e.Pos, "library %q not imported", e.LibName)
		}
		lib := ld.Library
		lm, ok := lib.Methods[e.Method]
		if !ok {
			return nil, newError(PhaseResolve, e.Pos, "library %q has no method %q", e.LibName, e.Method)
		}
		if lm.Strategy == StrategyCustom && lm.Custom == nil {
			return nil, newError(PhaseResolve, e.Pos, "library method %s.%s is marked custom but not implemented", e.LibName, e.Method)
		}
		if err := el.checkArgs(e, lm.Params, lm.Variadic); err != nil {
			return nil, err
		}
		e.ResolvedCall = &ResolvedCall{Strategy: lm.Strategy, Library: lib, LibMethod: lm}
		e.ResolvedType = lm.Return
		return e.ResolvedType, nil
	}

	return nil, newError(PhaseResolve, e.Pos, "unresolvable call to %q", e.Method)
}

// elaborateValueCall resolves value.method(...) instance-call sugar: the
// receiver is an ordinary value (a variable, field, or index expression,
// never a library or this), dispatched by its static type to the library
// that owns instance methods for that type, with the receiver spliced in
// as the method's implicit first argument. This is how "s.length()"
// reaches the same String.length library entry that "String.length(s)"
// would.
func (el *Elaborator) elaborateValueCall(e *Expr, scope *Scope, module *ModuleDecl) (*Type, error) {
	recvType, err := el.elaborateExpr(e.Receiver, scope, module)
	if err != nil {
		return nil, err
	}
	libName, ok := libraryNameForType(recvType)
	if !ok {
		return nil, newError(PhaseResolve, e.Pos, "type %s has no instance method %q", recvType, e.Method)
	}
	lib, ok := el.reg.Lookup(libName)
	if !ok {
		return nil, newError(PhaseResolve, e.Pos, "type %s has no instance method %q", recvType, e.Method)
	}
	lm, ok := lib.Methods[e.Method]
	if !ok {
		return nil, newError(PhaseResolve, e.Pos, "type %s has no instance method %q", recvType, e.Method)
	}
	if lm.Strategy == StrategyCustom && lm.Custom == nil {
		return nil, newError(PhaseResolve, e.Pos, "library method %s.%s is marked custom but not implemented", libName, e.Method)
	}

	e.Args = append([]*Expr{e.Receiver}, e.Args...)
	if err := el.checkArgs(e, lm.Params, lm.Variadic); err != nil {
		return nil, err
	}
	e.LibName = libName
	e.Receiver = nil
	e.ResolvedCall = &ResolvedCall{Strategy: lm.Strategy, Library: lib, LibMethod: lm}
	e.ResolvedType = lm.Return
	return e.ResolvedType, nil
}

// checkArgs enforces arity (extra arguments are fatal) and inserts
// an implicit numeric->string cast where a String parameter receives a
// numeric argument. A String argument for a numeric parameter gets no cast.
func (el *Elaborator) checkArgs(e *Expr, params []*Type, variadic bool) error {
	if !variadic && len(e.Args) > len(params) {
		return newError(PhaseTypeCheck, e.Pos, "too many arguments to %q: expected %d, got %d", e.Method, len(params), len(e.Args))
	}
	if !variadic && len(e.Args) < len(params) {
		return newError(PhaseTypeCheck, e.Pos, "too few arguments to %q: expected %d, got %d", e.Method, len(params), len(e.Args))
	}
	for i, a := range e.Args {
		if i >= len(params) {
			break // variadic tail, no declared type to check against
		}
		want := params[i]
		got := a.ResolvedType
		if got == nil || want == nil || got == want {
			continue
		}
		if got.Kind == KindString && want.IsNumeric() {
			continue // never implicit: caller must cast explicitly
		}
		if got.IsNumeric() && want.Kind == KindString {
			a.CastTo = want
			continue
		}
	}
	return nil
}

func (el *Elaborator) elaborateConstruct(e *Expr, scope *Scope, module *ModuleDecl) (*Type, error) {
	for _, a := range e.TypeArgs {
		if _, err := el.elaborateExpr(a, scope, module); err != nil {
			return nil, err
		}
	}
	d, ok := scope.Resolve(e.TypeName)
	if !ok || d.Kind != DeclStruct {
		return nil, newError(PhaseResolve, e.Pos, "unknown struct type %q", e.TypeName)
	}
	if len(e.TypeArgs) != len(d.Fields) {
		return nil, newError(PhaseTypeCheck, e.Pos, "struct %q constructor expects %d fields, got %d", e.TypeName, len(d.Fields), len(e.TypeArgs))
	}
	e.ResolvedType = el.in.Struct(e.TypeName)
	e.ResolvedCall = &ResolvedCall{Strategy: StrategyBuiltinInline}
	return e.ResolvedType, nil
}

// resolveTypeExpr turns the parser's canonical type text (e.g.
// "Decimal<3>", "Array<Number>", a struct/enum/module name) into an
// interned *Type.
func (el *Elaborator) resolveTypeExpr(s string, scope *Scope) (*Type, error) {
	base, args := splitTypeArgs(s)
	in := el.in
	// Source-level type names are lowercase ("number", "string",
	// "decimal<3>"); the Go-side Type/Interner API capitalizes them only as
	// identifiers.
	switch strings.ToLower(base) {
	case "number":
		return in.Number(), nil
	case "bool":
		return in.Bool(), nil
	case "string":
		return in.String(), nil
	case "timestamp":
		return in.Timestamp(), nil
	case "address":
		return in.Address(), nil
	case "hash":
		return in.Hash(), nil
	case "bytes":
		return in.Bytes(), nil
	case "any":
		return in.Any(), nil
	case "decimal":
		if len(args) != 1 {
			return nil, newError(PhaseTypeCheck, Position{}, "decimal requires exactly one precision argument")
		}
		places, err := parseUint8(args[0])
		if err != nil {
			return nil, newError(PhaseTypeCheck, Position{}, "invalid decimal precision %q", args[0])
		}
		return in.Decimal(places), nil
	case "array":
		if len(args) != 1 {
			return nil, newError(PhaseTypeCheck, Position{}, "array requires exactly one element type")
		}
		elem, err := el.resolveTypeExpr(args[0], scope)
		if err != nil {
			return nil, err
		}
		return in.Array(elem), nil
	case "map":
		if len(args) != 2 {
			return nil, newError(PhaseTypeCheck, Position{}, "map requires key and value types")
		}
		k, err := el.resolveTypeExpr(args[0], scope)
		if err != nil {
			return nil, err
		}
		v, err := el.resolveTypeExpr(args[1], scope)
		if err != nil {
			return nil, err
		}
		return in.Map(k, v), nil
	case "storagelist":
		if len(args) != 1 {
			return nil, newError(PhaseTypeCheck, Position{}, "storagelist requires exactly one element type")
		}
		elem, err := el.resolveTypeExpr(args[0], scope)
		if err != nil {
			return nil, err
		}
		return in.StorageList(elem), nil
	case "storagemap":
		if len(args) != 2 {
			return nil, newError(PhaseTypeCheck, Position{}, "storagemap requires key and value types")
		}
		k, err := el.resolveTypeExpr(args[0], scope)
		if err != nil {
			return nil, err
		}
		v, err := el.resolveTypeExpr(args[1], scope)
		if err != nil {
			return nil, err
		}
		return in.StorageMap(k, v), nil
	default:
		if d, ok := scope.Resolve(base); ok {
			switch d.Kind {
			case DeclStruct:
				return in.Struct(base), nil
			case DeclEnum:
				return in.Enum(base), nil
			case DeclModule:
				return in.Module(base), nil
			}
		}
		return nil, newError(PhaseResolve, Position{}, "unknown type %q", s)
	}
}

func splitTypeArgs(s string) (string, []string) {
	i := strings.IndexByte(s, '<')
	if i < 0 {
		return s, nil
	}
	base := s[:i]
	inner := s[i+1 : len(s)-1]
	return base, splitTopLevelCommas(inner)
}

func splitTopLevelCommas(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func parseUint8(s string) (uint8, error) {
	var v int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, newError(PhaseTypeCheck, Position{}, "invalid digit in %q", s)
		}
		v = v*10 + int(c-'0')
	}
	return uint8(v), nil
}
