package tomblang

// expandMacro rewrites a $MACRO expression node into a literal before code
// generation. The stable macro surface is $THIS_ADDRESS, $THIS_SYMBOL,
// $TYPE_OF(T).
func expandMacro(in *Interner, module *ModuleDecl, e *Expr) (*Expr, error) {
	switch e.MacroName {
	case "THIS_ADDRESS":
		return &Expr{
			Kind: ExprLiteral, Pos: e.Pos,
			LitType:  in.Address(),
			LitValue: Value{Type: in.Address(), Str: "@" + module.Name},
		}, nil
	case "THIS_SYMBOL":
		return &Expr{
			Kind: ExprLiteral, Pos: e.Pos,
			LitType:  in.String(),
			LitValue: Value{Type: in.String(), Str: module.Name},
		}, nil
	case "TYPE_OF":
		if len(e.MacroArgs) != 1 || e.MacroArgs[0].Kind != ExprIdent {
			return nil, newError(PhaseTypeCheck, e.Pos, "$TYPE_OF expects a single type name argument")
		}
		code, ok := vmTypeCode(e.MacroArgs[0].Name)
		if !ok {
			return nil, newError(PhaseTypeCheck, e.Pos, "$TYPE_OF: unknown type %q", e.MacroArgs[0].Name)
		}
		return &Expr{
			Kind: ExprLiteral, Pos: e.Pos,
			LitType:  in.Number(),
			LitValue: Value{Type: in.Number(), Number: int64(code)},
		}, nil
	default:
		return nil, newError(PhaseTypeCheck, e.Pos, "unknown macro $%s", e.MacroName)
	}
}

// vmTypeCode enumerates the VM-defined type codes $TYPE_OF(T) compiles to.
// The exact numbering belongs to the VM itself; this table is the
// compiler's fixed, internally-consistent stand-in.
func vmTypeCode(typeName string) (int, bool) {
	codes := map[string]int{
		"number": 0, "bool": 1, "string": 2, "timestamp": 3, "address": 4,
		"hash": 5, "bytes": 6, "decimal": 7, "enum": 8, "struct": 9,
		"array": 10, "map": 11, "module": 12,
	}
	code, ok := codes[typeName]
	return code, ok
}
