package tomblang

import (
	"strconv"
	"strings"
)

// Parser is a recursive-descent parser over the flat token stream produced
// by the Lexer. It fails fast on the first unexpected token; there is no
// error recovery.
type Parser struct {
	tokens []Token
	pos    int
	in     *Interner
}

func NewParser(tokens []Token, in *Interner) *Parser {
	return &Parser{tokens: tokens, in: in}
}

// ParseProgram parses every top-level module in the source.
func (p *Parser) ParseProgram() ([]*ModuleDecl, error) {
	var modules []*ModuleDecl
	for !p.atEnd() {
		m, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		if m != nil {
			modules = append(modules, m)
		}
	}
	return modules, nil
}

// --- token cursor helpers ---

func (p *Parser) cur() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: TokEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return Token{Kind: TokEOF}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) atEnd() bool { return p.cur().Kind == TokEOF }

func (p *Parser) advance() Token {
	t := p.cur()
	if !p.atEnd() {
		p.pos++
	}
	return t
}

func (p *Parser) pos1() Position { return Position{Line: p.cur().Line, Column: p.cur().Col} }

func (p *Parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == TokKeyword && t.Value == kw
}

func (p *Parser) isOp(op string) bool {
	t := p.cur()
	return (t.Kind == TokOperator || t.Kind == TokPunct) && t.Value == op
}

func (p *Parser) matchKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) matchOp(op string) bool {
	if p.isOp(op) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expectOp(op string) error {
	if !p.matchOp(op) {
		return parseError(p.pos1(), "expected %q, got %q", op, p.cur().Value)
	}
	return nil
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.matchKeyword(kw) {
		return parseError(p.pos1(), "expected keyword %q, got %q", kw, p.cur().Value)
	}
	return nil
}

func (p *Parser) expectIdent() (string, error) {
	t := p.cur()
	if t.Kind != TokIdent {
		return "", parseError(p.pos1(), "expected identifier, got %q", t.Value)
	}
	p.advance()
	return t.Value, nil
}

// --- top level ---

func (p *Parser) parseTopLevel() (*ModuleDecl, error) {
	pos := p.pos1()
	switch {
	case p.isKeyword("contract"):
		p.advance()
		return p.parseModuleBody(ModuleContract, pos)
	case p.isKeyword("token"):
		p.advance()
		return p.parseModuleBody(ModuleToken, pos)
	case p.isKeyword("script"):
		p.advance()
		return p.parseModuleBody(ModuleScript, pos)
	case p.isKeyword("struct"):
		p.advance()
		return p.parseStructAsModule(pos)
	case p.isKeyword("enum"):
		p.advance()
		return p.parseEnumAsModule(pos)
	default:
		return nil, parseError(pos, "unexpected top-level token %q", p.cur().Value)
	}
}

func (p *Parser) parseStructAsModule(pos Position) (*ModuleDecl, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	sd, err := p.parseStructBody(name, pos)
	if err != nil {
		return nil, err
	}
	return &ModuleDecl{Name: name, Kind: ModuleStructHolder, Pos: pos, Structs: []*StructDeclNode{sd}}, nil
}

func (p *Parser) parseStructBody(name string, pos Position) (*StructDeclNode, error) {
	if err := p.expectOp("{"); err != nil {
		return nil, err
	}
	sd := &StructDeclNode{Name: name, Pos: pos}
	for !p.isOp("}") {
		fname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		ftype, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		sd.Fields = append(sd.Fields, StructFieldNode{Name: fname, TypeStr: ftype})
		p.matchOp(";")
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return sd, nil
}

func (p *Parser) parseEnumAsModule(pos Position) (*ModuleDecl, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	ed, err := p.parseEnumBody(name, pos)
	if err != nil {
		return nil, err
	}
	return &ModuleDecl{Name: name, Kind: ModuleStructHolder, Pos: pos, Enums: []*EnumDeclNode{ed}}, nil
}

func (p *Parser) parseEnumBody(name string, pos Position) (*EnumDeclNode, error) {
	if err := p.expectOp("{"); err != nil {
		return nil, err
	}
	ed := &EnumDeclNode{Name: name, Pos: pos}
	next := int64(0)
	for !p.isOp("}") {
		ename, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		val := next
		if p.matchOp("=") {
			lit := p.cur()
			if lit.Kind != TokInt {
				return nil, parseError(p.pos1(), "expected integer enum value")
			}
			p.advance()
			val, _ = strconv.ParseInt(lit.Value, 10, 64)
		}
		ed.Entries = append(ed.Entries, EnumEntryNode{Name: ename, Value: val})
		next = val + 1
		if !p.matchOp(",") {
			break
		}
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return ed, nil
}

// parseTypeName parses a syntactic type reference: an identifier optionally
// followed by <args> (Decimal<3>, Array<Number>, Map<String,Number>).
// Returns its canonical textual form, resolved to
// a *Type later by elaborate.go.
func (p *Parser) parseTypeName() (string, error) {
	name, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	if !p.isOp("<") {
		return name, nil
	}
	p.advance()
	var args []string
	for {
		arg, err := p.parseTypeArgOrNumber()
		if err != nil {
			return "", err
		}
		args = append(args, arg)
		if !p.matchOp(",") {
			break
		}
	}
	if err := p.expectOp(">"); err != nil {
		return "", err
	}
	return name + "<" + strings.Join(args, ",") + ">", nil
}

func (p *Parser) parseTypeArgOrNumber() (string, error) {
	if p.cur().Kind == TokInt {
		v := p.cur().Value
		p.advance()
		return v, nil
	}
	return p.parseTypeName()
}

func (p *Parser) parseModuleBody(kind ModuleKind, pos Position) (*ModuleDecl, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	m := &ModuleDecl{Name: name, Kind: kind, Pos: pos}
	if err := p.expectOp("{"); err != nil {
		return nil, err
	}
	for !p.isOp("}") {
		if err := p.parseModuleMember(m); err != nil {
			return nil, err
		}
	}
	return m, p.expectOp("}")
}

func (p *Parser) parseModuleMember(m *ModuleDecl) error {
	pos := p.pos1()
	switch {
	case p.matchKeyword("import"):
		name, err := p.expectIdent()
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, name)
		return p.expectOp(";")

	case p.matchKeyword("global"):
		name, err := p.expectIdent()
		if err != nil {
			return err
		}
		if err := p.expectOp(":"); err != nil {
			return err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, &VarDeclNode{Name: name, TypeStr: typ, Pos: pos})
		return p.expectOp(";")

	case p.matchKeyword("const"):
		name, err := p.expectIdent()
		if err != nil {
			return err
		}
		typ := ""
		if p.matchOp(":") {
			typ, err = p.parseTypeName()
			if err != nil {
				return err
			}
		}
		if err := p.expectOp("="); err != nil {
			return err
		}
		val, err := p.parseExpression()
		if err != nil {
			return err
		}
		if err := p.expectOp(";"); err != nil {
			return err
		}
		m.Consts = append(m.Consts, &ConstDeclNode{Name: name, TypeStr: typ, Value: val, Pos: pos})
		return nil

	case p.matchKeyword("struct"):
		name, err := p.expectIdent()
		if err != nil {
			return err
		}
		sd, err := p.parseStructBody(name, pos)
		if err != nil {
			return err
		}
		m.Structs = append(m.Structs, sd)
		return nil

	case p.matchKeyword("enum"):
		name, err := p.expectIdent()
		if err != nil {
			return err
		}
		ed, err := p.parseEnumBody(name, pos)
		if err != nil {
			return err
		}
		m.Enums = append(m.Enums, ed)
		return nil

	case p.matchKeyword("property"):
		return p.parseProperty(m, pos)

	case p.matchKeyword("constructor"):
		return p.parseConstructor(m, pos)

	case p.matchKeyword("trigger"):
		return p.parseTriggerOrTask(m, pos, MethodTrigger)

	case p.matchKeyword("task"):
		return p.parseTriggerOrTask(m, pos, MethodTask)

	case p.isKeyword("public") || p.isKeyword("private") || p.isKeyword("internal"):
		return p.parseMethod(m, pos)

	case p.matchKeyword("nft"):
		sub, err := p.parseNFT(pos)
		if err != nil {
			return err
		}
		m.SubModules = append(m.SubModules, sub)
		return nil

	default:
		return parseError(pos, "unexpected token in module body: %q", p.cur().Value)
	}
}

func (p *Parser) parseVisibility() Visibility {
	switch {
	case p.matchKeyword("public"):
		return VisPublic
	case p.matchKeyword("private"):
		return VisPrivate
	case p.matchKeyword("internal"):
		return VisInternal
	default:
		return VisInternal
	}
}

func (p *Parser) parseParams() ([]Param, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var params []Param
	for !p.isOp(")") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		params = append(params, Param{Name: name, TypeStr: typ})
		if !p.matchOp(",") {
			break
		}
	}
	return params, p.expectOp(")")
}

func (p *Parser) parseReturnClause() (string, bool, error) {
	if !p.matchOp(":") {
		return "", false, nil
	}
	typ, err := p.parseTypeName()
	if err != nil {
		return "", false, err
	}
	variadic := p.matchOp("*")
	return typ, variadic, nil
}

func (p *Parser) parseMethod(m *ModuleDecl, pos Position) error {
	vis := p.parseVisibility()
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	params, err := p.parseParams()
	if err != nil {
		return err
	}
	retStr, variadic, err := p.parseReturnClause()
	if err != nil {
		return err
	}
	body, err := p.parseBlock()
	if err != nil {
		return err
	}
	m.Methods = append(m.Methods, &MethodDecl{
		Name: name, Kind: MethodPlain, Visibility: vis,
		Params: params, ReturnStr: retStr, Variadic: variadic, Body: body, Pos: pos,
	})
	return nil
}

func (p *Parser) parseConstructor(m *ModuleDecl, pos Position) error {
	params, err := p.parseParams()
	if err != nil {
		return err
	}
	body, err := p.parseBlock()
	if err != nil {
		return err
	}
	m.Methods = append(m.Methods, &MethodDecl{
		Name: "constructor", Kind: MethodConstructor, Visibility: VisPublic,
		Params: params, Body: body, Pos: pos,
	})
	return nil
}

func (p *Parser) parseTriggerOrTask(m *ModuleDecl, pos Position, kind MethodKind) error {
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	params, err := p.parseParams()
	if err != nil {
		return err
	}
	body, err := p.parseBlock()
	if err != nil {
		return err
	}
	m.Methods = append(m.Methods, &MethodDecl{
		Name: name, Kind: kind, Visibility: VisPublic, Params: params, Body: body, Pos: pos,
	})
	return nil
}

func (p *Parser) parseProperty(m *ModuleDecl, pos Position) error {
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectOp(":"); err != nil {
		return err
	}
	typ, err := p.parseTypeName()
	if err != nil {
		return err
	}
	var body []*Stmt
	if p.matchOp("=") {
		expr, err := p.parseExpression()
		if err != nil {
			return err
		}
		if err := p.expectOp(";"); err != nil {
			return err
		}
		body = []*Stmt{{Kind: StmtReturn, Pos: pos, RetValue: expr}}
	} else {
		body, err = p.parseBlock()
		if err != nil {
			return err
		}
	}
	m.Methods = append(m.Methods, &MethodDecl{
		Name: name, Kind: MethodProperty, Visibility: VisPublic,
		ReturnStr: typ, Body: body, Pos: pos,
	})
	return nil
}

func (p *Parser) parseNFT(pos Position) (*ModuleDecl, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	rom, ram := "", ""
	if p.matchOp("<") {
		rom, err = p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(","); err != nil {
			return nil, err
		}
		ram, err = p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(">"); err != nil {
			return nil, err
		}
	}
	sub, err := p.parseModuleBody(ModuleNFT, pos)
	if err != nil {
		return nil, err
	}
	sub.Name = name
	sub.RomType = rom
	sub.RamType = ram
	return sub, nil
}

// --- statements ---

func (p *Parser) parseBlock() ([]*Stmt, error) {
	if err := p.expectOp("{"); err != nil {
		return nil, err
	}
	var stmts []*Stmt
	for !p.isOp("}") {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, p.expectOp("}")
}

func (p *Parser) parseStatement() (*Stmt, error) {
	pos := p.pos1()
	switch {
	case p.matchKeyword("local"):
		return p.parseLocal(pos)
	case p.isKeyword("if"):
		return p.parseIf()
	case p.matchKeyword("switch"):
		return p.parseSwitch(pos)
	case p.matchKeyword("while"):
		return p.parseWhile(pos)
	case p.matchKeyword("do"):
		return p.parseDoWhile(pos)
	case p.matchKeyword("for"):
		return p.parseFor(pos)
	case p.matchKeyword("break"):
		if err := p.expectOp(";"); err != nil {
			return nil, err
		}
		return &Stmt{Kind: StmtBreak, Pos: pos}, nil
	case p.matchKeyword("continue"):
		if err := p.expectOp(";"); err != nil {
			return nil, err
		}
		return &Stmt{Kind: StmtContinue, Pos: pos}, nil
	case p.matchKeyword("return"):
		return p.parseReturn(pos)
	case p.matchKeyword("throw"):
		return p.parseThrow(pos)
	default:
		return p.parseExprOrAssignStatement(pos)
	}
}

func (p *Parser) parseLocal(pos Position) (*Stmt, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	declTy := ""
	if p.matchOp(":") {
		declTy, err = p.parseTypeName()
		if err != nil {
			return nil, err
		}
	}
	var init *Expr
	if p.matchOp("=") {
		init, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectOp(";"); err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtLocal, Pos: pos, Name: name, DeclaredTy: declTy, Init: init}, nil
}

func (p *Parser) parseIf() (*Stmt, error) {
	pos := p.pos1()
	p.advance() // "if"
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	thenBlock, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseBlock []*Stmt
	if p.matchKeyword("else") {
		if p.isKeyword("if") {
			elseIf, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			elseBlock = []*Stmt{elseIf}
		} else {
			elseBlock, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	return &Stmt{Kind: StmtIf, Pos: pos, Cond: cond, Then: thenBlock, Else: elseBlock}, nil
}

func (p *Parser) parseSwitch(pos Position) (*Stmt, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	scrut, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	if err := p.expectOp("{"); err != nil {
		return nil, err
	}
	stmt := &Stmt{Kind: StmtSwitch, Pos: pos, Scrutinee: scrut}
	for !p.isOp("}") {
		if p.matchKeyword("case") {
			var labels []*Expr
			for {
				lbl, err := p.parsePrimary()
				if err != nil {
					return nil, err
				}
				labels = append(labels, lbl)
				if !p.matchOp(",") {
					break
				}
			}
			if err := p.expectOp(":"); err != nil {
				return nil, err
			}
			body, err := p.parseCaseBody()
			if err != nil {
				return nil, err
			}
			stmt.Cases = append(stmt.Cases, SwitchCase{Labels: labels, Body: body})
		} else if p.matchKeyword("default") {
			if err := p.expectOp(":"); err != nil {
				return nil, err
			}
			body, err := p.parseCaseBody()
			if err != nil {
				return nil, err
			}
			stmt.Default = body
		} else {
			return nil, parseError(p.pos1(), "expected 'case' or 'default' in switch body, got %q", p.cur().Value)
		}
	}
	return stmt, p.expectOp("}")
}

func (p *Parser) parseCaseBody() ([]*Stmt, error) {
	var stmts []*Stmt
	for !p.isKeyword("case") && !p.isKeyword("default") && !p.isOp("}") {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (p *Parser) parseWhile(pos Position) (*Stmt, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtWhile, Pos: pos, Cond: cond, Body: body}, nil
}

func (p *Parser) parseDoWhile(pos Position) (*Stmt, error) {
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("while"); err != nil {
		return nil, err
	}
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	if err := p.expectOp(";"); err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtDoWhile, Pos: pos, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor(pos Position) (*Stmt, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var initStmt *Stmt
	if !p.isOp(";") {
		// parseStatement consumes the trailing ';' itself (local decl or
		// expression/assignment statement), matching the grammar's
		// `for(init; cond; post)` where init already ends in ';'.
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		initStmt = s
	} else {
		if err := p.expectOp(";"); err != nil {
			return nil, err
		}
	}
	var cond *Expr
	if !p.isOp(";") {
		c, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		cond = c
	}
	if err := p.expectOp(";"); err != nil {
		return nil, err
	}
	var post *Stmt
	if !p.isOp(")") {
		target, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.isOp("=") || isCompoundOp(p.cur()) {
			post, err = p.parseAssignTail(target, pos)
			if err != nil {
				return nil, err
			}
		} else {
			post = &Stmt{Kind: StmtExpr, Pos: pos, Expression: target}
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtFor, Pos: pos, ForInit: initStmt, ForCond: cond, ForPost: post, Body: body}, nil
}

func (p *Parser) parseReturn(pos Position) (*Stmt, error) {
	if p.matchOp(";") {
		return &Stmt{Kind: StmtReturn, Pos: pos}, nil
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(";"); err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtReturn, Pos: pos, RetValue: expr}, nil
}

func (p *Parser) parseThrow(pos Position) (*Stmt, error) {
	t := p.cur()
	if t.Kind != TokString {
		return nil, parseError(pos, "throw requires a string literal message")
	}
	p.advance()
	if err := p.expectOp(";"); err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtThrow, Pos: pos, ThrowMsg: t.Value}, nil
}

// compound assignment operators lower to a plain binary-op-then-assign,
// e.g. `x += 1` becomes the same AST as `x = x + 1`.
var compoundOps = map[string]string{
	"+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%",
}

func (p *Parser) parseExprOrAssignStatement(pos Position) (*Stmt, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.isOp(":=") {
		return nil, parseError(p.pos1(), "the ':=' operator is deprecated; use '=' with an explicit 'local' declaration")
	}
	if p.isOp("=") || isCompoundOp(p.cur()) {
		stmt, err := p.parseAssignTail(expr, pos)
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(";"); err != nil {
			return nil, err
		}
		return stmt, nil
	}
	if err := p.expectOp(";"); err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtExpr, Pos: pos, Expression: expr}, nil
}

func isCompoundOp(t Token) bool {
	if t.Kind != TokOperator {
		return false
	}
	_, ok := compoundOps[t.Value]
	return ok
}

// parseAssignTail consumes '=' or a compound-assign operator and the RHS,
// used both by statement parsing and by the `for(...; ...; post)` clause.
func (p *Parser) parseAssignTail(target *Expr, pos Position) (*Stmt, error) {
	if p.isOp(":=") {
		return nil, parseError(p.pos1(), "the ':=' operator is deprecated; use '=' with an explicit 'local' declaration")
	}
	if base, ok := compoundOps[p.cur().Value]; ok && p.cur().Kind == TokOperator {
		p.advance()
		rhs, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		combined := &Expr{Kind: ExprBinary, Pos: pos, Op: base, Left: target, Right: rhs}
		return &Stmt{Kind: StmtAssign, Pos: pos, Target: target, Value: combined}, nil
	}
	if err := p.expectOp("="); err != nil {
		return nil, err
	}
	rhs, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtAssign, Pos: pos, Target: target, Value: rhs}, nil
}

// --- expressions, precedence low to high ---

func (p *Parser) parseExpression() (*Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") {
		pos := p.pos1()
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: ExprBinary, Pos: pos, Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (*Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") {
		pos := p.pos1()
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: ExprBinary, Pos: pos, Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseEquality() (*Expr, error) {
	return p.parseBinaryLevel(p.parseRelational, "==", "!=")
}

func (p *Parser) parseRelational() (*Expr, error) {
	return p.parseBinaryLevel(p.parseShift, "<", "<=", ">", ">=")
}

func (p *Parser) parseShift() (*Expr, error) {
	return p.parseBinaryLevel(p.parseAdditive, "<<", ">>")
}

func (p *Parser) parseAdditive() (*Expr, error) {
	return p.parseBinaryLevel(p.parseMultiplicative, "+", "-")
}

func (p *Parser) parseMultiplicative() (*Expr, error) {
	return p.parseBinaryLevel(p.parseUnary, "*", "/", "%")
}

func (p *Parser) parseBinaryLevel(next func() (*Expr, error), ops ...string) (*Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		matched := ""
		for _, op := range ops {
			if p.isOp(op) {
				matched = op
				break
			}
		}
		if matched == "" {
			return left, nil
		}
		pos := p.pos1()
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: ExprBinary, Pos: pos, Op: matched, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (*Expr, error) {
	if p.isOp("!") || p.isOp("-") {
		pos := p.pos1()
		op := p.cur().Value
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprUnary, Pos: pos, Op: op, Right: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (*Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.pos1()
		switch {
		case p.matchOp("."):
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if p.isOp("(") {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				expr = p.buildQualifiedCall(expr, name, args, pos)
			} else {
				expr = &Expr{Kind: ExprField, Pos: pos, Base: expr, Name: name}
			}
		case p.matchOp("["):
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			expr = &Expr{Kind: ExprIndex, Pos: pos, Base: expr, Index: idx}
		default:
			return expr, nil
		}
	}
}

// buildQualifiedCall records this.method(...), Lib.method(...), and
// value.method(...) forms identically, as a call against a receiver
// expression; elaborate.go resolves whether that receiver names an
// imported library or is an ordinary value, since only scope resolution
// can tell the two apart (a bare identifier receiver could be either).
func (p *Parser) buildQualifiedCall(receiver *Expr, method string, args []*Expr, pos Position) *Expr {
	return &Expr{Kind: ExprCall, Pos: pos, Receiver: receiver, Method: method, Args: args}
}

func (p *Parser) parseArgs() ([]*Expr, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var args []*Expr
	for !p.isOp(")") {
		a, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.matchOp(",") {
			break
		}
	}
	return args, p.expectOp(")")
}

func (p *Parser) parsePrimary() (*Expr, error) {
	pos := p.pos1()
	t := p.cur()

	switch t.Kind {
	case TokInt:
		p.advance()
		n, _ := strconv.ParseInt(t.Value, 10, 64)
		return &Expr{Kind: ExprLiteral, Pos: pos, LitType: p.in.Number(), LitValue: Value{Type: p.in.Number(), Number: n}}, nil

	case TokDecimal:
		p.advance()
		frac := len(t.Value) - strings.IndexByte(t.Value, '.') - 1
		scaled, _ := strconv.ParseFloat(t.Value, 64)
		var mul int64 = 1
		for i := 0; i < frac; i++ {
			mul *= 10
		}
		n := int64(scaled*float64(mul) + 0.5)
		return &Expr{Kind: ExprLiteral, Pos: pos, LitType: p.in.Decimal(uint8(frac)),
			LitValue: Value{Type: p.in.Decimal(uint8(frac)), Number: n, Str: t.Value, FracDigits: frac}}, nil

	case TokString:
		p.advance()
		return &Expr{Kind: ExprLiteral, Pos: pos, LitType: p.in.String(), LitValue: Value{Type: p.in.String(), Str: t.Value}}, nil

	case TokChar:
		p.advance()
		return &Expr{Kind: ExprLiteral, Pos: pos, LitType: p.in.Number(), LitValue: Value{Type: p.in.Number(), Number: int64(t.Value[0])}}, nil

	case TokAddress:
		p.advance()
		return &Expr{Kind: ExprLiteral, Pos: pos, LitType: p.in.Address(), LitValue: Value{Type: p.in.Address(), Str: "@" + t.Value}}, nil

	case TokHex:
		p.advance()
		n, _ := strconv.ParseInt(strings.TrimPrefix(t.Value, "0x"), 16, 64)
		return &Expr{Kind: ExprLiteral, Pos: pos, LitType: p.in.Number(), LitValue: Value{Type: p.in.Number(), Number: n}}, nil

	case TokMacro:
		p.advance()
		var args []*Expr
		if p.isOp("(") {
			var err error
			args, err = p.parseArgs()
			if err != nil {
				return nil, err
			}
		}
		return &Expr{Kind: ExprMacro, Pos: pos, MacroName: t.Value, MacroArgs: args}, nil

	case TokKeyword:
		switch t.Value {
		case "true":
			p.advance()
			return &Expr{Kind: ExprLiteral, Pos: pos, LitType: p.in.Bool(), LitValue: Value{Type: p.in.Bool(), Number: 1}}, nil
		case "false":
			p.advance()
			return &Expr{Kind: ExprLiteral, Pos: pos, LitType: p.in.Bool(), LitValue: Value{Type: p.in.Bool(), Number: 0}}, nil
		case "this":
			p.advance()
			return &Expr{Kind: ExprThis, Pos: pos}, nil
		}
		return nil, parseError(pos, "unexpected keyword %q in expression", t.Value)

	case TokIdent:
		name := t.Value
		p.advance()
		if p.isOp("(") {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &Expr{Kind: ExprConstruct, Pos: pos, TypeName: name, TypeArgs: args}, nil
		}
		return &Expr{Kind: ExprIdent, Pos: pos, Name: name}, nil

	case TokPunct:
		if t.Value == "(" {
			p.advance()
			inner, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
		if t.Value == "{" {
			return p.parseArrayLit(pos)
		}
	}

	return nil, parseError(pos, "unexpected token %q in expression", t.Value)
}

// parseArrayLit parses the `{a,b,c}` array literal form. Braces are
// unambiguous here: this is only reached from primary-expression position,
// never where a statement block is expected.
func (p *Parser) parseArrayLit(pos Position) (*Expr, error) {
	p.advance() // "{"
	var elems []*Expr
	for !p.isOp("}") {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if !p.matchOp(",") {
			break
		}
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprArrayLit, Pos: pos, Elems: elems}, nil
}
