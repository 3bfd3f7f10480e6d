package tomblang

// Position is a 1-based source position, carried by tokens and AST nodes so
// diagnostics can report {line, column}. The code generator does not
// annotate emitted assembly with source lines.
type Position struct {
	Line   int
	Column int
}

// StorageClass distinguishes where a VarDecl's value lives at runtime.
type StorageClass int

const (
	StorageGlobal StorageClass = iota
	StorageLocal
	StorageArgument
)

// Visibility is a MethodDecl's access level.
type Visibility int

const (
	VisPublic Visibility = iota
	VisPrivate
	VisInternal
)

// MethodKind distinguishes the flavors of callable declared inside a module.
type MethodKind int

const (
	MethodPlain MethodKind = iota
	MethodConstructor
	MethodTask
	MethodTrigger
	MethodProperty
)

// RegID names a register in the fixed-size VM register bank. -1 means
// "unassigned", used for locals/arguments before code generation binds
// them to a concrete register.
type RegID int

const NoRegister RegID = -1

// Decl is the common shape of every named thing that can live in a Scope:
// const, var, struct, enum, method, library import, module. A closed sum,
// dispatched on Kind rather than via a type-switch tower spread across the
// package.
type DeclKind int

const (
	DeclConst DeclKind = iota
	DeclVar
	DeclStruct
	DeclEnum
	DeclMethod
	DeclLibrary
	DeclModule
)

type Decl struct {
	Kind DeclKind
	Name string
	Pos  Position

	// DeclConst
	ConstType  *Type
	ConstValue Value

	// DeclVar
	VarType    *Type
	Storage    StorageClass
	Register   RegID // valid only for Local/Argument, after regalloc

	// DeclStruct
	Fields []StructField

	// DeclEnum
	Entries []EnumEntry

	// DeclMethod
	Method *MethodDecl

	// DeclLibrary
	Library *Library

	// DeclModule
	Module *ModuleDecl
}

type StructField struct {
	Name string
	Type *Type
}

type EnumEntry struct {
	Name  string
	Value int64
}

// Value is a compile-time literal value, tagged by the Type it was
// produced with. Only literal-ish values are ever folded; there is no
// constant folding beyond literal concatenation.
type Value struct {
	Type       *Type
	Number     int64  // Number, Decimal (scaled by 10^Places), Bool(0/1), Timestamp
	Str        string // String, Address, Hash, Bytes (hex/raw as parsed)
	FracDigits int    // number of fractional digits in a decimal literal's source text
}

// Scope is one node of the lexical scope tree rooted at a module's top
// scope; every block (method body, if/while/for body, switch case) opens a
// child. Modeled as a tree with an explicit parent pointer rather than a
// cyclic ownership graph: a Scope points to its parent and holds no
// references to its children.
type Scope struct {
	Parent *Scope
	Level  int
	Decls  map[string]*Decl
	Order  []string // names in declaration order

	// Live is the set of registers considered live while this scope is
	// open; used only for diagnostics/assembly comments, never for
	// allocation logic itself (regalloc.go owns lifetime tracking).
	Live map[RegID]bool
}

func NewScope(parent *Scope) *Scope {
	level := 0
	if parent != nil {
		level = parent.Level + 1
	}
	return &Scope{
		Parent: parent,
		Level:  level,
		Decls:  make(map[string]*Decl),
		Live:   make(map[RegID]bool),
	}
}

// Declare adds d to the scope. Returns false if the name already exists in
// THIS scope (shadowing an outer scope is allowed; redeclaring within the
// same scope is not, except that duplicate method names are caught
// specifically by the elaborator with the "duplicate" diagnostic).
func (s *Scope) Declare(d *Decl) bool {
	if _, exists := s.Decls[d.Name]; exists {
		return false
	}
	s.Decls[d.Name] = d
	s.Order = append(s.Order, d.Name)
	return true
}

// Resolve walks outward from s to find the nearest enclosing declaration of
// name, implementing lexical name resolution.
func (s *Scope) Resolve(name string) (*Decl, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if d, ok := cur.Decls[name]; ok {
			return d, true
		}
	}
	return nil, false
}

// ResolveLocal looks up name only in this scope, without walking parents.
func (s *Scope) ResolveLocal(name string) (*Decl, bool) {
	d, ok := s.Decls[name]
	return d, ok
}
