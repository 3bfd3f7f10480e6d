package tomblang

import (
	"fmt"
	"strings"
)

// TypeKind tags the variant of a Type. Types are otherwise plain data;
// dispatch on Kind rather than growing an interface hierarchy.
type TypeKind int

const (
	KindUnknown TypeKind = iota
	KindNone
	KindNumber
	KindBool
	KindString
	KindTimestamp
	KindAddress
	KindHash
	KindBytes
	KindDecimal
	KindEnum
	KindStruct
	KindArray
	KindMap
	KindStorageList
	KindStorageMap
	KindModule
	KindMethod
	KindAny
)

func (k TypeKind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindNone:
		return "none"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindAddress:
		return "address"
	case KindHash:
		return "hash"
	case KindBytes:
		return "bytes"
	case KindDecimal:
		return "decimal"
	case KindEnum:
		return "enum"
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindStorageList:
		return "storagelist"
	case KindStorageMap:
		return "storagemap"
	case KindModule:
		return "module"
	case KindMethod:
		return "method"
	case KindAny:
		return "any"
	default:
		return "?"
	}
}

// MethodSignature describes a Method-typed value, used for Call.method<T>
// style dynamic dispatch and for the Method value kind.
type MethodSignature struct {
	Params   []*Type
	Return   *Type
	Variadic bool
}

// Type is an interned, tagged value type. Two equal type expressions share
// identity: compare with ==, never structurally, once interned.
type Type struct {
	Kind   TypeKind
	Name   string // Enum(name), Struct(name), Module(name)
	Places uint8  // Decimal(places)
	Elem   *Type  // Array(elem), StorageList(elem)
	Key    *Type  // Map(key,val), StorageMap(key,val)
	Val    *Type  // Map(key,val), StorageMap(key,val)
	Sig    *MethodSignature
}

// key returns a canonical string used to intern the type.
func (t *Type) key() string {
	var b strings.Builder
	writeTypeKey(&b, t)
	return b.String()
}

func writeTypeKey(b *strings.Builder, t *Type) {
	if t == nil {
		b.WriteString("<nil>")
		return
	}
	switch t.Kind {
	case KindDecimal:
		fmt.Fprintf(b, "decimal<%d>", t.Places)
	case KindEnum:
		fmt.Fprintf(b, "enum:%s", t.Name)
	case KindStruct:
		fmt.Fprintf(b, "struct:%s", t.Name)
	case KindModule:
		fmt.Fprintf(b, "module:%s", t.Name)
	case KindArray:
		b.WriteString("array<")
		writeTypeKey(b, t.Elem)
		b.WriteString(">")
	case KindStorageList:
		b.WriteString("storagelist<")
		writeTypeKey(b, t.Elem)
		b.WriteString(">")
	case KindMap:
		b.WriteString("map<")
		writeTypeKey(b, t.Key)
		b.WriteString(",")
		writeTypeKey(b, t.Val)
		b.WriteString(">")
	case KindStorageMap:
		b.WriteString("storagemap<")
		writeTypeKey(b, t.Key)
		b.WriteString(",")
		writeTypeKey(b, t.Val)
		b.WriteString(">")
	case KindMethod:
		b.WriteString("method(")
		if t.Sig != nil {
			for i, p := range t.Sig.Params {
				if i > 0 {
					b.WriteString(",")
				}
				writeTypeKey(b, p)
			}
			b.WriteString(")->")
			writeTypeKey(b, t.Sig.Return)
			if t.Sig.Variadic {
				b.WriteString("*")
			}
		}
		b.WriteString(")")
	default:
		b.WriteString(t.Kind.String())
	}
}

func (t *Type) String() string { return t.key() }

// Interner deduplicates Type values so that identical type expressions
// share pointer identity. One Interner lives on each CompileContext; it is
// never a package-level global.
type Interner struct {
	table map[string]*Type
}

func NewInterner() *Interner {
	return &Interner{table: make(map[string]*Type)}
}

func (in *Interner) intern(t *Type) *Type {
	k := t.key()
	if existing, ok := in.table[k]; ok {
		return existing
	}
	in.table[k] = t
	return t
}

func (in *Interner) Unknown() *Type   { return in.intern(&Type{Kind: KindUnknown}) }
func (in *Interner) None() *Type      { return in.intern(&Type{Kind: KindNone}) }
func (in *Interner) Number() *Type    { return in.intern(&Type{Kind: KindNumber}) }
func (in *Interner) Bool() *Type      { return in.intern(&Type{Kind: KindBool}) }
func (in *Interner) String() *Type    { return in.intern(&Type{Kind: KindString}) }
func (in *Interner) Timestamp() *Type { return in.intern(&Type{Kind: KindTimestamp}) }
func (in *Interner) Address() *Type   { return in.intern(&Type{Kind: KindAddress}) }
func (in *Interner) Hash() *Type      { return in.intern(&Type{Kind: KindHash}) }
func (in *Interner) Bytes() *Type     { return in.intern(&Type{Kind: KindBytes}) }
func (in *Interner) Any() *Type       { return in.intern(&Type{Kind: KindAny}) }

func (in *Interner) Decimal(places uint8) *Type {
	return in.intern(&Type{Kind: KindDecimal, Places: places})
}

func (in *Interner) Enum(name string) *Type {
	return in.intern(&Type{Kind: KindEnum, Name: name})
}

func (in *Interner) Struct(name string) *Type {
	return in.intern(&Type{Kind: KindStruct, Name: name})
}

func (in *Interner) Module(name string) *Type {
	return in.intern(&Type{Kind: KindModule, Name: name})
}

func (in *Interner) Array(elem *Type) *Type {
	return in.intern(&Type{Kind: KindArray, Elem: elem})
}

func (in *Interner) Map(key, val *Type) *Type {
	return in.intern(&Type{Kind: KindMap, Key: key, Val: val})
}

func (in *Interner) StorageList(elem *Type) *Type {
	return in.intern(&Type{Kind: KindStorageList, Elem: elem})
}

func (in *Interner) StorageMap(key, val *Type) *Type {
	return in.intern(&Type{Kind: KindStorageMap, Key: key, Val: val})
}

func (in *Interner) Method(sig *MethodSignature) *Type {
	return in.intern(&Type{Kind: KindMethod, Sig: sig})
}

// IsNumeric reports whether t is Number or any Decimal precision.
func (t *Type) IsNumeric() bool {
	return t.Kind == KindNumber || t.Kind == KindDecimal
}

// SameNumeric reports whether a and b may participate together in an
// arithmetic operator: both Number, or both Decimal with equal precision.
func SameNumeric(a, b *Type) bool {
	if a.Kind == KindNumber && b.Kind == KindNumber {
		return true
	}
	if a.Kind == KindDecimal && b.Kind == KindDecimal {
		return a.Places == b.Places
	}
	return false
}

// ConvertibleTo implements the implicit-conversion table.
func ConvertibleTo(from, to *Type) bool {
	if from == to {
		return true
	}
	if from.Kind == KindNumber && to.Kind == KindTimestamp {
		return true
	}
	if from.Kind == KindTimestamp && to.Kind == KindNumber {
		return true
	}
	if to.Kind == KindAny {
		return true
	}
	return false
}
