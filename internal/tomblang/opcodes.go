package tomblang

// opcodeTable assigns a stable byte to every mnemonic codegen.go emits.
// The real numbering is owned by the VM; this table is the compiler's
// fixed, internally-consistent stand-in, exercised end-to-end by the
// assembler and its tests.
var opcodeTable = map[string]byte{
	"ARG":      0x01,
	"PUSHI":    0x02,
	"PUSHS":    0x03,
	"PUSHA":    0x04,
	"ZERO":     0x05,
	"COPY":     0x06,
	"SLOAD":    0x07,
	"SSTORE":   0x08,
	"GETFIELD": 0x09,
	"SETFIELD": 0x0A,
	"GETINDEX": 0x0B,
	"SETINDEX": 0x0C,
	"NEWSTRUCT": 0x0D,
	"NEWARRAY": 0x0E,
	"THIS":     0x0F,
	"NOT":      0x10,
	"NEG":      0x11,
	"ADD":      0x12,
	"SUB":      0x13,
	"MUL":      0x14,
	"DIV":      0x15,
	"MOD":      0x16,
	"EQUAL":    0x17,
	"NEQ":      0x18,
	"LT":       0x19,
	"LE":       0x1A,
	"GT":       0x1B,
	"GE":       0x1C,
	"AND":      0x1D,
	"OR":       0x1E,
	"SHL":      0x1F,
	"SHR":      0x20,
	"CAST":     0x21,
	"JMPNOT":   0x22,
	"JMPIF":    0x23,
	"JMP":      0x24,
	"RET":      0x25,
	"PUSH":     0x26,
	"THROW":    0x27,
	"PUSHARG":  0x28,
	"CALL":     0x29,
	"EXTCALL":  0x2A,
	"CCALL":    0x2B,
	"BUILTIN":  0x2C,
	"CTX":      0x2D,
	"SWITCH":   0x2E,
}
