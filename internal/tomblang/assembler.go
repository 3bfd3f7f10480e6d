package tomblang

import (
	"strconv"
	"strings"
)

// Assembler performs a two-pass lowering of a whole module's assembly text
// (every method's lines plus every used builtin snippet's lines,
// concatenated in emission order) into one binary instruction stream: a
// scan pass records label byte offsets against a single running offset, so
// a label defined in one method's lines is already an absolute
// script-start-relative offset by the time any other method's CALL/JMP
// operand references it; an emit pass then packs every operand (reg: 1
// byte, small int: varint, bytes/strings: length-prefixed, labels: u16
// absolute offset).
type Assembler struct {
	lines  []string
	labels map[string]uint16
}

func NewAssembler(lines []string) *Assembler {
	return &Assembler{lines: lines, labels: make(map[string]uint16)}
}

// AssembledScript is a whole module's packed bytes. Every label operand
// (jumps within a method, CALLs across methods and to builtin snippets) is
// already resolved to an absolute offset from the start of Bytes, since
// scan sees every method and snippet's labels in one pass.
type AssembledScript struct {
	Bytes []byte
}

// Assemble returns the packed instruction stream, or a fatal error on an
// unknown mnemonic or unresolved label.
func (a *Assembler) Assemble() (*AssembledScript, error) {
	if err := a.scan(); err != nil {
		return nil, err
	}
	return a.emit()
}

// EntryOffset returns the absolute byte offset of a label scanned during
// Assemble, so lowerModule can look up where each of its methods landed in
// the concatenated script for the ABI table.
func (a *Assembler) EntryOffset(label string) (uint16, bool) {
	off, ok := a.labels[label]
	return off, ok
}

// scan computes each instruction's encoded length without resolving label
// targets (jump operands are a fixed-size u16 regardless of where the
// label lands), so label offsets can be known before the emit pass.
func (a *Assembler) scan() error {
	offset := uint16(0)
	for _, line := range a.lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasSuffix(line, ":") {
			label := strings.TrimSuffix(line, ":")
			if _, exists := a.labels[label]; exists {
				return newError(PhaseAssemble, Position{}, "duplicate label %q", label)
			}
			a.labels[label] = offset
			continue
		}
		mnemonic, operands := splitInstruction(line)
		op, ok := opcodeTable[mnemonic]
		if !ok {
			return newError(PhaseAssemble, Position{}, "unknown mnemonic %q", mnemonic)
		}
		_ = op
		n, err := encodedLength(mnemonic, operands)
		if err != nil {
			return err
		}
		offset += uint16(1 + n)
	}
	return nil
}

func (a *Assembler) emit() (*AssembledScript, error) {
	result := &AssembledScript{}
	for _, line := range a.lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasSuffix(line, ":") {
			continue
		}
		mnemonic, operands := splitInstruction(line)
		op := opcodeTable[mnemonic]
		result.Bytes = append(result.Bytes, op)
		encoded, err := a.encodeOperands(mnemonic, operands)
		if err != nil {
			return nil, err
		}
		result.Bytes = append(result.Bytes, encoded...)
	}
	return result, nil
}

// splitInstruction tokenizes one assembly line, keeping double-quoted
// string operands intact (they may contain spaces).
func splitInstruction(line string) (string, []string) {
	tokens := tokenizeAsmLine(line)
	if len(tokens) == 0 {
		return "", nil
	}
	return tokens[0], tokens[1:]
}

func tokenizeAsmLine(line string) []string {
	var toks []string
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i >= len(line) {
			break
		}
		if line[i] == '"' {
			j := i + 1
			for j < len(line) && line[j] != '"' {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j < len(line) {
				j++ // include closing quote
			}
			toks = append(toks, line[i:j])
			i = j
			continue
		}
		j := i
		for j < len(line) && line[j] != ' ' {
			j++
		}
		toks = append(toks, line[i:j])
		i = j
	}
	return toks
}

// operandKind sniffs the shape of one assembly operand token: it's a
// self-describing textual encoding, so no per-mnemonic operand schema is
// needed.
type operandKind int

const (
	operandReg operandKind = iota
	operandString
	operandInt
	operandLabel
)

func sniffOperand(tok string) operandKind {
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		return operandString
	}
	if len(tok) >= 2 && tok[0] == 'r' && isAllDigits(tok[1:]) {
		return operandReg
	}
	if len(tok) > 0 && (isAllDigits(tok) || (tok[0] == '-' && isAllDigits(tok[1:]))) {
		return operandInt
	}
	return operandLabel
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func encodedLength(mnemonic string, operands []string) (int, error) {
	n := 0
	for _, tok := range operands {
		switch sniffOperand(tok) {
		case operandReg:
			n += 1
		case operandLabel:
			n += 2 // u16 absolute offset
		case operandInt:
			v, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return 0, newError(PhaseAssemble, Position{}, "invalid integer operand %q", tok)
			}
			n += len(encodeZigzagVarint(v))
		case operandString:
			s, err := unquoteAsm(tok)
			if err != nil {
				return 0, err
			}
			n += len(encodeUvarint(uint64(len(s)))) + len(s)
		}
	}
	return n, nil
}

// encodeOperands packs operands, resolving any label operand against the
// offsets scan already recorded across the whole concatenated script.
func (a *Assembler) encodeOperands(mnemonic string, operands []string) ([]byte, error) {
	var out []byte
	for _, tok := range operands {
		switch sniffOperand(tok) {
		case operandReg:
			n, err := strconv.Atoi(tok[1:])
			if err != nil || n < 0 || n > 255 {
				return nil, newError(PhaseAssemble, Position{}, "invalid register operand %q", tok)
			}
			out = append(out, byte(n))
		case operandInt:
			v, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return nil, newError(PhaseAssemble, Position{}, "invalid integer operand %q", tok)
			}
			out = append(out, encodeZigzagVarint(v)...)
		case operandString:
			s, err := unquoteAsm(tok)
			if err != nil {
				return nil, err
			}
			out = append(out, encodeUvarint(uint64(len(s)))...)
			out = append(out, []byte(s)...)
		case operandLabel:
			offset, ok := a.labels[tok]
			if !ok {
				return nil, newError(PhaseAssemble, Position{}, "unknown label %q", tok)
			}
			out = append(out, byte(offset>>8), byte(offset&0xFF))
		}
	}
	return out, nil
}

func unquoteAsm(tok string) (string, error) {
	s, err := strconv.Unquote(tok)
	if err != nil {
		return "", newError(PhaseAssemble, Position{}, "invalid string operand %s", tok)
	}
	return s, nil
}

// encodeUvarint is standard 7-bit LEB128 for non-negative lengths/counts.
func encodeUvarint(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

// encodeZigzagVarint LEB128-encodes a signed integer via zigzag mapping so
// small negative integer operands stay compact.
func encodeZigzagVarint(v int64) []byte {
	zz := uint64((v << 1) ^ (v >> 63))
	return encodeUvarint(zz)
}
