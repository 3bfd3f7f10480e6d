package tomblang

import "fmt"

// Phase names the pipeline stage that raised a CompilerError.
type Phase int

const (
	PhaseLex Phase = iota
	PhaseParse
	PhaseResolve
	PhaseTypeCheck
	PhaseCodeGen
	PhaseAssemble
)

func (p Phase) String() string {
	switch p {
	case PhaseLex:
		return "Lex"
	case PhaseParse:
		return "Parse"
	case PhaseResolve:
		return "Resolve"
	case PhaseTypeCheck:
		return "TypeCheck"
	case PhaseCodeGen:
		return "CodeGen"
	case PhaseAssemble:
		return "Assemble"
	default:
		return "Unknown"
	}
}

// CompilerError is the single error kind the compiler ever raises.
// Compilation aborts on the first one; there is no recovery and no partial
// output.
type CompilerError struct {
	Line    int
	Column  int
	Phase   Phase
	Message string
}

func (e *CompilerError) Error() string {
	return fmt.Sprintf("%s error at line %d: %s", e.Phase, e.Line, e.Message)
}

func newError(phase Phase, pos Position, format string, args ...interface{}) *CompilerError {
	return &CompilerError{
		Line:    pos.Line,
		Column:  pos.Column,
		Phase:   phase,
		Message: fmt.Sprintf(format, args...),
	}
}

// parseError builds the error the parser raises: a CompilerError with Phase
// set to Parse, kept as a distinct constructor for readability at call sites.
func parseError(pos Position, format string, args ...interface{}) *CompilerError {
	return newError(PhaseParse, pos, format, args...)
}
