// Package ferrors defines the malformed-IR error taxonomy from §7 of the
// specification. It is deliberately small: this repository's error surface
// is three kinds, not the open-ended set a source-level compiler front end
// would need, so it follows the spirit of kanso's internal/errors package
// (structured, coded errors) without that package's source-position
// rendering machinery, which this repo has no use for (the IR has no
// textual source form — only JSON).
package ferrors

import "fmt"

// Code identifies one of the error kinds enumerated in §7.
type Code string

const (
	// CodeMalformed covers missing required fields, unknown opcodes, and
	// inconsistent label references — the pass does not attempt repair.
	CodeMalformed Code = "malformed_ir"
	// CodeUnknownOpcode is a specialization of CodeMalformed for an
	// unrecognized Op value.
	CodeUnknownOpcode Code = "unknown_opcode"
	// CodeInconsistentLabel is a specialization of CodeMalformed for a
	// jmp/br/phi referencing a label with no matching block.
	CodeInconsistentLabel Code = "inconsistent_label"
)

// Error is a structured error carrying a code plus the function it occurred
// in, so the CLI driver can report which function of a program failed.
type Error struct {
	Code     Code
	Function string
	Message  string
}

func (e *Error) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: in function %q: %s", e.Code, e.Function, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Malformed reports a generic malformed-IR condition.
func Malformed(fn, format string, args ...any) error {
	return &Error{Code: CodeMalformed, Function: fn, Message: fmt.Sprintf(format, args...)}
}

// UnknownOpcode reports an instruction with an opcode this repo does not model.
func UnknownOpcode(fn, op string) error {
	return &Error{Code: CodeUnknownOpcode, Function: fn, Message: fmt.Sprintf("unknown opcode %q", op)}
}

// InconsistentLabel reports a control instruction referencing a label with
// no corresponding block.
func InconsistentLabel(fn, label string) error {
	return &Error{Code: CodeInconsistentLabel, Function: fn, Message: fmt.Sprintf("reference to undefined label %q", label)}
}
