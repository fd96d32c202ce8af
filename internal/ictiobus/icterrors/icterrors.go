// Package icterrors defines the error value returned at every boundary of
// the compiler pipeline.
package icterrors

import "fmt"

// Kind discriminates the category of a CompileError. The zero value, KindNone,
// denotes success.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidRegex
	KindGrammarError
	KindLexConflict
	KindParseConflict
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindInvalidRegex:
		return "InvalidRegex"
	case KindGrammarError:
		return "GrammarError"
	case KindLexConflict:
		return "LexConflict"
	case KindParseConflict:
		return "ParseConflict"
	case KindCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// CompileError is the error value threaded through every pipeline stage. Its
// zero value (Kind == KindNone) represents success, so a stage can return a
// bare CompileError{} rather than a nil interface.
type CompileError struct {
	Kind    Kind
	Message string
}

// None reports whether this is the zero-value, no-error CompileError.
func (e CompileError) None() bool {
	return e.Kind == KindNone
}

func (e CompileError) Error() string {
	if e.None() {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a CompileError of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) CompileError {
	return CompileError{Kind: k, Message: fmt.Sprintf(format, args...)}
}
