package script

import (
	"errors"
	"fmt"
)

// SyntaxErrorKind distinguishes parser failures
type SyntaxErrorKind int

const (
	UnexpectedToken SyntaxErrorKind = iota
	UnterminatedExpression
)

func (k SyntaxErrorKind) String() string {
	switch k {
	case UnexpectedToken:
		return "unexpected token"
	case UnterminatedExpression:
		return "unterminated expression"
	default:
		return "syntax error"
	}
}

// SyntaxError is returned by the parser. It is fatal to that compile.
type SyntaxError struct {
	Kind    SyntaxErrorKind
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at line %d, column %d: %s", e.Kind, e.Line, e.Column, e.Message)
}

// UnknownFunctionError aborts a run that calls a name missing from the builtin table
type UnknownFunctionError struct {
	Name       string
	Line       int
	Column     int
	Suggestion string // closest builtin name, if any
}

func (e *UnknownFunctionError) Error() string {
	msg := fmt.Sprintf("unknown function %q at line %d, column %d", e.Name, e.Line, e.Column)
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; did you mean %q?", e.Suggestion)
	}
	return msg
}

// ErrNoData is the Output.Error text for a run over an empty buffer
const ErrNoData = "No candle data"

// ErrorPosition reports the source location carried by a syntax or unknown-function error
func ErrorPosition(err error) (Position, bool) {
	var syntaxErr *SyntaxError
	if errors.As(err, &syntaxErr) {
		return Position{Line: syntaxErr.Line, Column: syntaxErr.Column}, true
	}
	var unknownErr *UnknownFunctionError
	if errors.As(err, &unknownErr) {
		return Position{Line: unknownErr.Line, Column: unknownErr.Column}, true
	}
	return Position{}, false
}
