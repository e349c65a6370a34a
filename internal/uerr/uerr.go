// Package uerr defines the error values the compiler reports to users.
package uerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for its one-line prefix.
type Kind string

const (
	ParseError    Kind = "ParseError"
	SemanticError Kind = "SemanticError"
	RuntimeError  Kind = "RuntimeError"
	InternalError Kind = "InternalError"
)

// UCError is a user-facing diagnostic with an optional source coordinate.
// Semantic errors format exactly as "SemanticError: <message> <coord>".
type UCError struct {
	Kind    Kind
	Message string
	Coord   string
	// Code is the diagnostic number for semantic errors, zero otherwise.
	Code int
}

func (e *UCError) Error() string {
	if e.Coord == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Message, e.Coord)
}

func New(kind Kind, message, coord string) *UCError {
	return &UCError{Kind: kind, Message: message, Coord: coord}
}

func Semantic(code int, message, coord string) *UCError {
	return &UCError{Kind: SemanticError, Message: message, Coord: coord, Code: code}
}

// Internal wraps a programmer bug (unknown opcode, unresolved label,
// missing type annotation). These are never caught and retried.
func Internal(format string, args ...interface{}) error {
	return errors.Wrap(&UCError{Kind: InternalError, Message: fmt.Sprintf(format, args...)}, "compiler bug")
}
