// Package cfgerr defines the error taxonomy shared by every component of the
// configuration tree engine (Value, IdCollection, Node, Loader, Instance).
//
// Every abstract error kind from the design is represented once here so the
// taxonomy is not reinvented per package.
package cfgerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. See the design's error-handling section for the
// full trigger/propagation table.
type Kind int

const (
	// Internal marks an assertion failure in the engine itself. Always fatal.
	Internal Kind = iota
	// ModelError marks a schema-level inconsistency or unrecoverable
	// invariant violation (fix-loop limit, cyclic warp, conflicting
	// default/upstream_default, unknown value_type).
	ModelError
	// UserError marks reading a mandatory-empty value, or touching a
	// hidden/obsolete element.
	UserError
	// WrongValue marks a validation failure on store or fetch.
	WrongValue
	// WrongType marks an operation attempted on the wrong element kind
	// (e.g. ":id" addressing against a leaf).
	WrongType
	// UnknownElement marks a name not present in the Node and not
	// acceptable through an Accept rule.
	UnknownElement
	// UnknownId marks an index not present in an IdCollection.
	UnknownId
	// LoadError marks a parse or execution failure in the Loader DSL.
	LoadError
	// LoadDataError marks a structured-data load (JSON/YAML projection)
	// whose shape does not match what was expected.
	LoadDataError
	// SyntaxError marks a backend report of a file+line syntax problem.
	SyntaxError
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "Internal"
	case ModelError:
		return "ModelError"
	case UserError:
		return "UserError"
	case WrongValue:
		return "WrongValue"
	case WrongType:
		return "WrongType"
	case UnknownElement:
		return "UnknownElement"
	case UnknownId:
		return "UnknownId"
	case LoadError:
		return "LoadError"
	case LoadDataError:
		return "LoadDataError"
	case SyntaxError:
		return "SyntaxError"
	default:
		return "Unknown"
	}
}

// Error is the single error type used across the engine. Path identifies the
// element/collection-entry the error occurred at, in dotted-element / [index]
// notation (e.g. "database.port", `hosts["web-1"].port`).
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error without a wrapped cause.
func New(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that carries cause as its wrapped error.
func Wrap(kind Kind, path string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// needed. Mirrors errors.Is but matches on Kind rather than identity.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
