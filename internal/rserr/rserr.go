// Package rserr defines the error taxonomy shared across the reconciliation
// core, matching the "<kind>: <message>" string form the RPC boundary
// serializes errors to.
package rserr

import "fmt"

// Kind is one of the closed set of error kinds spec.md §7 names.
type Kind string

const (
	KindDatabase         Kind = "Database"
	KindIo               Kind = "Io"
	KindRuleNotFound     Kind = "RuleNotFound"
	KindCommandNotFound  Kind = "CommandNotFound"
	KindSkillNotFound    Kind = "SkillNotFound"
	KindSyncConflict     Kind = "SyncConflict"
	KindValidation       Kind = "Validation"
	KindAuth             Kind = "Auth"
	KindMcp              Kind = "Mcp"
	KindInvalidInput     Kind = "InvalidInput"
	KindSerialization    Kind = "Serialization"
	KindPath             Kind = "Path"
	KindDatabasePoisoned Kind = "DatabasePoisoned"
	KindLockError        Kind = "LockError"
	KindYaml             Kind = "Yaml"
	KindMigration        Kind = "Migration"
	KindWatcher          Kind = "Watcher"
)

// Error is a taxonomy-tagged error. It serializes to "<kind>: <message>" at
// the RPC boundary and never carries a Go stack trace across it.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds a tagged error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an underlying error with a kind, preserving it for errors.Is/As.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Wrapped: err}
}

// Wrapf tags an underlying error with a kind and a formatted message.
func Wrapf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// NotFound builds the {Rule,Command,Skill}NotFound{id} variant for entity.
func NotFound(kind Kind, id string) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf("id=%s", id)}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
