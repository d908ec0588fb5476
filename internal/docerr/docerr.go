// Package docerr implements the error taxonomy for the document session
// core: a closed set of kinds, each carrying enough structured context to
// render the single-sentence, user-visible message the front-end boundary
// needs without re-deriving it from a generic error string.
package docerr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed taxonomy values from the design's error model.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindParseError  Kind = "parse_error"
	KindSchemaError Kind = "schema_error"
	KindResolve     Kind = "resolve_error"
	KindAmbiguous   Kind = "ambiguous"
	KindConflict    Kind = "conflict_error"
	KindIO          Kind = "io_error"
	KindFormat      Kind = "format_error"
	KindInternal    Kind = "internal"
)

// sentinels for errors.Is matching against a bare kind, independent of context.
var (
	ErrNotFound    = errors.New("not found")
	ErrParseError  = errors.New("parse error")
	ErrSchemaError = errors.New("schema error")
	ErrResolve     = errors.New("resolve error")
	ErrAmbiguous   = errors.New("ambiguous reference")
	ErrConflict    = errors.New("conflict")
	ErrIO          = errors.New("io error")
	ErrFormat      = errors.New("format error")
	ErrInternal    = errors.New("internal invariant breach")
)

var sentinelByKind = map[Kind]error{
	KindNotFound:    ErrNotFound,
	KindParseError:  ErrParseError,
	KindSchemaError: ErrSchemaError,
	KindResolve:     ErrResolve,
	KindAmbiguous:   ErrAmbiguous,
	KindConflict:    ErrConflict,
	KindIO:          ErrIO,
	KindFormat:      ErrFormat,
	KindInternal:    ErrInternal,
}

// Error is a taxonomy-tagged error with the context needed to render a
// single-sentence, user-visible diagnostic: the failing operation/path
// where applicable, the kind, and a recovery hint.
type Error struct {
	Kind    Kind
	Op      string // e.g. "apply[2]", "undo", "resolve"
	Path    string // the path or session id involved, if any
	Hint    string // recovery hint shown to the user
	Wrapped error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if s, ok := sentinelByKind[e.Kind]; ok {
		if e.Wrapped != nil {
			return &joinedErr{s, e.Wrapped}
		}
		return s
	}
	return e.Wrapped
}

type joinedErr struct {
	a, b error
}

func (j *joinedErr) Error() string { return j.a.Error() + ": " + j.b.Error() }
func (j *joinedErr) Unwrap() []error {
	return []error{j.a, j.b}
}

// New constructs a taxonomy error.
func New(kind Kind, op, path, hint string, wrapped error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Hint: hint, Wrapped: wrapped}
}

// NotFound builds a KindNotFound error for a session id or path lookup.
func NotFound(op, path string) *Error {
	return New(KindNotFound, op, path, "call open to obtain a valid session id", nil)
}

// Ambiguous builds a KindAmbiguous error (a sub-variant of ResolveError).
func Ambiguous(op, path string) *Error {
	return New(KindAmbiguous, op, path, "narrow the selector to match exactly one element", nil)
}

// Conflict builds a KindConflict error, e.g. a pending unacknowledged
// external change blocking a mutating operation.
func Conflict(op, path, hint string) *Error {
	if hint == "" {
		hint = "call close then open to obtain the latest version"
	}
	return New(KindConflict, op, path, hint, nil)
}

// Message renders the §7 "user-visible behavior" single sentence: the
// failing op/path where applicable, the error kind, and a recovery hint.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		sentence := fmt.Sprintf("%s failed", e.Op)
		if e.Op == "" {
			sentence = "operation failed"
		}
		if e.Path != "" {
			sentence += fmt.Sprintf(" at %q", e.Path)
		}
		sentence += fmt.Sprintf(": %s", e.Kind)
		if e.Wrapped != nil {
			sentence += fmt.Sprintf(" (%v)", e.Wrapped)
		}
		if e.Hint != "" {
			sentence += fmt.Sprintf(" - %s", e.Hint)
		}
		return sentence
	}
	return err.Error()
}

// Is reports whether err's kind matches the given kind, regardless of context.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	if s, ok := sentinelByKind[kind]; ok {
		return errors.Is(err, s)
	}
	return false
}
