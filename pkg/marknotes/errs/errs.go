// Package errs defines the typed errors shared by the storage, session and
// authorization layers, and their mapping to HTTP status codes.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
)

// Kind classifies an error for the transport layer.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalid
	KindPathEscape
	KindNotFound
	KindDecrypt
	KindStorage
	KindUnauthorized
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindPathEscape:
		return "path_escape"
	case KindNotFound:
		return "not_found"
	case KindDecrypt:
		return "decrypt_failed"
	case KindStorage:
		return "storage_failure"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the single error type returned by core operations.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "documents.save"
	Path    string // logical path or resource identifier, if any
	Message string // human readable, safe to show for 4xx kinds
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrInvalid      = &Error{Kind: KindInvalid}
	ErrPathEscape   = &Error{Kind: KindPathEscape}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrDecrypt      = &Error{Kind: KindDecrypt}
	ErrStorage      = &Error{Kind: KindStorage}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrConflict     = &Error{Kind: KindConflict}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		fmt.Fprintf(&b, " %q", e.Path)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Path != "" || t.Message != "" || t.Err != nil {
		return e == t
	}
	return t.Kind == e.Kind
}

func Invalid(op, message string) error {
	return &Error{Kind: KindInvalid, Op: op, Message: message}
}

func PathEscape(logical string) error {
	return &Error{Kind: KindPathEscape, Op: "pathsafe.resolve", Path: logical, Message: "path resolves outside the document root"}
}

func NotFound(op, path string) error {
	return &Error{Kind: KindNotFound, Op: op, Path: path}
}

func Decrypt(op string, err error) error {
	return &Error{Kind: KindDecrypt, Op: op, Err: err}
}

func Unauthorized(message string) error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Conflict reports a violated uniqueness constraint, named by constraint.
func Conflict(op, constraint, message string) error {
	return &Error{Kind: KindConflict, Op: op, Path: constraint, Message: message}
}

// Storage wraps a filesystem error. Missing files become NotFound and
// existing targets become Conflict; everything else is a StorageError.
func Storage(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Error{Kind: KindNotFound, Op: op, Path: path, Err: err}
	case errors.Is(err, fs.ErrExist):
		return &Error{Kind: KindConflict, Op: op, Path: path, Message: "target already exists", Err: err}
	}
	return &Error{Kind: KindStorage, Op: op, Path: path, Err: err}
}

// Internal wraps an unexpected failure, typically from the relational store.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps a kind to its HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindInvalid, KindPathEscape:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code is the stable machine-readable code for err.
func Code(err error) string {
	return KindOf(err).String()
}
