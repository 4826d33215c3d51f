// Package siderr provides the structured error type shared by every sid
// package: a single Error carrying the failing operation, the key
// involved (if any), a high-level Kind, and an optional wrapped errno.
package siderr

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind is one of the error categories named in the wire protocol and
// the store's ownership-policy callbacks.
type Kind string

const (
	KindInvalidInput      Kind = "invalid input"
	KindNotFound          Kind = "not found"
	KindAccessDenied      Kind = "access denied"
	KindPermission        Kind = "permission"
	KindBusy              Kind = "busy"
	KindProtocolMismatch  Kind = "protocol mismatch"
	KindIO                Kind = "i/o error"
	KindTimedOut          Kind = "timed out"
	KindParentGone        Kind = "parent gone"
	KindInternal          Kind = "internal"
)

// Error is sid's structured error: operation, key, kind, optional errno,
// message, and an optional wrapped inner error.
type Error struct {
	Op    string // operation that failed, e.g. "kv.Set", "worker.Spawn"
	Key   string // KV key involved, empty if not applicable
	Kind  Kind
	Errno syscall.Errno // 0 if the failure did not originate in a syscall
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("sid: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("sid: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// New creates a structured error with no key or errno.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// NewKey creates a structured error scoped to a specific KV key.
func NewKey(op, key string, kind Kind, msg string) *Error {
	return &Error{Op: op, Key: key, Kind: kind, Msg: msg}
}

// NewErrno wraps a syscall errno with the matching high-level kind.
func NewErrno(op string, errno syscall.Errno) *Error {
	return &Error{Op: op, Kind: mapErrnoToKind(errno), Errno: errno, Msg: errno.Error()}
}

// Wrap attaches operation context to an existing error, preserving kind
// and key when the inner error is already a *Error.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var se *Error
	if errors.As(inner, &se) {
		return &Error{Op: op, Key: se.Key, Kind: se.Kind, Errno: se.Errno, Msg: se.Msg, Inner: se.Inner}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Kind: mapErrnoToKind(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Kind: KindInternal, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToKind(errno syscall.Errno) Kind {
	switch errno {
	case syscall.ENOENT:
		return KindNotFound
	case syscall.EBUSY:
		return KindBusy
	case syscall.EINVAL, syscall.E2BIG:
		return KindInvalidInput
	case syscall.EACCES:
		return KindAccessDenied
	case syscall.EPERM:
		return KindPermission
	case syscall.ETIMEDOUT:
		return KindTimedOut
	default:
		return KindIO
	}
}

// IsKind reports whether err is a *Error carrying the given Kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsErrno reports whether err is a *Error wrapping the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Errno == errno
	}
	return false
}
