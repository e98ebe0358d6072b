// Package errors provides the structured error taxonomy for ClaudeMix.
// Every failure surfaced to the command layer carries a Kind so the CLI can
// report it verbatim and callers can branch on it with errors.Is.
package errors

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.Function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateSession
	KindWorktreeConflict
	KindPersistenceUnavailable
	KindHookRejected
	KindSessionBusy
	KindAlreadyQueued
	KindMergeConflict
	KindMergeTimeout
	KindOrphaned
	KindNotFound
	KindInvalidTransition
	KindGit
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindDuplicateSession:
		return "duplicate session"
	case KindWorktreeConflict:
		return "worktree conflict"
	case KindPersistenceUnavailable:
		return "persistence unavailable"
	case KindHookRejected:
		return "hook rejected"
	case KindSessionBusy:
		return "session busy"
	case KindAlreadyQueued:
		return "already queued"
	case KindMergeConflict:
		return "merge conflict"
	case KindMergeTimeout:
		return "merge timeout"
	case KindOrphaned:
		return "orphaned"
	case KindNotFound:
		return "not found"
	case KindInvalidTransition:
		return "invalid transition"
	case KindGit:
		return "git error"
	case KindConfig:
		return "configuration error"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for ClaudeMix.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrSessionBusy)
// holds for any *Error of KindSessionBusy anywhere in the chain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel() {
		return false
	}
	return e.Kind == t.Kind
}

func (e *Error) sentinel() bool {
	return e.Kind != KindUnknown && e.Op == "" && e.Context == ""
}

// Kind sentinels for use with errors.Is.
var (
	ErrDuplicateSession       = &Error{Kind: KindDuplicateSession, Err: errors.New("duplicate session")}
	ErrWorktreeConflict       = &Error{Kind: KindWorktreeConflict, Err: errors.New("worktree conflict")}
	ErrPersistenceUnavailable = &Error{Kind: KindPersistenceUnavailable, Err: errors.New("persistence unavailable")}
	ErrHookRejected           = &Error{Kind: KindHookRejected, Err: errors.New("hook rejected")}
	ErrSessionBusy            = &Error{Kind: KindSessionBusy, Err: errors.New("session busy")}
	ErrAlreadyQueued          = &Error{Kind: KindAlreadyQueued, Err: errors.New("already queued")}
	ErrMergeConflict          = &Error{Kind: KindMergeConflict, Err: errors.New("merge conflict")}
	ErrMergeTimeout           = &Error{Kind: KindMergeTimeout, Err: errors.New("merge timeout")}
	ErrOrphaned               = &Error{Kind: KindOrphaned, Err: errors.New("orphaned")}
	ErrNotFound               = &Error{Kind: KindNotFound, Err: errors.New("not found")}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition, Err: errors.New("invalid transition")}
)

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		if e.Context != "" {
			e.Err = errors.New(e.Context)
			e.Context = ""
		} else {
			e.Err = errors.New(e.Kind.String())
		}
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// GetKind returns the Kind of the outermost classified error in the chain.
func GetKind(err error) Kind {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}

// Session errors

func DuplicateSession(op Op, name, owner string) error {
	return E(op, KindDuplicateSession, fmt.Sprintf("session %q conflicts with non-terminal session %q", name, owner))
}

func SessionNotFound(op Op, name string) error {
	return E(op, KindNotFound, fmt.Sprintf("session %q not found", name))
}

func SessionBusy(op Op, name, reason string) error {
	return E(op, KindSessionBusy, fmt.Sprintf("session %q is busy: %s", name, reason))
}

func InvalidTransition(op Op, name string, from, to interface{}) error {
	return E(op, KindInvalidTransition, fmt.Sprintf("session %q cannot go from %v to %v", name, from, to))
}

// Resource errors

func WorktreeConflict(branch, path string) error {
	return E(Op("worktree.Acquire"), KindWorktreeConflict, fmt.Sprintf("branch %q is already checked out at %s", branch, path))
}

func PersistenceUnavailable(op Op, err error) error {
	if err == nil {
		return E(op, KindPersistenceUnavailable, "persistence backend is not available")
	}
	return E(op, KindPersistenceUnavailable, "persistence backend is not available", err)
}

// Hook and merge errors

func HookRejected(phase string, exitCode int, output string) error {
	msg := fmt.Sprintf("%s hook exited with status %d", phase, exitCode)
	if output != "" {
		msg += ": " + output
	}
	return E(Op("hooks.Run"), KindHookRejected, msg)
}

func AlreadyQueued(session, target string) error {
	return E(Op("merge.Enqueue"), KindAlreadyQueued, fmt.Sprintf("session %q already has an outstanding merge into %q", session, target))
}

func MergeConflict(source, target string, files []string) error {
	return E(Op("merge.Execute"), KindMergeConflict, fmt.Sprintf("merging %s into %s conflicts in %v", source, target, files))
}

func MergeTimeout(source, target string, err error) error {
	return E(Op("merge.Execute"), KindMergeTimeout, fmt.Sprintf("merging %s into %s exceeded the version-control timeout", source, target), err)
}

func GitFailed(op Op, err error) error {
	return E(op, KindGit, err)
}
