package pty

import "errors"

// Sentinel errors returned by the session manager. Call sites wrap them with
// context, so compare with errors.Is.
var (
	// ErrSpawn is returned when a pty cannot be allocated or the shell
	// cannot be started.
	ErrSpawn = errors.New("spawn failed")

	// ErrClosed is returned for operations on a session that is no longer
	// running.
	ErrClosed = errors.New("session closed")

	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidArgument is returned for malformed geometry.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIO is returned for transient OS-level read or write failures.
	ErrIO = errors.New("pty i/o error")

	// ErrManagerClosed is returned by Create after host shutdown began.
	ErrManagerClosed = errors.New("session manager is closed")
)
