// internal/types/errors.go
package types

import "errors"

var (
	// ErrSessionNotFound marks an unknown or already-closed session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotActive marks an operation that is only legal on an
	// Active session.
	ErrSessionNotActive = errors.New("session not active")

	// ErrTurnInProgress marks an overlapping processTurn call for the same
	// session. The caller must retry or queue.
	ErrTurnInProgress = errors.New("turn already in progress")

	// ErrUserSessionExists marks a start attempt while the user already
	// has an active session.
	ErrUserSessionExists = errors.New("user already has an active session")

	// ErrGeneratorUnavailable marks a failed external reply generation.
	// Risk state computed before the generator call is unaffected.
	ErrGeneratorUnavailable = errors.New("response generator unavailable")
)
