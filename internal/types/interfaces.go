// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// ArchiveStore persists closed-session archives.
type ArchiveStore interface {
	SaveSession(ctx context.Context, session *Session) error
	ListByUser(ctx context.Context, userID UserID) ([]*Session, error)
	DeleteByUser(ctx context.Context, userID UserID) (int, error)
}

// DueFollowUp pairs a crisis event with one of its follow-ups that is due
// and not yet dispatched.
type DueFollowUp struct {
	Event    *CrisisEvent
	FollowUp FollowUp
}

// CrisisStore is the append-only audit log of crisis events. Entries are
// never mutated or deleted, independent of user-data deletion; dispatch
// state is tracked separately from the events themselves.
type CrisisStore interface {
	Append(ctx context.Context, event *CrisisEvent) error
	ListByUser(ctx context.Context, userID UserID) ([]*CrisisEvent, error)
	// ListDue returns every follow-up due at or before the given time
	// that has not yet been dispatched.
	ListDue(ctx context.Context, now time.Time) ([]DueFollowUp, error)
	MarkDispatched(ctx context.Context, id CrisisEventID, label string) error
}
