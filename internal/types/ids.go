// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type UserID string
type SessionID string
type AssessmentID string
type CrisisEventID string

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewAssessmentID() AssessmentID {
	return AssessmentID(uuid.New().String())
}

func NewCrisisEventID() CrisisEventID {
	return CrisisEventID(uuid.New().String())
}
