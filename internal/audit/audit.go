// Package audit records security-relevant actions: every emergency-access
// invocation regardless of outcome, login failures, and lockout trips.
package audit

import (
	"context"
	"time"
)

const (
	ActionEmergencyAccess = "emergency_access"
	ActionLoginFailed     = "login_failed"
	ActionLockout         = "lockout"
)

const (
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
)

type Entry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Username   string    `json:"username,omitempty"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
}
