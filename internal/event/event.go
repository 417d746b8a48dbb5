package event

import "time"

type Type string

const (
	TypeSessionLogin         Type = "session.login"
	TypeSessionLogout        Type = "session.logout"
	TypeSessionIdleTimeout   Type = "session.idle_timeout"
	TypeSessionRefreshed     Type = "session.refreshed"
	TypeSessionRefreshFailed Type = "session.refresh_failed"
	TypeAuthLockout          Type = "auth.lockout"
)

// Event is one session-state notification pushed to dashboard clients so
// they can show the matching notice ("expired due to inactivity", "refresh
// failed") without polling.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Username   string    `json:"username,omitempty"`
	Notice     string    `json:"notice,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
