package model

import (
	"slices"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// roleRanks orders roles so that a higher role satisfies any requirement for
// a lower one. New roles slot in by adding a rank here.
var roleRanks = map[Role]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// AtLeast reports whether r is at least as privileged as required.
// Unknown roles on either side never satisfy anything.
func (r Role) AtLeast(required Role) bool {
	rank, ok := roleRanks[r]
	requiredRank, requiredOK := roleRanks[required]
	if !ok || !requiredOK {
		return false
	}
	return rank >= requiredRank
}

func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Account is one roster entry. Records are loaded once at startup and are
// immutable for the process lifetime except LastLogin.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Department   string    `json:"department"`
	Permissions  []string  `json:"permissions"`
	LastLogin    time.Time `json:"last_login"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
}

func (a Account) HasPermission(permission string) bool {
	return slices.Contains(a.Permissions, permission)
}

// Credentials is a transient login request. Never persisted.
type Credentials struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	MachineID string `json:"machine_id,omitempty"`
	ShiftCode string `json:"shift_code,omitempty"`
}

// Session exists if and only if an operator is authenticated. It is created
// on login, replaced wholesale on refresh, and destroyed on logout, idle
// timeout, or refresh failure.
type Session struct {
	Account        Account       `json:"account"`
	AccessToken    string        `json:"access_token"`
	RefreshToken   string        `json:"refresh_token"`
	ExpiresAt      time.Time     `json:"expires_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
}

// AuthResponse is the structured result of a login attempt. Login never
// raises across the service boundary; failures carry Success=false and a
// message safe to show the operator.
type AuthResponse struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message,omitempty"`
	Account      *Account `json:"account,omitempty"`
	AccessToken  string   `json:"access_token,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	ExpiresIn    int64    `json:"expires_in,omitempty"`
}
