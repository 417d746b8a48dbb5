// Package guard holds the single authorization decision function consulted
// before every protected surface renders or acts. Decide is deterministic
// and side-effect-free so it gates UI rendering and drives tests without
// mocking timers.
package guard

import (
	"fmt"
	"strings"

	"cnc-operator-console/internal/model"
)

// Requirement describes what a protected surface demands of the current
// session. Zero-valued fields are not checked.
type Requirement struct {
	Role        model.Role
	Permissions []string
	MachineID   string
}

type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// MachinePolicy decides whether an account may touch a machine. The
// default grants any active account; real deployments swap in a stricter
// policy without touching callers.
type MachinePolicy func(account model.Account, machineID string) bool

func PermissiveMachinePolicy(account model.Account, _ string) bool {
	return account.Active
}

type Guard struct {
	machinePolicy MachinePolicy
}

func New(machinePolicy MachinePolicy) *Guard {
	if machinePolicy == nil {
		machinePolicy = PermissiveMachinePolicy
	}
	return &Guard{machinePolicy: machinePolicy}
}

// Decide evaluates the checks in fixed order so the first failing check
// yields the most specific actionable reason: authentication, then role,
// then permissions (listing every missing one), then machine access.
func (g *Guard) Decide(session *model.Session, req Requirement) Decision {
	if session == nil {
		return Deny("authentication required")
	}
	account := session.Account

	if req.Role != "" && !account.Role.AtLeast(req.Role) {
		return Deny(fmt.Sprintf("insufficient role: need %s or higher, have %s", req.Role, account.Role))
	}

	var missing []string
	for _, permission := range req.Permissions {
		if !account.HasPermission(permission) {
			missing = append(missing, permission)
		}
	}
	if len(missing) > 0 {
		return Deny(fmt.Sprintf("missing permissions: [%s]", strings.Join(missing, ", ")))
	}

	if req.MachineID != "" && !g.machinePolicy(account, req.MachineID) {
		return Deny(fmt.Sprintf("machine access denied: %s", req.MachineID))
	}

	return Allow()
}
