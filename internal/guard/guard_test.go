package guard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cnc-operator-console/internal/model"
)

func userSession(role model.Role, permissions ...string) *model.Session {
	return &model.Session{Account: model.Account{
		ID:          "op-1",
		Username:    "operator",
		Role:        role,
		Permissions: permissions,
		Active:      true,
	}}
}

func TestDecideUnauthenticated(t *testing.T) {
	t.Parallel()
	g := New(nil)

	decision := g.Decide(nil, Requirement{Role: model.RoleUser})
	require.False(t, decision.Allowed)
	require.Equal(t, "authentication required", decision.Reason)
}

func TestDecideRoleHierarchy(t *testing.T) {
	t.Parallel()
	g := New(nil)

	t.Run("user denied admin requirement", func(t *testing.T) {
		decision := g.Decide(userSession(model.RoleUser, "read"), Requirement{Role: model.RoleAdmin})
		require.False(t, decision.Allowed)
		require.Equal(t, "insufficient role: need admin or higher, have user", decision.Reason)
	})

	t.Run("admin satisfies user requirement", func(t *testing.T) {
		decision := g.Decide(userSession(model.RoleAdmin, "read"), Requirement{Role: model.RoleUser})
		require.True(t, decision.Allowed)
	})

	t.Run("every role satisfies itself", func(t *testing.T) {
		for _, role := range []model.Role{model.RoleUser, model.RoleAdmin} {
			decision := g.Decide(userSession(role), Requirement{Role: role})
			require.True(t, decision.Allowed, "role %s", role)
		}
	})

	t.Run("unknown role never satisfies", func(t *testing.T) {
		decision := g.Decide(userSession(model.Role("intern")), Requirement{Role: model.RoleUser})
		require.False(t, decision.Allowed)
	})
}

func TestDecideListsEveryMissingPermission(t *testing.T) {
	t.Parallel()
	g := New(nil)

	decision := g.Decide(
		userSession(model.RoleUser, "read"),
		Requirement{Permissions: []string{"read", "write", "emergency_stop"}},
	)
	require.False(t, decision.Allowed)
	require.Equal(t, "missing permissions: [write, emergency_stop]", decision.Reason)
}

func TestDecideMachineAccess(t *testing.T) {
	t.Parallel()

	t.Run("permissive default allows active accounts", func(t *testing.T) {
		g := New(nil)
		decision := g.Decide(userSession(model.RoleUser), Requirement{MachineID: "cnc-7"})
		require.True(t, decision.Allowed)
	})

	t.Run("custom policy can deny", func(t *testing.T) {
		g := New(func(_ model.Account, machineID string) bool { return machineID != "cnc-7" })
		decision := g.Decide(userSession(model.RoleUser), Requirement{MachineID: "cnc-7"})
		require.False(t, decision.Allowed)
		require.Equal(t, "machine access denied: cnc-7", decision.Reason)
	})
}

func TestDecideCheckOrder(t *testing.T) {
	t.Parallel()
	// Role outranks permissions in the reported reason: a user failing both
	// gets the role message.
	g := New(func(model.Account, string) bool { return false })

	decision := g.Decide(userSession(model.RoleUser), Requirement{
		Role:        model.RoleAdmin,
		Permissions: []string{"manage_users"},
		MachineID:   "cnc-1",
	})
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Reason, "insufficient role")
}

func TestDecideAllChecksPass(t *testing.T) {
	t.Parallel()
	g := New(nil)

	decision := g.Decide(
		userSession(model.RoleAdmin, "read", "write", "manage_users"),
		Requirement{Role: model.RoleUser, Permissions: []string{"read", "write"}, MachineID: "cnc-3"},
	)
	require.True(t, decision.Allowed)
	require.Empty(t, decision.Reason)
}
