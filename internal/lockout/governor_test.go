package lockout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cnc-operator-console/internal/clock"
)

func newGovernor(t *testing.T) (*Governor, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock(time.Unix(1700000000, 0))
	return NewGovernor(mock, 3, 300*time.Second), mock
}

func TestExactlyThirdFailureLocks(t *testing.T) {
	t.Parallel()
	g, _ := newGovernor(t)

	locked, _ := g.RecordFailure()
	require.False(t, locked, "1st failure must not lock")
	ok, _ := g.Allow()
	require.True(t, ok)

	locked, _ = g.RecordFailure()
	require.False(t, locked, "2nd failure must not lock")
	ok, _ = g.Allow()
	require.True(t, ok)

	locked, duration := g.RecordFailure()
	require.True(t, locked, "3rd failure must lock")
	require.Equal(t, 300*time.Second, duration)

	ok, remaining := g.Allow()
	require.False(t, ok)
	require.Equal(t, 300*time.Second, remaining)
}

func TestSuccessResetsCounter(t *testing.T) {
	t.Parallel()

	for _, failures := range []int{1, 2} {
		g, _ := newGovernor(t)
		for i := 0; i < failures; i++ {
			g.RecordFailure()
		}
		g.RecordSuccess()
		require.Equal(t, 0, g.Failures())

		// Two more failures still must not lock after the reset.
		g.RecordFailure()
		locked, _ := g.RecordFailure()
		require.False(t, locked)
	}
}

func TestLockoutExpiryReenablesSubmission(t *testing.T) {
	t.Parallel()
	g, mock := newGovernor(t)

	for i := 0; i < 3; i++ {
		g.RecordFailure()
	}
	ok, _ := g.Allow()
	require.False(t, ok)

	mock.Advance(299 * time.Second)
	ok, remaining := g.Allow()
	require.False(t, ok)
	require.Equal(t, time.Second, remaining)

	mock.Advance(time.Second)
	ok, _ = g.Allow()
	require.True(t, ok)
	require.Equal(t, 0, g.Failures(), "expiry resets the failure counter")
}

func TestRemainingCountsDown(t *testing.T) {
	t.Parallel()
	g, mock := newGovernor(t)

	for i := 0; i < 3; i++ {
		g.RecordFailure()
	}

	require.Equal(t, 300*time.Second, g.Remaining())
	mock.Advance(100 * time.Second)
	require.Equal(t, 200*time.Second, g.Remaining())
	mock.Advance(250 * time.Second)
	require.Equal(t, time.Duration(0), g.Remaining())
}

func TestFailuresWhileLockedDoNotExtend(t *testing.T) {
	t.Parallel()
	g, mock := newGovernor(t)

	for i := 0; i < 3; i++ {
		g.RecordFailure()
	}
	mock.Advance(100 * time.Second)

	locked, remaining := g.RecordFailure()
	require.True(t, locked)
	require.Equal(t, 200*time.Second, remaining)
}
