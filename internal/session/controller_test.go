package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cnc-operator-console/internal/clock"
	"cnc-operator-console/internal/event"
	"cnc-operator-console/internal/model"
)

type stubAuth struct {
	mu           sync.Mutex
	loginResp    model.AuthResponse
	loginGate    chan struct{}
	loginStarted chan struct{}
	refreshOK    bool
	current      *model.Session
	currentErr   error
	loginCalls   int
	logoutCalls  int
	refreshCalls int
	clearCalls   int
}

func (s *stubAuth) Login(_ context.Context, _ model.Credentials) model.AuthResponse {
	s.mu.Lock()
	s.loginCalls++
	started := s.loginStarted
	gate := s.loginGate
	resp := s.loginResp
	s.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	return resp
}

func (s *stubAuth) Logout(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutCalls++
	s.current = nil
}

func (s *stubAuth) RefreshToken(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	return s.refreshOK
}

func (s *stubAuth) CurrentSession(_ context.Context) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentErr != nil {
		return nil, s.currentErr
	}
	if s.current == nil {
		return nil, nil
	}
	session := *s.current
	return &session, nil
}

func (s *stubAuth) ClearSession(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCalls++
	s.current = nil
}

func (s *stubAuth) counts() (login, logout, refresh, clear int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls, s.logoutCalls, s.refreshCalls, s.clearCalls
}

func successResponse() model.AuthResponse {
	account := model.Account{ID: "op-1", Username: "operator", Role: model.RoleUser, Active: true}
	return model.AuthResponse{
		Success:      true,
		Account:      &account,
		AccessToken:  "access-v1",
		RefreshToken: "refresh-v1",
		ExpiresIn:    3600,
	}
}

func newTestController(t *testing.T, auth *stubAuth, opts Options) (*Controller, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock(time.Unix(1700000000, 0))
	controller := NewController(auth, mock, event.NewBus(), opts)
	t.Cleanup(controller.Close)
	return controller, mock
}

func TestLoginTransitionsToAuthenticated(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{loginResp: successResponse()}
	controller, mock := newTestController(t, auth, Options{})

	resp := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	require.True(t, resp.Success)
	require.True(t, controller.IsAuthenticated())

	state := controller.State()
	require.Equal(t, PhaseAuthenticated, state.Phase)
	require.Equal(t, "operator", state.Session.Account.Username)
	require.Equal(t, mock.Now(), state.Session.LastActivityAt)
	require.Equal(t, mock.Now().Add(time.Hour), state.Session.ExpiresAt)
	require.Equal(t, 30*time.Minute, state.Session.IdleTimeout)
}

func TestLoginFailureReturnsToIdle(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{loginResp: model.AuthResponse{Success: false, Message: "invalid username or password"}}
	controller, _ := newTestController(t, auth, Options{})

	resp := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "bad"})
	require.False(t, resp.Success)

	state := controller.State()
	require.Equal(t, PhaseIdle, state.Phase)
	require.Equal(t, "invalid username or password", state.Notice)
	require.Nil(t, state.Session)
}

func TestIdleTimeoutForcesLogout(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{loginResp: successResponse()}
	controller, mock := newTestController(t, auth, Options{IdleTimeout: 30 * time.Minute})

	resp := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	require.True(t, resp.Success)

	// Fresher than the timeout: untouched.
	mock.Advance(29 * time.Minute)
	controller.CheckIdle()
	require.True(t, controller.IsAuthenticated())

	mock.Advance(time.Minute)
	controller.CheckIdle()

	state := controller.State()
	require.Equal(t, PhaseLoggedOut, state.Phase)
	require.Equal(t, NoticeIdleTimeout, state.Notice)

	_, _, _, clears := auth.counts()
	require.Positive(t, clears, "idle timeout must clear the persisted session")
}

func TestActivityKeepsSessionAlive(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{loginResp: successResponse(), refreshOK: true}
	controller, mock := newTestController(t, auth, Options{IdleTimeout: 30 * time.Minute})

	resp := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	require.True(t, resp.Success)

	mock.Advance(20 * time.Minute)
	controller.RecordActivity()
	mock.Advance(20 * time.Minute)
	controller.CheckIdle()

	require.True(t, controller.IsAuthenticated(),
		"40 minutes since login but only 20 since last activity")
}

func TestActivityIgnoredWhenUnauthenticated(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{}
	controller, _ := newTestController(t, auth, Options{})

	controller.RecordActivity()
	require.Equal(t, PhaseIdle, controller.State().Phase)
}

func TestAutomaticRefreshReplacesSession(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{loginResp: successResponse(), refreshOK: true}
	// Large idle timeout so only the refresh timer is in play.
	controller, mock := newTestController(t, auth, Options{IdleTimeout: 24 * time.Hour})

	resp := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	require.True(t, resp.Success)
	loginActivity := controller.State().Session.LastActivityAt

	refreshedSession := model.Session{
		Account:      *resp.Account,
		AccessToken:  "access-v2",
		RefreshToken: "refresh-v1",
		ExpiresAt:    mock.Now().Add(55*time.Minute + time.Hour),
	}
	auth.mu.Lock()
	auth.current = &refreshedSession
	auth.mu.Unlock()

	// The refresh timer fires five minutes before access-token expiry.
	mock.Advance(55 * time.Minute)

	state := controller.State()
	require.Equal(t, PhaseAuthenticated, state.Phase)
	require.Equal(t, "access-v2", state.Session.AccessToken)
	require.Equal(t, loginActivity, state.Session.LastActivityAt,
		"refresh must not count as user activity")

	_, _, refreshes, _ := auth.counts()
	require.Equal(t, 1, refreshes)
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{loginResp: successResponse(), refreshOK: false}
	controller, mock := newTestController(t, auth, Options{IdleTimeout: 24 * time.Hour})

	resp := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	require.True(t, resp.Success)

	mock.Advance(55 * time.Minute)

	state := controller.State()
	require.Equal(t, PhaseLoggedOut, state.Phase)
	require.Equal(t, NoticeRefreshFailed, state.Notice)
}

func TestLogoutWinsAgainstInFlightLogin(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{
		loginResp:    successResponse(),
		loginGate:    make(chan struct{}),
		loginStarted: make(chan struct{}),
	}
	controller, _ := newTestController(t, auth, Options{})

	results := make(chan model.AuthResponse, 1)
	go func() {
		results <- controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	}()

	<-auth.loginStarted
	controller.Logout(context.Background())
	close(auth.loginGate)

	resp := <-results
	require.False(t, resp.Success, "stale login result must be discarded")
	require.Equal(t, PhaseLoggedOut, controller.State().Phase)
	require.False(t, controller.IsAuthenticated())

	_, _, _, clears := auth.counts()
	require.Positive(t, clears, "the discarded login's persisted session must be cleared")
}

func TestExplicitLogout(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{loginResp: successResponse()}
	controller, _ := newTestController(t, auth, Options{})

	resp := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	require.True(t, resp.Success)

	controller.Logout(context.Background())

	state := controller.State()
	require.Equal(t, PhaseLoggedOut, state.Phase)
	require.Equal(t, NoticeLoggedOut, state.Notice)

	_, logouts, _, _ := auth.counts()
	require.Equal(t, 1, logouts, "logout must reach the auth service for revocation")
}

func TestRestoreAdoptsValidPersistedSession(t *testing.T) {
	t.Parallel()
	persisted := model.Session{
		Account:     model.Account{ID: "op-1", Username: "operator", Role: model.RoleUser, Active: true},
		AccessToken: "access-v1",
		ExpiresAt:   time.Unix(1700000000, 0).UTC().Add(time.Hour),
	}
	auth := &stubAuth{current: &persisted}
	controller, mock := newTestController(t, auth, Options{})

	controller.Restore(context.Background())

	state := controller.State()
	require.Equal(t, PhaseAuthenticated, state.Phase)
	require.Equal(t, "operator", state.Session.Account.Username)
	require.Equal(t, mock.Now(), state.Session.LastActivityAt)
	require.Equal(t, 30*time.Minute, state.Session.IdleTimeout)

	logins, _, _, _ := auth.counts()
	require.Zero(t, logins, "restore must not contact the login path")
}

func TestRestoreRejectsInactiveAccount(t *testing.T) {
	t.Parallel()
	persisted := model.Session{
		Account:     model.Account{ID: "op-1", Username: "operator", Role: model.RoleUser, Active: false},
		AccessToken: "access-v1",
		ExpiresAt:   time.Unix(1700000000, 0).UTC().Add(time.Hour),
	}
	auth := &stubAuth{current: &persisted}
	controller, _ := newTestController(t, auth, Options{})

	controller.Restore(context.Background())

	require.Equal(t, PhaseIdle, controller.State().Phase)
	_, _, _, clears := auth.counts()
	require.Equal(t, 1, clears)
}

func TestRestoreClearsCorruptState(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{currentErr: context.DeadlineExceeded}
	controller, _ := newTestController(t, auth, Options{})

	controller.Restore(context.Background())

	require.Equal(t, PhaseIdle, controller.State().Phase)
	_, _, _, clears := auth.counts()
	require.Equal(t, 1, clears)
}

func TestRestoreWithEmptyStoreStaysIdle(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{}
	controller, _ := newTestController(t, auth, Options{})

	controller.Restore(context.Background())

	require.Equal(t, PhaseIdle, controller.State().Phase)
	_, _, _, clears := auth.counts()
	require.Zero(t, clears)
}

func TestLoginRejectedWhileSessionActive(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{loginResp: successResponse()}
	controller, _ := newTestController(t, auth, Options{})

	first := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	require.True(t, first.Success)

	second := controller.Login(context.Background(), model.Credentials{Username: "operator", Password: "pw"})
	require.False(t, second.Success)

	logins, _, _, _ := auth.counts()
	require.Equal(t, 1, logins, "second login must not reach the auth service")
}
