package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cnc-operator-console/internal/audit"
	"cnc-operator-console/internal/clock"
	"cnc-operator-console/internal/directory"
	"cnc-operator-console/internal/event"
	"cnc-operator-console/internal/lockout"
	"cnc-operator-console/internal/model"
	"cnc-operator-console/internal/service"
	"cnc-operator-console/internal/session"
	"cnc-operator-console/internal/store"
	"cnc-operator-console/internal/token"
)

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) List(_ context.Context, limit int) ([]audit.Entry, error) {
	if limit > len(r.entries) {
		limit = len(r.entries)
	}
	return r.entries[:limit], nil
}

type fixture struct {
	handler    *AuthHandler
	controller *session.Controller
	governor   *lockout.Governor
	clock      *clock.Mock
	audit      *recordingAudit
	bus        *event.InMemoryBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mock := clock.NewMock(time.Unix(1700000000, 0))
	recorder := &recordingAudit{}
	bus := event.NewBus()

	auth := service.NewAuthService(directory.SeedAccounts(), service.Config{
		Codec:         token.NewCodec("test-secret").WithTimeFunc(mock.Now),
		Store:         store.NewMemory(),
		Audit:         recorder,
		Clock:         mock,
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		EmergencyCode: "break-glass-4711",
	})

	controller := session.NewController(auth, mock, bus, session.Options{
		IdleTimeout: 24 * time.Hour,
	})
	t.Cleanup(controller.Close)

	governor := lockout.NewGovernor(mock, lockout.DefaultMaxFailures, lockout.DefaultLockDuration)

	return &fixture{
		handler:    NewAuthHandler(auth, controller, governor, bus),
		controller: controller,
		governor:   governor,
		clock:      mock,
		audit:      recorder,
		bus:        bus,
	}
}

func postLogin(t *testing.T, f *fixture, username string, password string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(model.Credentials{Username: username, Password: password})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.Login(rec, req)
	return rec
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := postLogin(t, f, "admin", "admin123")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.True(t, f.controller.IsAuthenticated())
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := postLogin(t, f, "admin", "nope")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.False(t, f.controller.IsAuthenticated())
	require.Equal(t, 1, f.governor.Failures())
}

func TestLoginInvalidBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	f.handler.Login(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRejectedWhileSessionActive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.Equal(t, http.StatusOK, postLogin(t, f, "admin", "admin123").Code)

	rec := postLogin(t, f, "admin", "admin123")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLockoutAfterThreeFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		rec := postLogin(t, f, "admin", "wrong")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// Fourth attempt is rejected before credentials are checked, even
	// with the correct password.
	rec := postLogin(t, f, "admin", "admin123")
	require.Equal(t, http.StatusLocked, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, "LOCKED_OUT", resp.Error.Code)
	require.False(t, f.controller.IsAuthenticated())

	// The trip itself lands in the audit trail.
	var actions []string
	for _, entry := range f.audit.entries {
		actions = append(actions, entry.Action)
	}
	require.Contains(t, actions, audit.ActionLockout)

	// The trip also reaches event-stream subscribers, since the 423 is
	// only seen by the attempting client.
	var lockoutEvent *event.Event
drain:
	for {
		select {
		case e := <-events:
			if e.Type == event.TypeAuthLockout {
				received := e
				lockoutEvent = &received
			}
		default:
			break drain
		}
	}
	require.NotNil(t, lockoutEvent, "expected a lockout event on the bus")
	require.Equal(t, "admin", lockoutEvent.Username)
	require.NotEmpty(t, lockoutEvent.ID)
	require.False(t, lockoutEvent.OccurredAt.IsZero())
}

func TestLockoutExpiresAfterWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		postLogin(t, f, "admin", "wrong")
	}
	require.Equal(t, http.StatusLocked, postLogin(t, f, "admin", "admin123").Code)

	f.clock.Advance(301 * time.Second)

	rec := postLogin(t, f, "admin", "admin123")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, f.controller.IsAuthenticated())
}

func TestRefreshWithoutSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	rec := httptest.NewRecorder()
	f.handler.Refresh(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshReplacesAccessToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.Equal(t, http.StatusOK, postLogin(t, f, "admin", "admin123").Code)
	before := f.controller.State().Session.AccessToken

	f.clock.Advance(10 * time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	rec := httptest.NewRecorder()
	f.handler.Refresh(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEqual(t, before, f.controller.State().Session.AccessToken)
}

func TestLogoutEndsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.Equal(t, http.StatusOK, postLogin(t, f, "admin", "admin123").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	f.handler.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, f.controller.IsAuthenticated())
}

func TestEmergencyAccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name   string
		code   string
		reason string
		status int
	}{
		{name: "correct code", code: "break-glass-4711", reason: "spindle jam", status: http.StatusOK},
		{name: "wrong code", code: "guess", reason: "spindle jam", status: http.StatusForbidden},
		{name: "missing reason", code: "break-glass-4711", reason: "  ", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(model.EmergencyRequest{Code: tt.code, Reason: tt.reason})
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/emergency", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			f.handler.Emergency(rec, req)

			require.Equal(t, tt.status, rec.Code)
		})
	}

	// Both decided attempts were audited; the malformed one never
	// reached the service.
	var emergencies int
	for _, entry := range f.audit.entries {
		if entry.Action == audit.ActionEmergencyAccess {
			emergencies++
		}
	}
	require.Equal(t, 2, emergencies)
}
