//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cnc-operator-console/internal/audit"
	"cnc-operator-console/internal/clock"
	"cnc-operator-console/internal/config"
	"cnc-operator-console/internal/directory"
	"cnc-operator-console/internal/event"
	"cnc-operator-console/internal/guard"
	"cnc-operator-console/internal/handler"
	"cnc-operator-console/internal/lockout"
	"cnc-operator-console/internal/middleware"
	"cnc-operator-console/internal/router"
	"cnc-operator-console/internal/service"
	"cnc-operator-console/internal/session"
	"cnc-operator-console/internal/store"
	"cnc-operator-console/internal/token"
)

// newServer wires the full HTTP stack the way app.New does, with the
// file-backed store and audit trail rooted in a temp dir.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		RequestTimeout:    10 * time.Second,
		CORSOrigins:       []string{"*"},
		RateLimitRPM:      1000,
		AuthRateLimitRPM:  1000,
		StreamMaxDuration: time.Minute,
		StreamIdleTimeout: 30 * time.Second,
	}

	dir := t.TempDir()

	sessionStore, err := store.NewFile(filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	recorder, err := audit.NewFileRecorder(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	clk := clock.New()
	codec := token.NewCodec("integration-secret")

	authService := service.NewAuthService(directory.SeedAccounts(), service.Config{
		Codec:         codec,
		Store:         sessionStore,
		Audit:         recorder,
		Clock:         clk,
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		EmergencyCode: "break-glass-4711",
	})

	bus := event.NewBus()
	controller := session.NewController(authService, clk, bus, session.Options{})
	t.Cleanup(controller.Close)

	governor := lockout.NewGovernor(clk, lockout.DefaultMaxFailures, lockout.DefaultLockDuration)
	accessGuard := guard.New(guard.PermissiveMachinePolicy)

	r := router.New(
		cfg,
		middleware.NewAuthMiddleware(codec, accessGuard),
		handler.NewAuthHandler(authService, controller, governor, bus),
		handler.NewSessionHandler(controller),
		handler.NewAuditHandler(recorder),
		handler.NewEventsHandler(bus),
	)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func login(t *testing.T, server *httptest.Server, username string, password string) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp, decodeBody(t, resp.Body)
}

func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func doAuthRequest(t *testing.T, method string, url string, accessToken string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
