package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cnc-operator-console/internal/audit"
	"cnc-operator-console/internal/clock"
	"cnc-operator-console/internal/guard"
	"cnc-operator-console/internal/model"
	"cnc-operator-console/internal/store"
	"cnc-operator-console/internal/token"
)

const (
	// Unknown user, wrong password, and inactive account all produce this
	// exact message so a caller cannot tell which check failed.
	msgInvalidCredentials = "invalid username or password"
	msgMissingFields      = "username and password are required"
	msgServiceUnavailable = "authentication service unavailable, try again"
)

// ShiftPolicy decides whether an account may log in under a shift code.
// The default grants any active account.
type ShiftPolicy func(account model.Account, shiftCode string) bool

func PermissiveShiftPolicy(account model.Account, _ string) bool {
	return account.Active
}

// Config carries the collaborators of an AuthService. Zero values get
// sensible defaults so tests can construct a service from almost nothing.
type Config struct {
	Codec         *token.Codec
	Store         store.Store
	Audit         audit.Recorder
	Clock         clock.Clock
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	MachinePolicy guard.MachinePolicy
	ShiftPolicy   ShiftPolicy
	Revoker       *Revoker
	EmergencyCode string
}

// AuthService is the stateless business logic of the session core: it
// validates credentials against the roster, mints and refreshes tokens, and
// answers permission, role, and machine queries against the persisted
// account snapshot. It is the only component that writes the session store.
type AuthService struct {
	codec         *token.Codec
	store         store.Store
	audit         audit.Recorder
	clock         clock.Clock
	accessTTL     time.Duration
	refreshTTL    time.Duration
	machinePolicy guard.MachinePolicy
	shiftPolicy   ShiftPolicy
	revoker       *Revoker
	emergencyCode string

	mu                 sync.RWMutex
	accountsByUsername map[string]*model.Account
}

func NewAuthService(accounts []model.Account, cfg Config) *AuthService {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.MachinePolicy == nil {
		cfg.MachinePolicy = guard.PermissiveMachinePolicy
	}
	if cfg.ShiftPolicy == nil {
		cfg.ShiftPolicy = PermissiveShiftPolicy
	}

	byUsername := make(map[string]*model.Account, len(accounts))
	for i := range accounts {
		account := accounts[i]
		byUsername[strings.ToLower(account.Username)] = &account
	}

	return &AuthService{
		codec:              cfg.Codec,
		store:              cfg.Store,
		audit:              cfg.Audit,
		clock:              cfg.Clock,
		accessTTL:          cfg.AccessTTL,
		refreshTTL:         cfg.RefreshTTL,
		machinePolicy:      cfg.MachinePolicy,
		shiftPolicy:        cfg.ShiftPolicy,
		revoker:            cfg.Revoker,
		emergencyCode:      cfg.EmergencyCode,
		accountsByUsername: byUsername,
	}
}

// Login validates credentials and, on success, mints an access/refresh
// token pair and persists the session. It never returns an error: every
// failure becomes a structured response safe to show the operator.
func (s *AuthService) Login(ctx context.Context, credentials model.Credentials) model.AuthResponse {
	username := strings.ToLower(strings.TrimSpace(credentials.Username))
	if username == "" || credentials.Password == "" {
		return s.loginFailure(ctx, username, msgMissingFields)
	}

	s.mu.RLock()
	account, exists := s.accountsByUsername[username]
	var snapshot model.Account
	if exists {
		snapshot = *account
	}
	s.mu.RUnlock()

	if !exists || !snapshot.Active {
		return s.loginFailure(ctx, username, msgInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(snapshot.PasswordHash), []byte(credentials.Password)); err != nil {
		return s.loginFailure(ctx, username, msgInvalidCredentials)
	}

	if credentials.MachineID != "" && !s.machinePolicy(snapshot, credentials.MachineID) {
		return s.loginFailure(ctx, username, fmt.Sprintf("machine access denied: %s", credentials.MachineID))
	}
	if credentials.ShiftCode != "" && !s.shiftPolicy(snapshot, credentials.ShiftCode) {
		return s.loginFailure(ctx, username, "shift access denied")
	}

	now := s.clock.Now()
	accessToken, err := s.codec.Encode(token.Payload{
		Subject:     snapshot.ID,
		Username:    snapshot.Username,
		Role:        snapshot.Role,
		Permissions: snapshot.Permissions,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.accessTTL),
	})
	if err != nil {
		slog.Error("mint access token", "error", err)
		return model.AuthResponse{Success: false, Message: msgServiceUnavailable}
	}

	refreshToken, err := s.codec.Encode(token.Payload{
		Subject:     snapshot.ID,
		Username:    snapshot.Username,
		Role:        snapshot.Role,
		Permissions: snapshot.Permissions,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.refreshTTL),
	})
	if err != nil {
		slog.Error("mint refresh token", "error", err)
		return model.AuthResponse{Success: false, Message: msgServiceUnavailable}
	}

	snapshot.LastLogin = now
	s.mu.Lock()
	account.LastLogin = now
	s.mu.Unlock()

	if err := s.persistSession(ctx, snapshot, accessToken, refreshToken); err != nil {
		slog.Error("persist session", "error", err)
		return model.AuthResponse{Success: false, Message: msgServiceUnavailable}
	}

	slog.Info("login succeeded", "username", snapshot.Username, "role", snapshot.Role)
	return model.AuthResponse{
		Success:      true,
		Account:      &snapshot,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}
}

// persistSession writes the three store entries as one logical unit: a
// failure partway through is followed by a full clear, never a partial
// session.
func (s *AuthService) persistSession(ctx context.Context, account model.Account, accessToken string, refreshToken string) error {
	snapshot, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account snapshot: %w", err)
	}

	writes := []struct {
		key   string
		value string
	}{
		{store.KeyAccessToken, accessToken},
		{store.KeyRefreshToken, refreshToken},
		{store.KeyAccount, string(snapshot)},
	}

	for _, write := range writes {
		if err := s.store.Set(ctx, write.key, write.value); err != nil {
			if clearErr := s.store.Clear(ctx); clearErr != nil {
				slog.Error("clear partially written session", "error", clearErr)
			}
			return fmt.Errorf("persist %s: %w", write.key, err)
		}
	}
	return nil
}

func (s *AuthService) loginFailure(ctx context.Context, username string, message string) model.AuthResponse {
	s.recordAudit(ctx, audit.Entry{
		Action:   audit.ActionLoginFailed,
		Username: username,
		Outcome:  audit.OutcomeDenied,
		Reason:   message,
	})
	return model.AuthResponse{Success: false, Message: message}
}

// Logout clears the persisted session unconditionally and notifies the
// remote revocation endpoint best-effort. A failed notification is logged,
// never surfaced, and never blocks the local logout.
func (s *AuthService) Logout(ctx context.Context) {
	refreshToken, _ := s.store.Get(ctx, store.KeyRefreshToken)

	if err := s.store.Clear(ctx); err != nil {
		slog.Error("clear session store on logout", "error", err)
	}

	if s.revoker != nil && refreshToken != "" {
		if err := s.revoker.Revoke(ctx, refreshToken); err != nil {
			slog.Warn("token revocation notification failed", "error", err)
		}
	}
}

// RefreshToken mints a new access token from the persisted refresh token,
// leaving the refresh token and account snapshot untouched. It reports
// whether the replacement succeeded.
func (s *AuthService) RefreshToken(ctx context.Context) bool {
	refreshToken, err := s.store.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		return false
	}

	payload, err := s.codec.Decode(refreshToken)
	if err != nil {
		return false
	}

	s.mu.RLock()
	account, exists := s.accountsByUsername[strings.ToLower(payload.Username)]
	var snapshot model.Account
	if exists {
		snapshot = *account
	}
	s.mu.RUnlock()

	if !exists || !snapshot.Active {
		return false
	}

	now := s.clock.Now()
	accessToken, err := s.codec.Encode(token.Payload{
		Subject:     snapshot.ID,
		Username:    snapshot.Username,
		Role:        snapshot.Role,
		Permissions: snapshot.Permissions,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.accessTTL),
	})
	if err != nil {
		slog.Error("mint refreshed access token", "error", err)
		return false
	}

	if err := s.store.Set(ctx, store.KeyAccessToken, accessToken); err != nil {
		slog.Error("persist refreshed access token", "error", err)
		return false
	}

	slog.Info("access token refreshed", "username", snapshot.Username)
	return true
}

// CurrentAccount returns the persisted account snapshot, or
// model.ErrUnauthorized when no session exists.
func (s *AuthService) CurrentAccount(ctx context.Context) (model.Account, error) {
	raw, err := s.store.Get(ctx, store.KeyAccount)
	if err != nil {
		return model.Account{}, model.ErrUnauthorized
	}

	var account model.Account
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		return model.Account{}, fmt.Errorf("decode account snapshot: %w", err)
	}
	return account, nil
}

// CurrentSession reconstructs the session from the persisted entries.
// (nil, nil) means no session; a non-nil error means entries are present
// but unusable (corrupt snapshot or expired/invalid token) and the caller
// should clear the store.
func (s *AuthService) CurrentSession(ctx context.Context) (*model.Session, error) {
	accessToken, err := s.store.Get(ctx, store.KeyAccessToken)
	if err != nil {
		return nil, nil
	}
	refreshToken, err := s.store.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		return nil, nil
	}
	rawAccount, err := s.store.Get(ctx, store.KeyAccount)
	if err != nil {
		return nil, nil
	}

	var account model.Account
	if err := json.Unmarshal([]byte(rawAccount), &account); err != nil {
		return nil, fmt.Errorf("decode account snapshot: %w", err)
	}

	payload, err := s.codec.Decode(accessToken)
	if err != nil {
		return nil, fmt.Errorf("decode persisted access token: %w", err)
	}

	return &model.Session{
		Account:      account,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    payload.ExpiresAt,
	}, nil
}

// ClearSession removes all persisted entries without the revocation side
// effect. Used to recover from corrupt persisted state.
func (s *AuthService) ClearSession(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		slog.Error("clear session store", "error", err)
	}
}

// HasPermission reports whether the persisted account holds the named
// permission. Unauthenticated always answers false.
func (s *AuthService) HasPermission(ctx context.Context, permission string) bool {
	account, err := s.CurrentAccount(ctx)
	if err != nil {
		return false
	}
	return account.HasPermission(permission)
}

// HasRole reports whether the persisted account's role is at least the
// required one in the role hierarchy.
func (s *AuthService) HasRole(ctx context.Context, required model.Role) bool {
	account, err := s.CurrentAccount(ctx)
	if err != nil {
		return false
	}
	return account.Role.AtLeast(required)
}

// CanAccessMachine consults the pluggable machine policy for the persisted
// account.
func (s *AuthService) CanAccessMachine(ctx context.Context, machineID string) bool {
	account, err := s.CurrentAccount(ctx)
	if err != nil {
		return false
	}
	return s.machinePolicy(account, machineID)
}

// IsTokenExpired treats any decode failure as expired.
func (s *AuthService) IsTokenExpired(tokenString string) bool {
	return s.codec.IsExpired(tokenString)
}

// EmergencyAccess checks the supplied code against the configured bypass
// code. Every invocation is audited regardless of outcome; no session
// change is implied by a grant.
func (s *AuthService) EmergencyAccess(ctx context.Context, code string, reason string) bool {
	granted := s.emergencyCode != "" &&
		subtle.ConstantTimeCompare([]byte(code), []byte(s.emergencyCode)) == 1

	outcome := audit.OutcomeDenied
	if granted {
		outcome = audit.OutcomeGranted
	}

	username := ""
	if account, err := s.CurrentAccount(ctx); err == nil {
		username = account.Username
	}

	s.recordAudit(ctx, audit.Entry{
		Action:   audit.ActionEmergencyAccess,
		Username: username,
		Outcome:  outcome,
		Reason:   reason,
	})

	if granted {
		slog.Warn("emergency access granted", "username", username, "reason", reason)
	} else {
		slog.Warn("emergency access denied", "username", username, "reason", reason)
	}
	return granted
}

// RecordLockout audits a lockout trip so repeated brute-force attempts are
// visible after the fact.
func (s *AuthService) RecordLockout(ctx context.Context, username string, duration time.Duration) {
	s.recordAudit(ctx, audit.Entry{
		Action:   audit.ActionLockout,
		Username: strings.ToLower(strings.TrimSpace(username)),
		Outcome:  audit.OutcomeDenied,
		Reason:   fmt.Sprintf("locked for %s after repeated failures", duration),
	})
}

func (s *AuthService) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.OccurredAt = s.clock.Now()
	if err := s.audit.Record(ctx, entry); err != nil {
		slog.Error("record audit entry", "action", entry.Action, "error", err)
	}
}
