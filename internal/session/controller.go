package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cnc-operator-console/internal/clock"
	"cnc-operator-console/internal/event"
	"cnc-operator-console/internal/model"
)

// AuthClient is the slice of the auth service the controller needs.
type AuthClient interface {
	Login(ctx context.Context, credentials model.Credentials) model.AuthResponse
	Logout(ctx context.Context)
	RefreshToken(ctx context.Context) bool
	CurrentSession(ctx context.Context) (*model.Session, error)
	ClearSession(ctx context.Context)
}

type Options struct {
	// IdleTimeout is how long a session survives without user activity.
	IdleTimeout time.Duration
	// IdleCheckInterval is how often the idle breach check runs.
	IdleCheckInterval time.Duration
	// RefreshLead is how long before access-token expiry the automatic
	// refresh fires.
	RefreshLead time.Duration
}

func (o *Options) applyDefaults() {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Minute
	}
	if o.IdleCheckInterval <= 0 {
		o.IdleCheckInterval = 60 * time.Second
	}
	if o.RefreshLead <= 0 {
		o.RefreshLead = 5 * time.Minute
	}
}

// Controller orchestrates login, logout, refresh, activity tracking, and
// idle-timeout enforcement over the pure reducer. Every transition, whether
// from an HTTP call or a timer callback, serializes through one mutex, so an
// activity signal and a timeout check firing together cannot lose updates.
type Controller struct {
	auth  AuthClient
	clock clock.Clock
	bus   event.Bus
	opts  Options

	mu           sync.Mutex
	state        State
	generation   uint64
	refreshTimer clock.Timer
	idleTicker   clock.Ticker
	tickerDone   chan struct{}
	closed       bool
}

func NewController(auth AuthClient, clk clock.Clock, bus event.Bus, opts Options) *Controller {
	opts.applyDefaults()
	return &Controller{
		auth:  auth,
		clock: clk,
		bus:   bus,
		opts:  opts,
		state: State{Phase: PhaseIdle},
	}
}

// Restore attempts silent initialization from the persisted store: a valid
// unexpired session is adopted directly; present-but-corrupt data is
// cleared and the controller stays Idle.
func (c *Controller) Restore(ctx context.Context) {
	session, err := c.auth.CurrentSession(ctx)
	if err != nil {
		slog.Warn("persisted session unusable, clearing", "error", err)
		c.auth.ClearSession(ctx)
		return
	}
	if session == nil {
		return
	}
	// A session only ever belongs to an active account; a snapshot whose
	// account was deactivated since is as unusable as a corrupt one.
	if !session.Account.Active {
		slog.Warn("persisted session belongs to an inactive account, clearing",
			"username", session.Account.Username)
		c.auth.ClearSession(ctx)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	session.LastActivityAt = c.clock.Now()
	if session.IdleTimeout == 0 {
		session.IdleTimeout = c.opts.IdleTimeout
	}
	c.state = State{Phase: PhaseAuthenticated, Session: session}
	c.runEffectsLocked([]Effect{EffectArmTimers})
	slog.Info("session restored", "username", session.Account.Username)
}

// Login runs the full login flow. The blocking credential check happens
// outside the lock; a logout issued while it is in flight bumps the
// generation counter, and the stale result is discarded so the session ends
// LoggedOut regardless of arrival order.
func (c *Controller) Login(ctx context.Context, credentials model.Credentials) model.AuthResponse {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.AuthResponse{Success: false, Message: "session controller is shut down"}
	}

	next, _ := Reduce(c.state, LoginStarted{})
	if next.Phase != PhaseAuthenticating {
		c.mu.Unlock()
		return model.AuthResponse{Success: false, Message: "a session is already active"}
	}
	c.state = next
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	response := c.auth.Login(ctx, credentials)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation || c.state.Phase != PhaseAuthenticating {
		// Logout (or teardown) won the race.
		if response.Success {
			c.auth.ClearSession(ctx)
		}
		return model.AuthResponse{Success: false, Message: NoticeLoggedOut}
	}

	if !response.Success {
		c.applyLocked(LoginFailed{Message: response.Message})
		return response
	}

	now := c.clock.Now()
	session := model.Session{
		Account:        *response.Account,
		AccessToken:    response.AccessToken,
		RefreshToken:   response.RefreshToken,
		ExpiresAt:      now.Add(time.Duration(response.ExpiresIn) * time.Second),
		LastActivityAt: now,
		IdleTimeout:    c.opts.IdleTimeout,
	}
	c.applyLocked(LoginSucceeded{Session: session})
	c.publishLocked(event.TypeSessionLogin, session.Account.Username, "")
	return response
}

// Logout ends the session unconditionally and wins against any in-flight
// login.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	username := ""
	if c.state.Session != nil {
		username = c.state.Session.Account.Username
	}
	before := c.state.Phase
	c.applyLocked(LogoutRequested{})
	if before == PhaseAuthenticated || before == PhaseAuthenticating {
		c.publishLocked(event.TypeSessionLogout, username, NoticeLoggedOut)
	}
	c.mu.Unlock()

	// Clears the store again (idempotent) and notifies revocation.
	c.auth.Logout(ctx)
}

// RecordActivity marks "now" as the last user interaction. It is a no-op
// unless authenticated; background refreshes never come through here.
func (c *Controller) RecordActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(ActivityObserved{At: c.clock.Now()})
}

// CheckIdle compares idle time against the session's idle timeout and
// forces a logout on breach. Called by the periodic ticker; exported so
// tests can drive it with virtual time.
func (c *Controller) CheckIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != PhaseAuthenticated {
		return
	}

	session := c.state.Session
	if c.clock.Now().Sub(session.LastActivityAt) < session.IdleTimeout {
		return
	}

	username := session.Account.Username
	c.generation++
	c.applyLocked(IdleTimedOut{})
	c.publishLocked(event.TypeSessionIdleTimeout, username, NoticeIdleTimeout)
	slog.Info("session expired due to inactivity", "username", username)
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.state
	if state.Session != nil {
		session := *state.Session
		state.Session = &session
	}
	return state
}

func (c *Controller) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == PhaseAuthenticated
}

// Close disarms every timer and discards any in-flight result so nothing
// fires against a destroyed session.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.generation++
	c.disarmTimersLocked()
}

// applyLocked routes an event through the pure reducer and performs the
// effects it demands. Callers hold c.mu.
func (c *Controller) applyLocked(ev Event) {
	next, effects := Reduce(c.state, ev)
	c.state = next
	c.runEffectsLocked(effects)
}

func (c *Controller) runEffectsLocked(effects []Effect) {
	for _, effect := range effects {
		switch effect {
		case EffectArmTimers:
			c.armRefreshLocked()
			c.startIdleTickerLocked()
		case EffectRearmRefresh:
			c.armRefreshLocked()
		case EffectDisarmTimers:
			c.disarmTimersLocked()
		case EffectClearSession:
			c.auth.ClearSession(context.Background())
		}
	}
}

func (c *Controller) armRefreshLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	if c.state.Session == nil {
		return
	}

	fireAt := c.state.Session.ExpiresAt.Add(-c.opts.RefreshLead)
	delay := fireAt.Sub(c.clock.Now())
	if delay < 0 {
		delay = 0
	}
	c.refreshTimer = c.clock.AfterFunc(delay, c.refreshNow)
}

func (c *Controller) startIdleTickerLocked() {
	if c.idleTicker != nil {
		return
	}

	ticker := c.clock.NewTicker(c.opts.IdleCheckInterval)
	done := make(chan struct{})
	c.idleTicker = ticker
	c.tickerDone = done

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C():
				c.CheckIdle()
			}
		}
	}()
}

func (c *Controller) disarmTimersLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	if c.idleTicker != nil {
		c.idleTicker.Stop()
		c.idleTicker = nil
	}
	if c.tickerDone != nil {
		close(c.tickerDone)
		c.tickerDone = nil
	}
}

// Refresh replaces the access token immediately instead of waiting for the
// timer, reporting whether the replacement succeeded. A failure forces the
// same logout as a failed automatic refresh.
func (c *Controller) Refresh(ctx context.Context) bool {
	return c.refresh(ctx)
}

func (c *Controller) refreshNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.refresh(ctx)
}

// refresh runs the blocking token refresh outside the lock; the generation
// check discards the result if the session ended meanwhile.
func (c *Controller) refresh(ctx context.Context) bool {
	c.mu.Lock()
	if c.state.Phase != PhaseAuthenticated {
		c.mu.Unlock()
		return false
	}
	generation := c.generation
	c.mu.Unlock()

	refreshed := c.auth.RefreshToken(ctx)
	var session *model.Session
	if refreshed {
		current, err := c.auth.CurrentSession(ctx)
		if err != nil || current == nil {
			refreshed = false
		} else {
			session = current
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation || c.state.Phase != PhaseAuthenticated {
		return false
	}

	if !refreshed {
		username := c.state.Session.Account.Username
		c.generation++
		c.applyLocked(RefreshFailed{})
		c.publishLocked(event.TypeSessionRefreshFailed, username, NoticeRefreshFailed)
		slog.Warn("session refresh failed", "username", username)
		return false
	}

	c.applyLocked(Refreshed{Session: *session})
	c.publishLocked(event.TypeSessionRefreshed, session.Account.Username, "")
	return true
}

func (c *Controller) publishLocked(eventType event.Type, username string, notice string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.Event{
		Type:       eventType,
		Username:   username,
		Notice:     notice,
		OccurredAt: c.clock.Now(),
	})
}
