// ABOUTME: SessionManager owns authentication session state for the process
// ABOUTME: Idempotent initialization, latest-wins sign-in, forced clear on sign-out

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/2389/coven-deck/internal/identity"
)

// Local validation errors. These never reach the provider.
var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrMissingDisplayName = errors.New("display name is required")
)

// State describes where the manager is in its lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateInitializing
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Manager is the single source of truth for who is signed in.
//
// Every state-changing call is tagged with a monotonic request token taken
// before the provider round-trip. A result is only adopted if no later call
// has taken a newer token, so a slow response can never overwrite a session
// established by a faster, later call.
type Manager struct {
	provider identity.Provider
	logger   *slog.Logger

	mu          sync.Mutex
	initialized bool
	state       State
	session     *identity.Session
	lastErr     error
	loading     bool
	reqToken    uint64
	unsubscribe func()
	onChange    func(*identity.Session)
}

// NewManager creates a session manager over the given provider.
func NewManager(provider identity.Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		logger:   logger.With("component", "session"),
	}
}

// OnChange registers a hook fired after every session adoption or clear,
// with the new session or nil. Set it before Initialize; the hook runs
// outside the manager's lock.
func (m *Manager) OnChange(fn func(*identity.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Initialize adopts any existing remote session and subscribes to provider
// session-change notifications. It is idempotent: only the first call does
// work, and exactly one subscription is established for the life of the
// process. Provider errors are recorded via LastError and never returned;
// initialization always completes.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return
	}
	// Set before any asynchronous step so a second caller observing the
	// flag can never start a duplicate initialization.
	m.initialized = true
	m.state = StateInitializing
	m.loading = true
	m.reqToken++
	tok := m.reqToken
	m.mu.Unlock()

	sess, err := m.provider.CurrentSession(ctx)
	if err != nil {
		m.logger.Warn("session rehydration failed", "error", err)
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		sess = nil
	}
	m.adoptIfCurrent(tok, sess)

	m.mu.Lock()
	if m.unsubscribe == nil {
		m.unsubscribe = m.provider.Subscribe(m.handleProviderChange)
	}
	m.loading = false
	if m.state == StateInitializing {
		m.state = StateUnauthenticated
	}
	m.mu.Unlock()
}

// SignInWithPassword delegates to the provider and adopts the returned
// session. On failure the prior state is untouched and the error returned.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	return m.signIn(func() (*identity.Session, error) {
		return m.provider.SignInWithPassword(ctx, email, password)
	})
}

// SignUpWithPassword registers a new account and adopts its session.
// A blank display name is rejected locally.
func (m *Manager) SignUpWithPassword(ctx context.Context, email, password, displayName string) error {
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	if displayName == "" {
		return ErrMissingDisplayName
	}
	return m.signIn(func() (*identity.Session, error) {
		return m.provider.SignUp(ctx, email, password, displayName)
	})
}

// signIn runs a provider call under a fresh request token and adopts the
// result only if no later call has superseded it.
func (m *Manager) signIn(call func() (*identity.Session, error)) error {
	m.mu.Lock()
	m.reqToken++
	tok := m.reqToken
	m.loading = true
	m.lastErr = nil
	m.mu.Unlock()

	sess, err := call()

	m.mu.Lock()
	m.loading = false
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	m.adoptIfCurrent(tok, sess)
	return nil
}

// SignInWithOAuthRedirect returns the authorize URL for an out-of-process
// redirect flow. No session is resolved here; the callback entry point
// re-runs Initialize semantics to adopt the result.
func (m *Manager) SignInWithOAuthRedirect(provider, redirectURL string) (string, error) {
	url, err := m.provider.SignInWithOAuth(provider, redirectURL)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return "", err
	}
	return url, nil
}

// SignOut delegates to the provider, then unconditionally clears local
// session state. Local state never claims an authentication the user
// explicitly terminated, so the clear happens even when the remote call
// fails; the remote error is still returned for display.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.reqToken++ // supersede any in-flight sign-in
	m.loading = true
	m.mu.Unlock()

	err := m.provider.SignOut(ctx)
	if err != nil {
		m.logger.Warn("remote sign-out failed, clearing local session anyway", "error", err)
	}

	m.mu.Lock()
	m.loading = false
	m.session = nil
	m.state = StateUnauthenticated
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(nil)
	}
	return err
}

// Current returns a snapshot of the active session.
func (m *Manager) Current() (identity.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return identity.Session{}, false
	}
	return *m.session, true
}

// AccessToken returns the active session's bearer token.
func (m *Manager) AccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", false
	}
	return m.session.AccessToken, true
}

// State returns the manager's lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loading reports whether a provider call is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// LastError returns the most recently recorded provider error.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// ClearError discards the recorded error.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = nil
}

// Close tears down the provider subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// handleProviderChange adopts pushed session changes (including token
// refresh) as the new authoritative state.
func (m *Manager) handleProviderChange(sess *identity.Session) {
	m.mu.Lock()
	m.reqToken++ // pushed state supersedes in-flight calls
	m.setSessionLocked(sess)
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(copySession(sess))
	}
}

// adoptIfCurrent replaces the session if tok is still the newest request.
// Stale results from superseded calls are dropped.
func (m *Manager) adoptIfCurrent(tok uint64, sess *identity.Session) {
	m.mu.Lock()
	if tok != m.reqToken {
		m.mu.Unlock()
		m.logger.Debug("dropping superseded session result")
		return
	}
	m.setSessionLocked(sess)
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(copySession(sess))
	}
}

// setSessionLocked atomically replaces (or clears) the active session.
// Must be called with mu held.
func (m *Manager) setSessionLocked(sess *identity.Session) {
	if sess == nil {
		m.session = nil
		m.state = StateUnauthenticated
		return
	}
	cp := *sess
	m.session = &cp
	m.state = StateAuthenticated
	m.lastErr = nil
}

func copySession(sess *identity.Session) *identity.Session {
	if sess == nil {
		return nil
	}
	cp := *sess
	return &cp
}
