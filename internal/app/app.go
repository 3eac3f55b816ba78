// ABOUTME: Application context owning the session and conversation managers
// ABOUTME: Explicit construct → initialize → operate → dispose lifecycle, no ambient globals

package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/coven-deck/internal/api"
	"github.com/2389/coven-deck/internal/chat"
	"github.com/2389/coven-deck/internal/config"
	"github.com/2389/coven-deck/internal/identity"
	"github.com/2389/coven-deck/internal/prefs"
	"github.com/2389/coven-deck/internal/session"
	"github.com/2389/coven-deck/internal/store"
)

// App wires the managers together and owns their lifecycle. Every instance
// is explicit: consumers receive an *App rather than reaching for globals.
type App struct {
	Config   *config.Config
	Sessions *session.Manager
	Chats    *chat.Manager
	Backend  *api.Client
	Prefs    *prefs.Prefs

	provider  identity.Provider
	store     store.Store
	prefsPath string
	logger    *slog.Logger
}

// Options overrides pieces of the default wiring.
type Options struct {
	Provider  identity.Provider // defaults per config.Identity.Mode
	PrefsPath string            // defaults to prefs.DefaultPath()
	Logger    *slog.Logger
}

// New constructs an App from configuration. Nothing talks to the network
// until Initialize.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := opts.Provider
	if provider == nil {
		var err error
		provider, err = buildProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	p, err := prefs.Load(prefsPath)
	if err != nil {
		logger.Warn("preferences unreadable, using defaults", "error", err)
		p = prefs.Default()
	}

	sessions := session.NewManager(provider, logger)
	chats := chat.NewManager(st, sessions, logger)

	a := &App{
		Config:    cfg,
		Sessions:  sessions,
		Chats:     chats,
		Backend:   api.NewClient(cfg.API.URL, sessions, logger),
		Prefs:     p,
		provider:  provider,
		store:     st,
		prefsPath: prefsPath,
		logger:    logger.With("component", "app"),
	}

	// Conversation state lives and dies with the session that loaded it.
	sessions.OnChange(a.onSessionChange)

	return a, nil
}

// buildProvider constructs the identity provider named by the config.
func buildProvider(cfg *config.Config, logger *slog.Logger) (identity.Provider, error) {
	switch cfg.Identity.Mode {
	case config.IdentityModeLocal:
		path := cfg.Database.Path + ".identity"
		return identity.NewLocalProvider(path, []byte(cfg.Identity.JWTSecret))
	default:
		return identity.NewHTTPProvider(identity.HTTPProviderOptions{
			BaseURL:   cfg.Identity.URL,
			APIKey:    cfg.Identity.APIKey,
			CachePath: cfg.Database.Path + ".session",
			Logger:    logger,
		})
	}
}

// Initialize resolves the session and, when one exists, loads conversation
// state. Load failures are soft: an unreachable store should not block
// the client from starting.
func (a *App) Initialize(ctx context.Context) {
	a.Sessions.Initialize(ctx)

	if _, ok := a.Sessions.Current(); !ok {
		return
	}
	if err := a.Chats.LoadChats(ctx); err != nil {
		a.logger.Warn("initial chat load failed", "error", err)
	}
	if err := a.Chats.LoadProjects(ctx); err != nil {
		a.logger.Warn("initial project load failed", "error", err)
	}
}

// onSessionChange keeps conversation state consistent with identity: any
// session change discards held state, and a user switch triggers a reload
// under the new identity.
func (a *App) onSessionChange(sess *identity.Session) {
	a.Chats.Reset()
	if sess == nil {
		return
	}

	if a.Prefs.LastUserID != sess.UserID {
		a.Prefs.LastUserID = sess.UserID
		if err := a.Prefs.Save(a.prefsPath); err != nil {
			a.logger.Warn("failed to persist preferences", "error", err)
		}
	}

	ctx := context.Background()
	if err := a.Chats.LoadChats(ctx); err != nil {
		a.logger.Warn("chat reload failed", "error", err)
	}
	if err := a.Chats.LoadProjects(ctx); err != nil {
		a.logger.Warn("project reload failed", "error", err)
	}
}

// SavePrefs persists the current preferences.
func (a *App) SavePrefs() error {
	return a.Prefs.Save(a.prefsPath)
}

// Close tears down the session subscription and closes the store and
// provider. The App must not be used afterwards.
func (a *App) Close() error {
	a.Sessions.Close()
	if err := a.provider.Close(); err != nil {
		a.logger.Warn("provider close failed", "error", err)
	}
	return a.store.Close()
}
