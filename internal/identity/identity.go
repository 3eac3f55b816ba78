// ABOUTME: Provider interface and Session type for the identity boundary
// ABOUTME: Defines AuthError taxonomy shared by all provider implementations

package identity

import (
	"context"
	"fmt"
	"time"
)

// AuthError codes
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeSessionExpired     = "session_expired"
	CodeProviderError      = "provider_error"
	CodeUnsupported        = "unsupported"
)

// AuthError represents an authentication failure surfaced by a provider.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth error: %s", e.Code)
	}
	return fmt.Sprintf("auth error: %s: %s", e.Code, e.Message)
}

// Session is the authenticated identity bound to the current process.
type Session struct {
	UserID       string
	Email        string
	DisplayName  string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the session's access token has passed its expiry.
// A zero ExpiresAt means the token does not expire.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Provider is the identity-provider boundary. Implementations issue and
// revoke sessions; they never hold client-side conversation state.
type Provider interface {
	// CurrentSession returns the active remote session, or nil if there
	// is none. A nil session with a nil error is a valid answer.
	CurrentSession(ctx context.Context) (*Session, error)

	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, displayName string) (*Session, error)

	// SignInWithOAuth returns the authorize URL for an out-of-process
	// redirect flow. The resulting session is adopted later, when the
	// callback re-runs session initialization.
	SignInWithOAuth(provider, redirectURL string) (string, error)

	SignOut(ctx context.Context) error

	// Subscribe registers a handler fired with the new session (or nil)
	// on every session change, including token refresh. The returned
	// function removes the handler.
	Subscribe(handler func(*Session)) (unsubscribe func())

	Close() error
}
