// ABOUTME: HTTP identity provider speaking a GoTrue-style REST surface
// ABOUTME: Handles password grant, signup, OAuth authorize URLs, refresh, and session caching

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshSkew is how far before expiry a refresh is attempted.
const refreshSkew = 30 * time.Second

// HTTPProvider talks to a remote identity service over its REST API.
// Sessions are cached on disk so they survive process restarts.
type HTTPProvider struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	cachePath string
	logger    *slog.Logger

	mu           sync.Mutex
	session      *Session
	refreshTimer *time.Timer
	closed       bool

	subs subscribers
}

// HTTPProviderOptions configures a new HTTPProvider.
type HTTPProviderOptions struct {
	BaseURL   string
	APIKey    string
	CachePath string       // where the session is persisted; empty disables caching
	Client    *http.Client // defaults to a 30s-timeout client
	Logger    *slog.Logger // defaults to slog.Default
}

// NewHTTPProvider creates a provider for the given identity service URL.
func NewHTTPProvider(opts HTTPProviderOptions) (*HTTPProvider, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("identity base URL is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		baseURL:   opts.BaseURL,
		apiKey:    opts.APIKey,
		client:    client,
		cachePath: opts.CachePath,
		logger:    logger.With("component", "identity"),
	}, nil
}

// tokenResponse is the wire shape of a successful token grant.
type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
}

// userPayload is the identity service's user object.
type userPayload struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// errorResponse is the wire shape of an identity service failure.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
}

func (e *errorResponse) message() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Msg != "":
		return e.Msg
	default:
		return e.Error
	}
}

// CurrentSession returns the cached session, refreshing it if expired.
// Returns nil with no error when no session is held anywhere.
func (p *HTTPProvider) CurrentSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	sess := p.session
	if sess == nil {
		sess = p.loadCacheLocked()
	}
	p.mu.Unlock()

	if sess == nil {
		return nil, nil
	}

	if sess.Expired() {
		if sess.RefreshToken == "" {
			p.clear()
			return nil, &AuthError{Code: CodeSessionExpired, Message: "session expired and no refresh token held"}
		}
		refreshed, err := p.refresh(ctx, sess.RefreshToken)
		if err != nil {
			p.clear()
			return nil, err
		}
		return refreshed, nil
	}

	p.adopt(sess)
	cp := *sess
	return &cp, nil
}

// SignInWithPassword performs a password grant and adopts the session.
func (p *HTTPProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	tr, err := p.postToken(ctx, "password", body)
	if err != nil {
		return nil, err
	}
	return p.adoptToken(tr)
}

// SignUp registers a new account and adopts the returned session.
func (p *HTTPProvider) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"full_name": displayName},
	}
	var tr tokenResponse
	if err := p.postJSON(ctx, "/signup", body, "", &tr); err != nil {
		return nil, err
	}
	return p.adoptToken(&tr)
}

// SignInWithOAuth returns the authorize URL for the named OAuth provider.
func (p *HTTPProvider) SignInWithOAuth(provider, redirectURL string) (string, error) {
	if provider == "" {
		return "", &AuthError{Code: CodeProviderError, Message: "oauth provider name is required"}
	}
	q := url.Values{}
	q.Set("provider", provider)
	if redirectURL != "" {
		q.Set("redirect_to", redirectURL)
	}
	return p.baseURL + "/authorize?" + q.Encode(), nil
}

// SignOut revokes the session remotely, then clears the local cache and
// notifies subscribers regardless of the remote outcome.
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	var token string
	if p.session != nil {
		token = p.session.AccessToken
	}
	p.mu.Unlock()

	var remoteErr error
	if token != "" {
		remoteErr = p.postJSON(ctx, "/logout", nil, token, nil)
	}
	p.clear()
	return remoteErr
}

// Subscribe registers a session-change handler.
func (p *HTTPProvider) Subscribe(handler func(*Session)) func() {
	return p.subs.add(handler)
}

// Close stops the refresh timer. It does not revoke the session.
func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	return nil
}

// postToken performs a token grant of the given type.
func (p *HTTPProvider) postToken(ctx context.Context, grantType string, body any) (*tokenResponse, error) {
	var tr tokenResponse
	if err := p.postJSON(ctx, "/token?grant_type="+grantType, body, "", &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// postJSON issues a POST and decodes the response into out (if non-nil).
// 4xx responses are mapped to AuthError; everything else wraps as a plain error.
func (p *HTTPProvider) postJSON(ctx context.Context, path string, body any, bearer string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var er errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusUnprocessableEntity {
			msg := er.message()
			if msg == "" {
				msg = resp.Status
			}
			return &AuthError{Code: CodeInvalidCredentials, Message: msg}
		}
		return fmt.Errorf("identity service returned %s: %s", resp.Status, er.message())
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// adoptToken converts a token response into a Session and adopts it.
func (p *HTTPProvider) adoptToken(tr *tokenResponse) (*Session, error) {
	if tr.AccessToken == "" {
		return nil, &AuthError{Code: CodeProviderError, Message: "token response missing access token"}
	}

	sess := &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		sess.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	if tr.User != nil {
		sess.UserID = tr.User.ID
		sess.Email = tr.User.Email
		sess.DisplayName = metadataString(tr.User.UserMetadata, "full_name")
		sess.AvatarURL = metadataString(tr.User.UserMetadata, "avatar_url")
	} else if err := fillFromClaims(sess); err != nil {
		return nil, err
	}

	p.adopt(sess)
	p.subs.notify(sess)
	cp := *sess
	return &cp, nil
}

// fillFromClaims extracts identity fields from the access token's JWT claims.
// The token is parsed unverified: the provider signed it and this client
// only reads identity claims from it, it grants nothing based on them.
func fillFromClaims(sess *Session) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(sess.AccessToken, claims); err != nil {
		return &AuthError{Code: CodeProviderError, Message: fmt.Sprintf("unparseable access token: %v", err)}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return &AuthError{Code: CodeProviderError, Message: "access token missing sub claim"}
	}
	sess.UserID = sub
	sess.Email, _ = claims["email"].(string)
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		sess.DisplayName = metadataString(meta, "full_name")
		sess.AvatarURL = metadataString(meta, "avatar_url")
	}
	return nil
}

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	v, _ := meta[key].(string)
	return v
}

// refresh exchanges a refresh token for a new session and adopts it.
func (p *HTTPProvider) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	tr, err := p.postToken(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	return p.adoptToken(tr)
}

// adopt stores the session, persists it, and schedules the next refresh.
func (p *HTTPProvider) adopt(sess *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := *sess
	p.session = &cp
	p.saveCacheLocked(&cp)
	p.scheduleRefreshLocked(&cp)
}

// clear drops the session, removes the cache, and notifies subscribers.
func (p *HTTPProvider) clear() {
	p.mu.Lock()
	p.session = nil
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	if p.cachePath != "" {
		_ = os.Remove(p.cachePath)
	}
	p.mu.Unlock()

	p.subs.notify(nil)
}

// scheduleRefreshLocked arms a timer to refresh shortly before expiry.
// Must be called with mu held.
func (p *HTTPProvider) scheduleRefreshLocked(sess *Session) {
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	if p.closed || sess.ExpiresAt.IsZero() || sess.RefreshToken == "" {
		return
	}

	delay := time.Until(sess.ExpiresAt) - refreshSkew
	if delay < 0 {
		delay = 0
	}
	token := sess.RefreshToken
	p.refreshTimer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := p.refresh(ctx, token); err != nil {
			p.logger.Warn("session refresh failed", "error", err)
			p.clear()
		}
	})
}

// loadCacheLocked reads the persisted session, if any. Must be called with mu held.
func (p *HTTPProvider) loadCacheLocked() *Session {
	if p.cachePath == "" {
		return nil
	}
	data, err := os.ReadFile(p.cachePath)
	if err != nil {
		return nil
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		p.logger.Warn("discarding unreadable session cache", "path", p.cachePath, "error", err)
		_ = os.Remove(p.cachePath)
		return nil
	}
	return &sess
}

// saveCacheLocked persists the session with owner-only permissions.
// Must be called with mu held.
func (p *HTTPProvider) saveCacheLocked(sess *Session) {
	if p.cachePath == "" {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.cachePath), 0700); err != nil {
		p.logger.Warn("failed to create session cache directory", "error", err)
		return
	}
	if err := os.WriteFile(p.cachePath, data, 0600); err != nil {
		p.logger.Warn("failed to persist session cache", "error", err)
	}
}
