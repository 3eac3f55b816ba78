// ABOUTME: Local identity provider for self-hosted single-machine installs
// ABOUTME: Stores users in SQLite with bcrypt hashes and issues HS256 JWTs

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// defaultTokenTTL is how long locally issued access tokens remain valid.
const defaultTokenTTL = 24 * time.Hour

// dummyHash is compared against when a user doesn't exist, keeping login
// timing constant so usernames cannot be enumerated.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LocalProvider implements Provider against a local user database.
// It exists for self-hosted deployments that run without a remote identity
// service, and doubles as a real provider for integration tests.
type LocalProvider struct {
	db       *sql.DB
	secret   []byte
	tokenTTL time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	session *Session

	subs subscribers
}

// NewLocalProvider opens (or creates) the user database at path.
// The secret signs issued access tokens and must not be empty.
func NewLocalProvider(path string, secret []byte) (*LocalProvider, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret is required for local identity")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening identity database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating identity schema: %w", err)
	}

	return &LocalProvider{
		db:       db,
		secret:   secret,
		tokenTTL: defaultTokenTTL,
		logger:   slog.Default().With("component", "identity"),
	}, nil
}

// CurrentSession returns the session held in memory, if still valid.
// Local sessions do not survive process restarts.
func (p *LocalProvider) CurrentSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil, nil
	}
	if p.session.Expired() {
		p.session = nil
		return nil, nil
	}
	cp := *p.session
	return &cp, nil
}

// SignInWithPassword verifies credentials against the user table.
func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, avatar_url, password_hash
		FROM users WHERE email = ?`, email)

	var id, userEmail, displayName, avatarURL, hash string
	err := row.Scan(&id, &userEmail, &displayName, &avatarURL, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		// Dummy comparison keeps timing constant for unknown emails
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, &AuthError{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, &AuthError{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	}

	return p.issue(id, userEmail, displayName, avatarURL)
}

// SignUp creates a user and signs them in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	id := uuid.New().String()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, email, displayName, string(hash), time.Now().UTC())
	if err != nil {
		return nil, &AuthError{Code: CodeProviderError, Message: fmt.Sprintf("could not create account: %v", err)}
	}

	p.logger.Info("local account created", "email", email)
	return p.issue(id, email, displayName, "")
}

// SignInWithOAuth is not available for local identity.
func (p *LocalProvider) SignInWithOAuth(provider, redirectURL string) (string, error) {
	return "", &AuthError{Code: CodeUnsupported, Message: "oauth sign-in requires a remote identity service"}
}

// SignOut clears the held session and notifies subscribers.
// There is nothing remote to revoke.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	p.subs.notify(nil)
	return nil
}

// Subscribe registers a session-change handler.
func (p *LocalProvider) Subscribe(handler func(*Session)) func() {
	return p.subs.add(handler)
}

// Close closes the user database.
func (p *LocalProvider) Close() error {
	return p.db.Close()
}

// issue signs an access token and adopts the resulting session.
func (p *LocalProvider) issue(userID, email, displayName, avatarURL string) (*Session, error) {
	now := time.Now()
	expiresAt := now.Add(p.tokenTTL)

	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"user_metadata": map[string]any{
			"full_name":  displayName,
			"avatar_url": avatarURL,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	sess := &Session{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}

	p.mu.Lock()
	cp := *sess
	p.session = &cp
	p.mu.Unlock()

	p.subs.notify(sess)
	out := *sess
	return &out, nil
}
