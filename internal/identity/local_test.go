// ABOUTME: Tests for the local identity provider
// ABOUTME: Verifies signup, password verification, token claims, and sign-out notification

package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.db")
	p, err := NewLocalProvider(path, []byte("test-secret-for-local-identity"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestLocalProvider_RequiresSecret(t *testing.T) {
	_, err := NewLocalProvider(filepath.Join(t.TempDir(), "users.db"), nil)
	assert.Error(t, err)
}

func TestLocalProvider_SignUpAndSignIn(t *testing.T) {
	p := createLocalProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "ada@example.com", "hunter22", "Ada")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.UserID)
	assert.Equal(t, "ada@example.com", sess.Email)
	assert.Equal(t, "Ada", sess.DisplayName)
	assert.NotEmpty(t, sess.AccessToken)

	// Sign back in with the same credentials
	again, err := p.SignInWithPassword(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, again.UserID)
}

func TestLocalProvider_WrongPassword(t *testing.T) {
	p := createLocalProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "ada@example.com", "hunter22", "Ada")
	require.NoError(t, err)

	_, err = p.SignInWithPassword(ctx, "ada@example.com", "wrong")
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, CodeInvalidCredentials, ae.Code)
}

func TestLocalProvider_UnknownEmail(t *testing.T) {
	p := createLocalProvider(t)

	_, err := p.SignInWithPassword(context.Background(), "nobody@example.com", "pw")
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, CodeInvalidCredentials, ae.Code)
}

func TestLocalProvider_DuplicateEmailRejected(t *testing.T) {
	p := createLocalProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "ada@example.com", "pw1", "Ada")
	require.NoError(t, err)

	_, err = p.SignUp(ctx, "ada@example.com", "pw2", "Imposter")
	assert.Error(t, err)
}

func TestLocalProvider_TokenCarriesIdentityClaims(t *testing.T) {
	p := createLocalProvider(t)

	sess, err := p.SignUp(context.Background(), "ada@example.com", "pw", "Ada")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(sess.AccessToken, claims)
	require.NoError(t, err)

	assert.Equal(t, sess.UserID, claims["sub"])
	assert.Equal(t, "ada@example.com", claims["email"])
	meta, ok := claims["user_metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", meta["full_name"])
}

func TestLocalProvider_CurrentSessionAndSignOut(t *testing.T) {
	p := createLocalProvider(t)
	ctx := context.Background()

	var notified []*Session
	unsubscribe := p.Subscribe(func(s *Session) {
		notified = append(notified, s)
	})
	defer unsubscribe()

	// No session before sign-in
	sess, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = p.SignUp(ctx, "ada@example.com", "pw", "Ada")
	require.NoError(t, err)

	sess, err = p.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)

	require.NoError(t, p.SignOut(ctx))

	sess, err = p.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	require.Len(t, notified, 2)
	assert.NotNil(t, notified[0], "sign-up notifies with the new session")
	assert.Nil(t, notified[1], "sign-out notifies with nil")
}

func TestLocalProvider_OAuthUnsupported(t *testing.T) {
	p := createLocalProvider(t)

	_, err := p.SignInWithOAuth("google", "https://app/callback")
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, CodeUnsupported, ae.Code)
}
