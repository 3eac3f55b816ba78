// Package identity provides the identity-provider boundary for coven-deck.
//
// The Provider interface is an opaque session issuer: it signs users in and
// out and pushes session-change notifications, but holds no conversation
// state. Two implementations exist:
//
//   - HTTPProvider speaks a GoTrue-style REST API (password grant, signup,
//     OAuth authorize URLs, refresh-token rotation) and caches the session
//     on disk between runs.
//   - LocalProvider keeps users in a local SQLite table with bcrypt hashes
//     and issues HS256 JWTs, for self-hosted single-machine installs.
//
// Authentication failures surface as *AuthError; transport failures wrap
// and propagate as plain errors.
package identity
