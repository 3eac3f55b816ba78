// Package session owns the authentication session lifecycle.
//
// Manager wraps an identity.Provider and keeps exactly one view of "who is
// signed in" per process:
//
//	mgr := session.NewManager(provider, logger)
//	mgr.Initialize(ctx)            // idempotent; subscribes once
//	err := mgr.SignInWithPassword(ctx, email, password)
//	sess, ok := mgr.Current()
//	_ = mgr.SignOut(ctx)           // clears locally even if remote fails
//
// State machine: Unauthenticated → Initializing → {Authenticated,
// Unauthenticated}, then Authenticated ⇄ Unauthenticated driven by
// sign-in, sign-out, and provider-pushed session changes. The manager has
// no terminal state; it lives for the process lifetime.
package session
