// Package api wraps the outbound message-send backend.
//
// The backend is opaque to the state-synchronization core: this client
// submits messages and fetches transcripts, attaching the current session's
// bearer token to every request, but never writes to the chat/project
// store directly. A 401 from the backend surfaces as an identity.AuthError
// so callers can route the user back through sign-in.
package api
