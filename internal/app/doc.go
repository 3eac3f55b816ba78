// Package app assembles the deck client: identity provider, local store,
// session and conversation managers, preferences, and the backend API
// client. Consumers construct an App, call Initialize once, and Close it
// when done. The App keeps conversation state in lockstep with identity:
// signing out discards held chats and projects, and switching users
// reloads them under the new identity.
package app
