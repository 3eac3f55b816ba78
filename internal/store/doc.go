// Package store provides the persistent-store boundary for coven-deck.
//
// # Overview
//
// The store holds the durable record of a user's chats and projects. The
// client treats it as authoritative: the in-memory state held by the chat
// manager is only ever a mirror of what the store has confirmed.
//
// # Tables
//
// Two tables, both scoped by user_id:
//
//	projects(id, user_id, name, created_at)
//	chats(id, project_id NULLABLE, title, content, user_id, created_at, updated_at)
//
// A chat's project_id is a soft reference: deleting a project detaches its
// chats (project_id set to NULL) rather than cascading the delete.
//
// # Implementations
//
//   - SQLiteStore: modernc.org/sqlite, WAL mode, automatic schema creation.
//   - MockStore: in-memory, with per-method error injection for tests.
package store
