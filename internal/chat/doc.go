// Package chat holds the locally mirrored conversation state.
//
// # Overview
//
// The Manager owns the set of chats and projects for the signed-in user.
// It mirrors the persistent store: every mutation persists remotely first
// and only updates the in-memory lists after the store confirms the write,
// so a failed call leaves local state exactly as it was. There are no
// automatic retries; resilience is the caller's decision.
//
// # Operations
//
//   - LoadChats / LoadProjects: full replace-fetch, store-ordered
//   - CreateProject: validate name locally, persist, append
//   - RenameProject / MoveChatToProject / DeleteChat / RecordChat:
//     persist-then-mutate
//   - DeleteProject: detach referencing chats, then delete, mirrored in a
//     single local state update
//   - Grouped: derived project → chats view, recomputed on every read
//
// # Ownership
//
// All operations require a resolved session and fail fast with
// ErrAuthRequired otherwise. Held state belongs to one authenticated user
// at a time; Reset discards it on sign-out. Snapshots returned by Chats,
// Projects, and Grouped are copies and safe to retain.
package chat
