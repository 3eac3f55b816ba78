// ABOUTME: Store interface and data types for coven-deck persistence
// ABOUTME: Defines Chat, Project structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Chat represents a persisted conversation, optionally grouped under a project.
// Chats are created by the message backend, never by this client; the client
// only relocates and deletes them.
type Chat struct {
	ID        string
	Title     string
	Content   string
	UserID    string
	ProjectID *string // nil means ungrouped
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Project represents a named grouping container for chats.
// Deleting a project detaches its chats; it never deletes them.
type Project struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Store defines the interface for chat and project persistence.
// Every query is scoped to a single user; cross-user reads are not permitted.
type Store interface {
	// Chats are listed newest-activity-first (updated_at descending).
	ListChats(ctx context.Context, userID string) ([]*Chat, error)
	UpsertChat(ctx context.Context, chat *Chat) error
	SetChatProject(ctx context.Context, userID, chatID string, projectID *string) error
	DeleteChat(ctx context.Context, userID, chatID string) error

	// Projects are listed newest-first (created_at descending).
	ListProjects(ctx context.Context, userID string) ([]*Project, error)
	InsertProject(ctx context.Context, project *Project) error
	RenameProject(ctx context.Context, userID, id, name string) error
	DeleteProject(ctx context.Context, userID, id string) error

	// DetachProjectChats clears project_id on every chat referencing the
	// project. It must run before DeleteProject so the project row is never
	// removed while chats still point at it.
	DetachProjectChats(ctx context.Context, userID, projectID string) error

	Close() error
}
