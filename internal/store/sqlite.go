// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides chat/project persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_projects_user_created
			ON projects(user_id, created_at);

		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			project_id TEXT,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_chats_user_updated
			ON chats(user_id, updated_at);

		CREATE INDEX IF NOT EXISTS idx_chats_project
			ON chats(project_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ListChats returns all chats for the user, newest activity first.
func (s *SQLiteStore) ListChats(ctx context.Context, userID string) ([]*Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, content, user_id, created_at, updated_at
		FROM chats
		WHERE user_id = ?
		ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		var c Chat
		var projectID sql.NullString
		if err := rows.Scan(&c.ID, &projectID, &c.Title, &c.Content, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		if projectID.Valid {
			c.ProjectID = &projectID.String
		}
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

// UpsertChat inserts or replaces a chat row.
func (s *SQLiteStore) UpsertChat(ctx context.Context, chat *Chat) error {
	var projectID sql.NullString
	if chat.ProjectID != nil {
		projectID = sql.NullString{String: *chat.ProjectID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, project_id, title, content, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			title = excluded.title,
			content = excluded.content,
			updated_at = excluded.updated_at`,
		chat.ID, projectID, chat.Title, chat.Content, chat.UserID, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting chat: %w", err)
	}
	return nil
}

// SetChatProject updates a chat's project association. A nil projectID
// detaches the chat (ungrouped).
func (s *SQLiteStore) SetChatProject(ctx context.Context, userID, chatID string, projectID *string) error {
	var pid sql.NullString
	if projectID != nil {
		pid = sql.NullString{String: *projectID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE chats SET project_id = ? WHERE id = ? AND user_id = ?`,
		pid, chatID, userID)
	if err != nil {
		return fmt.Errorf("updating chat project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat removes a chat row.
func (s *SQLiteStore) DeleteChat(ctx context.Context, userID, chatID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM chats WHERE id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProjects returns all projects for the user, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context, userID string) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM projects
		WHERE user_id = ?
		ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// InsertProject stores a new project.
func (s *SQLiteStore) InsertProject(ctx context.Context, project *Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)`,
		project.ID, project.UserID, project.Name, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// RenameProject updates a project's name.
func (s *SQLiteStore) RenameProject(ctx context.Context, userID, id, name string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ? WHERE id = ? AND user_id = ?`,
		name, id, userID)
	if err != nil {
		return fmt.Errorf("renaming project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes a project row. Callers must detach referencing
// chats first; the foreign key constraint rejects the delete otherwise.
func (s *SQLiteStore) DeleteProject(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DetachProjectChats clears project_id on every chat referencing the project.
func (s *SQLiteStore) DetachProjectChats(ctx context.Context, userID, projectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET project_id = NULL WHERE project_id = ? AND user_id = ?`,
		projectID, userID)
	if err != nil {
		return fmt.Errorf("detaching project chats: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
