// ABOUTME: ConversationStore managing the user's chats and projects
// ABOUTME: Persist-then-mutate CRUD with a derived grouped view, scoped to the signed-in user

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-deck/internal/identity"
	"github.com/2389/coven-deck/internal/store"
)

// GroupUngrouped is the sentinel grouping key for chats with no project.
const GroupUngrouped = "ungrouped"

var (
	// ErrAuthRequired is returned when an operation is attempted with no
	// resolved session. No remote call is made.
	ErrAuthRequired = errors.New("authentication required")

	// ErrEmptyName is returned when a project name is blank after trimming.
	ErrEmptyName = errors.New("project name must not be empty")
)

// Backend defines what the manager needs from the persistent store.
// store.Store satisfies it.
type Backend interface {
	ListChats(ctx context.Context, userID string) ([]*store.Chat, error)
	UpsertChat(ctx context.Context, chat *store.Chat) error
	ListProjects(ctx context.Context, userID string) ([]*store.Project, error)
	InsertProject(ctx context.Context, project *store.Project) error
	RenameProject(ctx context.Context, userID, id, name string) error
	DeleteProject(ctx context.Context, userID, id string) error
	DetachProjectChats(ctx context.Context, userID, projectID string) error
	SetChatProject(ctx context.Context, userID, chatID string, projectID *string) error
	DeleteChat(ctx context.Context, userID, chatID string) error
}

// SessionSource defines what the manager needs from the session layer.
type SessionSource interface {
	Current() (identity.Session, bool)
}

// Manager holds the locally mirrored set of chats and projects for the
// authenticated user. Mutations persist remotely first; local state only
// changes after the store confirms the write, so a failed call leaves
// in-memory state exactly as it was.
//
// Two concurrent loads race last-response-wins over the held list. This is
// deliberate: the store's answer is authoritative either way, and callers
// that care race their own timer and discard the late result.
type Manager struct {
	backend  Backend
	sessions SessionSource
	logger   *slog.Logger

	mu       sync.RWMutex
	chats    []*store.Chat
	projects []*store.Project
	lastErr  error
}

// NewManager creates a conversation manager over the given backend.
func NewManager(backend Backend, sessions SessionSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:  backend,
		sessions: sessions,
		logger:   logger.With("component", "chat"),
	}
}

// userID resolves the current user or fails fast with ErrAuthRequired.
func (m *Manager) userID() (string, error) {
	sess, ok := m.sessions.Current()
	if !ok {
		return "", ErrAuthRequired
	}
	return sess.UserID, nil
}

// LoadChats replace-fetches the user's chats from the store. On failure the
// previously held list stays intact (stale-but-present beats empty) and the
// error is recorded and returned for the caller to retry.
func (m *Manager) LoadChats(ctx context.Context) error {
	userID, err := m.userID()
	if err != nil {
		return err
	}

	chats, err := m.backend.ListChats(ctx, userID)
	if err != nil {
		err = fmt.Errorf("loading chats: %w", err)
		m.recordErr(err)
		return err
	}

	m.mu.Lock()
	m.chats = chats
	m.mu.Unlock()
	return nil
}

// LoadProjects replace-fetches the user's projects from the store.
// Same failure contract as LoadChats.
func (m *Manager) LoadProjects(ctx context.Context) error {
	userID, err := m.userID()
	if err != nil {
		return err
	}

	projects, err := m.backend.ListProjects(ctx, userID)
	if err != nil {
		err = fmt.Errorf("loading projects: %w", err)
		m.recordErr(err)
		return err
	}

	m.mu.Lock()
	m.projects = projects
	m.mu.Unlock()
	return nil
}

// CreateProject persists a new project and appends it to the held list.
// Blank or whitespace-only names are rejected before any remote call.
func (m *Manager) CreateProject(ctx context.Context, name string) (*store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	userID, err := m.userID()
	if err != nil {
		return nil, err
	}

	project := &store.Project{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.backend.InsertProject(ctx, project); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	// Append rather than reload to avoid a round-trip; the next full load
	// restores created_at ordering.
	m.mu.Lock()
	cp := *project
	m.projects = append(m.projects, &cp)
	m.mu.Unlock()

	m.logger.Debug("project created", "project_id", project.ID)
	out := *project
	return &out, nil
}

// RenameProject renames a project, remote first. No local mutation happens
// until the store confirms the write.
func (m *Manager) RenameProject(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	userID, err := m.userID()
	if err != nil {
		return err
	}

	if err := m.backend.RenameProject(ctx, userID, id, name); err != nil {
		return fmt.Errorf("renaming project: %w", err)
	}

	m.mu.Lock()
	for _, p := range m.projects {
		if p.ID == id {
			p.Name = name
		}
	}
	m.mu.Unlock()
	return nil
}

// DeleteProject removes a project in two remote phases: detach every chat
// referencing it, then delete the project row. The delete only runs once
// the detach has succeeded, and the local mirror of both effects is applied
// in a single state update so no reader ever observes the project gone
// while chats still reference it, or the reverse.
func (m *Manager) DeleteProject(ctx context.Context, id string) error {
	userID, err := m.userID()
	if err != nil {
		return err
	}

	if err := m.backend.DetachProjectChats(ctx, userID, id); err != nil {
		return fmt.Errorf("detaching project chats: %w", err)
	}
	if err := m.backend.DeleteProject(ctx, userID, id); err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}

	m.mu.Lock()
	projects := m.projects[:0]
	for _, p := range m.projects {
		if p.ID != id {
			projects = append(projects, p)
		}
	}
	m.projects = projects
	for _, c := range m.chats {
		if c.ProjectID != nil && *c.ProjectID == id {
			c.ProjectID = nil
		}
	}
	m.mu.Unlock()

	m.logger.Debug("project deleted", "project_id", id)
	return nil
}

// RecordChat upserts a chat's index entry after backend activity, remote
// first. An entry already held keeps its project assignment, title, and
// creation time unless the incoming record sets them; a new entry is
// prepended so the list stays newest-first until the next full load.
func (m *Manager) RecordChat(ctx context.Context, c *store.Chat) error {
	userID, err := m.userID()
	if err != nil {
		return err
	}

	rec := *c
	rec.UserID = userID
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	m.mu.RLock()
	for _, held := range m.chats {
		if held.ID != rec.ID {
			continue
		}
		if rec.ProjectID == nil && held.ProjectID != nil {
			pid := *held.ProjectID
			rec.ProjectID = &pid
		}
		if rec.Title == "" {
			rec.Title = held.Title
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = held.CreatedAt
		}
		break
	}
	m.mu.RUnlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	if err := m.backend.UpsertChat(ctx, &rec); err != nil {
		return fmt.Errorf("recording chat: %w", err)
	}

	m.mu.Lock()
	replaced := false
	for i, held := range m.chats {
		if held.ID == rec.ID {
			cp := rec
			m.chats[i] = &cp
			replaced = true
			break
		}
	}
	if !replaced {
		cp := rec
		m.chats = append([]*store.Chat{&cp}, m.chats...)
	}
	m.mu.Unlock()
	return nil
}

// MoveChatToProject reassigns a chat's project, remote first. A nil
// projectID moves the chat to ungrouped.
func (m *Manager) MoveChatToProject(ctx context.Context, chatID string, projectID *string) error {
	userID, err := m.userID()
	if err != nil {
		return err
	}

	if err := m.backend.SetChatProject(ctx, userID, chatID, projectID); err != nil {
		return fmt.Errorf("moving chat: %w", err)
	}

	m.mu.Lock()
	for _, c := range m.chats {
		if c.ID == chatID {
			if projectID != nil {
				pid := *projectID
				c.ProjectID = &pid
			} else {
				c.ProjectID = nil
			}
		}
	}
	m.mu.Unlock()
	return nil
}

// DeleteChat removes a chat, remote first.
func (m *Manager) DeleteChat(ctx context.Context, chatID string) error {
	userID, err := m.userID()
	if err != nil {
		return err
	}

	if err := m.backend.DeleteChat(ctx, userID, chatID); err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}

	m.mu.Lock()
	chats := m.chats[:0]
	for _, c := range m.chats {
		if c.ID != chatID {
			chats = append(chats, c)
		}
	}
	m.chats = chats
	m.mu.Unlock()
	return nil
}

// Chats returns a snapshot of the held chats.
func (m *Manager) Chats() []*store.Chat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyChats(m.chats)
}

// Projects returns a snapshot of the held projects.
func (m *Manager) Projects() []*store.Project {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*store.Project, len(m.projects))
	for i, p := range m.projects {
		cp := *p
		out[i] = &cp
	}
	return out
}

// Grouped derives the grouping view: one key per held project plus
// GroupUngrouped, each mapped to its chats in held order. A chat whose
// project no longer exists buckets under GroupUngrouped, so every chat
// appears in exactly one group. The view is recomputed on every call and
// never cached across mutations.
func (m *Manager) Grouped() map[string][]*store.Chat {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make(map[string][]*store.Chat, len(m.projects)+1)
	groups[GroupUngrouped] = []*store.Chat{}
	known := make(map[string]bool, len(m.projects))
	for _, p := range m.projects {
		groups[p.ID] = []*store.Chat{}
		known[p.ID] = true
	}

	for _, c := range m.chats {
		key := GroupUngrouped
		if c.ProjectID != nil && known[*c.ProjectID] {
			key = *c.ProjectID
		}
		cp := *c
		groups[key] = append(groups[key], &cp)
	}
	return groups
}

// LastError returns the most recently recorded load error.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Reset discards all held state. Called on sign-out; chats and projects are
// re-fetchable and never survive the session that loaded them.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats = nil
	m.projects = nil
	m.lastErr = nil
}

func (m *Manager) recordErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

func copyChats(chats []*store.Chat) []*store.Chat {
	out := make([]*store.Chat, len(chats))
	for i, c := range chats {
		cp := *c
		if c.ProjectID != nil {
			pid := *c.ProjectID
			cp.ProjectID = &pid
		}
		out[i] = &cp
	}
	return out
}
