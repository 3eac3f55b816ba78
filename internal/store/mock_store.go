// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and inject per-method failures

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
// Each method consults its matching error field first, so tests can
// simulate remote failures without touching held data.
type MockStore struct {
	mu       sync.RWMutex
	chats    map[string]*Chat    // keyed by chat ID
	projects map[string]*Project // keyed by project ID

	ListChatsErr          error
	UpsertChatErr         error
	SetChatProjectErr     error
	DeleteChatErr         error
	ListProjectsErr       error
	InsertProjectErr      error
	RenameProjectErr      error
	DeleteProjectErr      error
	DetachProjectChatsErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		chats:    make(map[string]*Chat),
		projects: make(map[string]*Project),
	}
}

// ListChats returns the user's chats ordered by updated_at descending.
func (m *MockStore) ListChats(ctx context.Context, userID string) ([]*Chat, error) {
	if m.ListChatsErr != nil {
		return nil, m.ListChatsErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var chats []*Chat
	for _, c := range m.chats {
		if c.UserID != userID {
			continue
		}
		cp := *c
		chats = append(chats, &cp)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

// UpsertChat stores a chat, replacing any existing row with the same ID.
func (m *MockStore) UpsertChat(ctx context.Context, chat *Chat) error {
	if m.UpsertChatErr != nil {
		return m.UpsertChatErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := *chat
	m.chats[c.ID] = &c
	return nil
}

// SetChatProject updates a chat's project association.
func (m *MockStore) SetChatProject(ctx context.Context, userID, chatID string, projectID *string) error {
	if m.SetChatProjectErr != nil {
		return m.SetChatProjectErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[chatID]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	if projectID != nil {
		pid := *projectID
		c.ProjectID = &pid
	} else {
		c.ProjectID = nil
	}
	return nil
}

// DeleteChat removes a chat.
func (m *MockStore) DeleteChat(ctx context.Context, userID, chatID string) error {
	if m.DeleteChatErr != nil {
		return m.DeleteChatErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[chatID]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(m.chats, chatID)
	return nil
}

// ListProjects returns the user's projects ordered by created_at descending.
func (m *MockStore) ListProjects(ctx context.Context, userID string) ([]*Project, error) {
	if m.ListProjectsErr != nil {
		return nil, m.ListProjectsErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var projects []*Project
	for _, p := range m.projects {
		if p.UserID != userID {
			continue
		}
		cp := *p
		projects = append(projects, &cp)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

// InsertProject stores a new project.
func (m *MockStore) InsertProject(ctx context.Context, project *Project) error {
	if m.InsertProjectErr != nil {
		return m.InsertProjectErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := *project
	m.projects[p.ID] = &p
	return nil
}

// RenameProject updates a project's name.
func (m *MockStore) RenameProject(ctx context.Context, userID, id, name string) error {
	if m.RenameProjectErr != nil {
		return m.RenameProjectErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	p.Name = name
	return nil
}

// DeleteProject removes a project.
func (m *MockStore) DeleteProject(ctx context.Context, userID, id string) error {
	if m.DeleteProjectErr != nil {
		return m.DeleteProjectErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

// DetachProjectChats clears project_id on every chat referencing the project.
func (m *MockStore) DetachProjectChats(ctx context.Context, userID, projectID string) error {
	if m.DetachProjectChatsErr != nil {
		return m.DetachProjectChatsErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.chats {
		if c.UserID == userID && c.ProjectID != nil && *c.ProjectID == projectID {
			c.ProjectID = nil
		}
	}
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
