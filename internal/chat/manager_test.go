// ABOUTME: Tests for the conversation Manager
// ABOUTME: Verifies auth gating, persist-then-mutate ordering, detach atomicity, and grouping

package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-deck/internal/identity"
	"github.com/2389/coven-deck/internal/store"
)

// fakeSessions implements SessionSource for testing.
type fakeSessions struct {
	session *identity.Session
}

func (f *fakeSessions) Current() (identity.Session, bool) {
	if f.session == nil {
		return identity.Session{}, false
	}
	return *f.session, true
}

func signedIn(userID string) *fakeSessions {
	return &fakeSessions{session: &identity.Session{UserID: userID, Email: userID + "@example.com"}}
}

func seedStore(t *testing.T, s *store.MockStore, userID string) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertProject(ctx, &store.Project{ID: "proj-1", UserID: userID, Name: "research", CreatedAt: base}))
	require.NoError(t, s.InsertProject(ctx, &store.Project{ID: "proj-2", UserID: userID, Name: "writing", CreatedAt: base.Add(time.Hour)}))

	p1 := "proj-1"
	for i, chat := range []*store.Chat{
		{ID: "chat-1", Title: "one", ProjectID: &p1},
		{ID: "chat-2", Title: "two", ProjectID: &p1},
		{ID: "chat-3", Title: "three"},
	} {
		chat.UserID = userID
		chat.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		chat.UpdatedAt = chat.CreatedAt
		require.NoError(t, s.UpsertChat(ctx, chat))
	}
}

func loadedManager(t *testing.T, s *store.MockStore, userID string) *Manager {
	t.Helper()
	mgr := NewManager(s, signedIn(userID), nil)
	require.NoError(t, mgr.LoadChats(context.Background()))
	require.NoError(t, mgr.LoadProjects(context.Background()))
	return mgr
}

func TestManager_AuthRequired(t *testing.T) {
	mgr := NewManager(store.NewMockStore(), &fakeSessions{}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, mgr.LoadChats(ctx), ErrAuthRequired)
	assert.ErrorIs(t, mgr.LoadProjects(ctx), ErrAuthRequired)
	_, err := mgr.CreateProject(ctx, "name")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.ErrorIs(t, mgr.RenameProject(ctx, "proj-1", "name"), ErrAuthRequired)
	assert.ErrorIs(t, mgr.DeleteProject(ctx, "proj-1"), ErrAuthRequired)
	assert.ErrorIs(t, mgr.MoveChatToProject(ctx, "chat-1", nil), ErrAuthRequired)
	assert.ErrorIs(t, mgr.DeleteChat(ctx, "chat-1"), ErrAuthRequired)
	assert.ErrorIs(t, mgr.RecordChat(ctx, &store.Chat{ID: "chat-1"}), ErrAuthRequired)
}

func TestManager_LoadChats_FiltersByUser(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	seedOther := &store.Chat{ID: "chat-x", Title: "not mine", UserID: "user-2", UpdatedAt: time.Now()}
	require.NoError(t, s.UpsertChat(context.Background(), seedOther))

	mgr := loadedManager(t, s, "user-1")

	chats := mgr.Chats()
	require.Len(t, chats, 3)
	for _, c := range chats {
		assert.NotEqual(t, "chat-x", c.ID)
	}
}

func TestManager_LoadChats_FailureKeepsHeldList(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	s.ListChatsErr = errors.New("store unavailable")
	err := mgr.LoadChats(context.Background())
	require.Error(t, err)

	assert.Len(t, mgr.Chats(), 3, "stale-but-present beats empty")
	assert.Error(t, mgr.LastError())

	// Caller retries after the store recovers
	s.ListChatsErr = nil
	require.NoError(t, mgr.LoadChats(context.Background()))
	assert.Len(t, mgr.Chats(), 3)
}

func TestManager_CreateProject_RejectsBlankNames(t *testing.T) {
	s := store.NewMockStore()
	s.InsertProjectErr = errors.New("must never be reached")
	mgr := NewManager(s, signedIn("user-1"), nil)

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := mgr.CreateProject(context.Background(), name)
		assert.ErrorIs(t, err, ErrEmptyName, "name %q", name)
	}
	assert.Empty(t, mgr.Projects())
}

func TestManager_CreateProject_AppendsOnSuccess(t *testing.T) {
	s := store.NewMockStore()
	mgr := loadedManager(t, s, "user-1")

	project, err := mgr.CreateProject(context.Background(), "  my project  ")
	require.NoError(t, err)
	assert.Equal(t, "my project", project.Name, "name is trimmed")
	assert.NotEmpty(t, project.ID)

	held := mgr.Projects()
	require.Len(t, held, 1)
	assert.Equal(t, project.ID, held[0].ID)

	// The store saw the write too
	remote, err := s.ListProjects(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, remote, 1)
}

func TestManager_CreateProject_FailureLeavesListUnchanged(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	s.InsertProjectErr = errors.New("store unavailable")
	_, err := mgr.CreateProject(context.Background(), "doomed")
	require.Error(t, err)

	assert.Len(t, mgr.Projects(), 2)
}

func TestManager_RenameProject_PersistThenMutate(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	require.NoError(t, mgr.RenameProject(context.Background(), "proj-1", "renamed"))

	for _, p := range mgr.Projects() {
		if p.ID == "proj-1" {
			assert.Equal(t, "renamed", p.Name)
		}
	}
}

func TestManager_RenameProject_RemoteFailureLeavesNameUnchanged(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	s.RenameProjectErr = errors.New("store unavailable")
	err := mgr.RenameProject(context.Background(), "proj-1", "renamed")
	require.Error(t, err)

	for _, p := range mgr.Projects() {
		if p.ID == "proj-1" {
			assert.Equal(t, "research", p.Name, "no local mutation before remote confirmation")
		}
	}
}

func TestManager_RenameProject_NotFound(t *testing.T) {
	s := store.NewMockStore()
	mgr := loadedManager(t, s, "user-1")

	err := mgr.RenameProject(context.Background(), "missing", "name")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_DeleteProject_DetachesThenDeletes(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	require.NoError(t, mgr.DeleteProject(context.Background(), "proj-1"))

	// Project gone AND chats detached, atomically from a reader's view
	for _, p := range mgr.Projects() {
		assert.NotEqual(t, "proj-1", p.ID)
	}
	for _, c := range mgr.Chats() {
		if c.ID == "chat-1" || c.ID == "chat-2" {
			assert.Nil(t, c.ProjectID, "chat %s must be detached", c.ID)
		}
	}

	// Remote agrees
	remote, err := s.ListChats(context.Background(), "user-1")
	require.NoError(t, err)
	for _, c := range remote {
		assert.Nil(t, c.ProjectID)
	}
}

func TestManager_DeleteProject_DetachFailureStopsDelete(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	s.DetachProjectChatsErr = errors.New("store unavailable")
	err := mgr.DeleteProject(context.Background(), "proj-1")
	require.Error(t, err)

	// Nothing changed, remotely or locally
	remote, err := s.ListProjects(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, remote, 2, "phase 2 must not run when phase 1 fails")
	assert.Len(t, mgr.Projects(), 2)
	for _, c := range mgr.Chats() {
		if c.ID == "chat-1" {
			require.NotNil(t, c.ProjectID)
			assert.Equal(t, "proj-1", *c.ProjectID)
		}
	}
}

func TestManager_DeleteProject_DeleteFailureLeavesLocalStateIntact(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	s.DeleteProjectErr = errors.New("store unavailable")
	err := mgr.DeleteProject(context.Background(), "proj-1")
	require.Error(t, err)

	// No partial local application: project still held, chats still grouped
	assert.Len(t, mgr.Projects(), 2)
	grouped := mgr.Grouped()
	assert.Len(t, grouped["proj-1"], 2)
}

func TestManager_RecordChat_PrependsNewEntries(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	require.NoError(t, mgr.RecordChat(context.Background(), &store.Chat{
		ID:    "chat-new",
		Title: "fresh",
	}))

	held := mgr.Chats()
	require.Len(t, held, 4)
	assert.Equal(t, "chat-new", held[0].ID, "new chats surface at the top")
	assert.False(t, held[0].UpdatedAt.IsZero())

	// The store saw the write too
	remote, err := s.ListChats(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, remote, 4)
}

func TestManager_RecordChat_KeepsProjectAssignment(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	// Backend activity on a grouped chat must not ungroup it
	require.NoError(t, mgr.RecordChat(context.Background(), &store.Chat{
		ID:        "chat-1",
		UpdatedAt: time.Now().UTC(),
	}))

	grouped := mgr.Grouped()
	assert.Len(t, grouped["proj-1"], 2)
	for _, c := range mgr.Chats() {
		if c.ID == "chat-1" {
			assert.Equal(t, "one", c.Title, "empty incoming title keeps the held one")
			require.NotNil(t, c.ProjectID)
			assert.Equal(t, "proj-1", *c.ProjectID)
		}
	}
}

func TestManager_RecordChat_RemoteFailureLeavesListUnchanged(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	s.UpsertChatErr = errors.New("store unavailable")
	err := mgr.RecordChat(context.Background(), &store.Chat{ID: "chat-new", Title: "doomed"})
	require.Error(t, err)

	assert.Len(t, mgr.Chats(), 3)
}

func TestManager_MoveChatToProject_ThenUngroup(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")
	ctx := context.Background()

	proj2 := "proj-2"
	require.NoError(t, mgr.MoveChatToProject(ctx, "chat-1", &proj2))

	grouped := mgr.Grouped()
	assert.Len(t, grouped["proj-2"], 1)
	assert.Len(t, grouped["proj-1"], 1)

	require.NoError(t, mgr.MoveChatToProject(ctx, "chat-1", nil))

	grouped = mgr.Grouped()
	assert.Empty(t, grouped["proj-2"])
	ids := make([]string, 0, len(grouped[GroupUngrouped]))
	for _, c := range grouped[GroupUngrouped] {
		ids = append(ids, c.ID)
	}
	assert.Contains(t, ids, "chat-1", "chat ends up ungrouped, never under both groups")
}

func TestManager_MoveChatToProject_RemoteFailureLeavesChatInPlace(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	s.SetChatProjectErr = errors.New("store unavailable")
	proj2 := "proj-2"
	err := mgr.MoveChatToProject(context.Background(), "chat-1", &proj2)
	require.Error(t, err)

	grouped := mgr.Grouped()
	assert.Len(t, grouped["proj-1"], 2)
	assert.Empty(t, grouped["proj-2"])
}

func TestManager_DeleteChat(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	require.NoError(t, mgr.DeleteChat(context.Background(), "chat-3"))
	assert.Len(t, mgr.Chats(), 2)

	err := mgr.DeleteChat(context.Background(), "chat-3")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_Grouped_EveryChatInExactlyOneGroup(t *testing.T) {
	s := store.NewMockStore()
	ctx := context.Background()
	base := time.Now().UTC()

	// A spread of projects and chats, including a dangling project reference
	for i := 0; i < 4; i++ {
		require.NoError(t, s.InsertProject(ctx, &store.Project{
			ID: fmt.Sprintf("proj-%d", i), UserID: "user-1",
			Name: fmt.Sprintf("p%d", i), CreatedAt: base,
		}))
	}
	for i := 0; i < 20; i++ {
		chat := &store.Chat{
			ID:        fmt.Sprintf("chat-%d", i),
			Title:     fmt.Sprintf("c%d", i),
			UserID:    "user-1",
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}
		switch i % 3 {
		case 0:
			pid := fmt.Sprintf("proj-%d", i%4)
			chat.ProjectID = &pid
		case 1:
			dangling := "proj-deleted"
			chat.ProjectID = &dangling
		}
		require.NoError(t, s.UpsertChat(ctx, chat))
	}

	mgr := loadedManager(t, s, "user-1")
	grouped := mgr.Grouped()

	// One key per project plus the ungrouped sentinel
	assert.Len(t, grouped, 5)

	seen := make(map[string]int)
	total := 0
	for _, chats := range grouped {
		for _, c := range chats {
			seen[c.ID]++
			total++
		}
	}
	assert.Equal(t, len(mgr.Chats()), total, "no chat lost or duplicated")
	for id, count := range seen {
		assert.Equal(t, 1, count, "chat %s appears in exactly one group", id)
	}
}

func TestManager_Grouped_PreservesChatOrder(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	held := mgr.Chats()
	grouped := mgr.Grouped()

	var flatOrder []string
	for _, c := range held {
		if c.ProjectID != nil && *c.ProjectID == "proj-1" {
			flatOrder = append(flatOrder, c.ID)
		}
	}
	var groupOrder []string
	for _, c := range grouped["proj-1"] {
		groupOrder = append(groupOrder, c.ID)
	}
	assert.Equal(t, flatOrder, groupOrder)
}

func TestManager_Reset_DiscardsHeldState(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	mgr.Reset()

	assert.Empty(t, mgr.Chats())
	assert.Empty(t, mgr.Projects())
	assert.NoError(t, mgr.LastError())
}

func TestManager_SnapshotsAreCopies(t *testing.T) {
	s := store.NewMockStore()
	seedStore(t, s, "user-1")
	mgr := loadedManager(t, s, "user-1")

	chats := mgr.Chats()
	chats[0].Title = "mutated by caller"

	fresh := mgr.Chats()
	assert.NotEqual(t, "mutated by caller", fresh[0].Title)
}
