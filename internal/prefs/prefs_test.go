// ABOUTME: Tests for preference loading and saving
// ABOUTME: Verifies defaults for missing files and round-trip persistence

package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.SelectedModel)
	assert.True(t, p.SidebarOpen)
	assert.Empty(t, p.EnabledTools)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.toml")

	p := &Prefs{
		SelectedModel: "gpt-4.1-mini",
		EnabledTools:  []string{"search", "calculator"},
		SidebarOpen:   false,
		LastUserID:    "user-1",
	}
	require.NoError(t, p.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestSave_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "deck.toml")
	require.NoError(t, Default().Save(path))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestLoad_CorruptFileReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is { not toml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
