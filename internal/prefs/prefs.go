// ABOUTME: Locally persisted UI preferences (model, tools, sidebar)
// ABOUTME: TOML file under the XDG config dir; everything else is re-fetchable and never cached

package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultModel is used when no preference has been saved yet.
const DefaultModel = "gpt-4o"

// Prefs is the durably cached subset of client state. Chats, projects, and
// messages are deliberately absent: the store is authoritative for those.
type Prefs struct {
	SelectedModel string   `toml:"selected_model"`
	EnabledTools  []string `toml:"enabled_tools"`
	SidebarOpen   bool     `toml:"sidebar_open"`
	LastUserID    string   `toml:"last_user_id"`
}

// Default returns the preferences used before any have been saved.
func Default() *Prefs {
	return &Prefs{
		SelectedModel: DefaultModel,
		SidebarOpen:   true,
	}
}

// DefaultPath returns the preferences file location.
// Priority: XDG_CONFIG_HOME/coven/deck.toml > ~/.config/coven/deck.toml
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "deck.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "deck.toml")
}

// Load reads preferences from path. A missing file yields defaults.
func Load(path string) (*Prefs, error) {
	p := Default()
	_, err := toml.DecodeFile(path, p)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}
	if p.SelectedModel == "" {
		p.SelectedModel = DefaultModel
	}
	return p, nil
}

// Save writes preferences to path atomically (temp file, then rename), so
// a crash mid-write never leaves a truncated file behind.
func (p *Prefs) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".deck-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(p); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing preferences file: %w", err)
	}
	return nil
}
