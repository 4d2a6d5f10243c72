// ABOUTME: Application settings persisted alongside the connection profiles
// ABOUTME: SettingsStore exposes wholesale get/set for the UI layer

package store

import "context"

// Settings are UI-owned toggles.
type Settings struct {
	LoadRecentOnStartup bool `json:"loadRecentOnStartup"`
	DarkTheme           bool `json:"darkTheme"`
	LogToFile           bool `json:"logToFile"`
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() Settings {
	return Settings{}
}

// SettingsStore reads and writes the settings document.
type SettingsStore struct {
	store *ProfileStore
}

// NewSettingsStore returns a SettingsStore backed by s.
func NewSettingsStore(s *ProfileStore) *SettingsStore {
	return &SettingsStore{store: s}
}

// Get returns the current settings.
func (s *SettingsStore) Get(ctx context.Context) (Settings, error) {
	return Get[Settings](ctx, s.store, KeySettings)
}

// Set replaces the settings wholesale.
func (s *SettingsStore) Set(ctx context.Context, settings Settings) error {
	return Set(ctx, s.store, KeySettings, settings)
}
