// ABOUTME: ProfileStore and Backend interface for vault persistence
// ABOUTME: Typed get/set over raw JSON documents with schema defaults written on first open

package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned by a Backend when a key has never been set
var ErrNotFound = errors.New("not found")

// Vault document keys
const (
	KeyEncryptionSeed = "encryptionSeed"
	KeyIV             = "iv"
	KeyRecents        = "recents"
	KeyMostRecent     = "mostRecent"
	KeySettings       = "settings"
)

// Sizes of the random material generated on first open.
const (
	SeedSize = 256
	IVSize   = 16
)

// Backend persists raw JSON documents by key.
type Backend interface {
	// Load returns the stored document for key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save replaces the document stored under key.
	Save(ctx context.Context, key string, value []byte) error
	// Close releases the backend.
	Close() error
}

// ProfileStore gives typed access to the vault document.
type ProfileStore struct {
	backend  Backend
	defaults map[string]any
	logger   *slog.Logger
}

// Open wraps backend and writes schema defaults for every key that is unset.
// A fresh seed and iv are generated only when they are missing, so reopening
// an existing vault keeps its key material.
func Open(ctx context.Context, backend Backend) (*ProfileStore, error) {
	s := &ProfileStore{
		backend: backend,
		logger:  slog.Default().With("component", "store"),
	}

	seed, err := randomHex(SeedSize)
	if err != nil {
		return nil, fmt.Errorf("generating encryption seed: %w", err)
	}
	iv, err := randomHex(IVSize)
	if err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}

	s.defaults = map[string]any{
		KeyEncryptionSeed: seed,
		KeyIV:             iv,
		KeyRecents:        []StoredProfile{},
		KeyMostRecent:     (*string)(nil),
		KeySettings:       DefaultSettings(),
	}

	// Fixed order so a crash part way leaves the seed written before anything else.
	for _, key := range []string{KeyEncryptionSeed, KeyIV, KeyRecents, KeyMostRecent, KeySettings} {
		_, err := backend.Load(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("loading %s: %w", key, err)
		}
		if err := s.save(ctx, key, s.defaults[key]); err != nil {
			return nil, err
		}
		if key == KeyEncryptionSeed {
			s.logger.Info("created new vault key material")
		}
	}

	return s, nil
}

// Close closes the underlying backend.
func (s *ProfileStore) Close() error {
	return s.backend.Close()
}

// Get decodes the document stored under key into a T.
// An unset key yields the schema default, or the zero T for unknown keys.
func Get[T any](ctx context.Context, s *ProfileStore, key string) (T, error) {
	var out T
	raw, err := s.backend.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		if d, ok := s.defaults[key].(T); ok {
			return d, nil
		}
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("loading %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding %s: %w", key, err)
	}
	return out, nil
}

// Set encodes value and stores it under key.
func Set[T any](ctx context.Context, s *ProfileStore, key string, value T) error {
	return s.save(ctx, key, value)
}

func (s *ProfileStore) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.backend.Save(ctx, key, raw); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Seed returns the 256-byte random seed that the platform identity signs.
func (s *ProfileStore) Seed(ctx context.Context) ([]byte, error) {
	return s.hexBytes(ctx, KeyEncryptionSeed, SeedSize)
}

// IV returns the 16-byte initialization vector shared by all secrets.
func (s *ProfileStore) IV(ctx context.Context) ([]byte, error) {
	return s.hexBytes(ctx, KeyIV, IVSize)
}

func (s *ProfileStore) hexBytes(ctx context.Context, key string, size int) ([]byte, error) {
	encoded, err := Get[string](ctx, s, key)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%s has %d bytes, want %d", key, len(b), size)
	}
	return b, nil
}

// Profiles returns the stored profile list in insertion order.
func (s *ProfileStore) Profiles(ctx context.Context) ([]StoredProfile, error) {
	profiles, err := Get[[]StoredProfile](ctx, s, KeyRecents)
	if err != nil {
		return nil, err
	}
	if profiles == nil {
		profiles = []StoredProfile{}
	}
	return profiles, nil
}

// SetProfiles replaces the stored profile list.
func (s *ProfileStore) SetProfiles(ctx context.Context, profiles []StoredProfile) error {
	if profiles == nil {
		profiles = []StoredProfile{}
	}
	return Set(ctx, s, KeyRecents, profiles)
}

// MostRecentID returns the MRU pointer, or "" when it is null.
func (s *ProfileStore) MostRecentID(ctx context.Context) (string, error) {
	id, err := Get[*string](ctx, s, KeyMostRecent)
	if err != nil {
		return "", err
	}
	if id == nil {
		return "", nil
	}
	return *id, nil
}

// SetMostRecentID stores the MRU pointer. An empty id stores null.
func (s *ProfileStore) SetMostRecentID(ctx context.Context, id string) error {
	if id == "" {
		return Set(ctx, s, KeyMostRecent, (*string)(nil))
	}
	return Set(ctx, s, KeyMostRecent, &id)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
