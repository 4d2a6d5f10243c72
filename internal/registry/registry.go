// ABOUTME: Registry orchestrates profile CRUD, deduplication and MRU tracking
// ABOUTME: Encrypts remote passwords on write and decrypts them into copies on read

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/docman-vault/internal/store"
)

// ErrInvalidProfile is returned for profiles that cannot be stored.
var ErrInvalidProfile = errors.New("invalid connection profile")

// SecretCipher encrypts and decrypts remote passwords.
type SecretCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// Registry manages the stored connection profiles.
type Registry struct {
	store  *store.ProfileStore
	cipher SecretCipher
	newID  func() string
	logger *slog.Logger

	mu sync.Mutex // serialises every read-modify-write of recents and mostRecent
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator replaces the random id source.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates a Registry over an opened ProfileStore.
func New(ps *store.ProfileStore, cipher SecretCipher, opts ...Option) *Registry {
	r := &Registry{
		store:  ps,
		cipher: cipher,
		newID:  uuid.NewString,
		logger: slog.Default().With("component", "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add stores setting and makes it the most recent profile. When an equal
// profile is already stored its id is returned instead and nothing new is
// written apart from the MRU pointer.
func (r *Registry) Add(ctx context.Context, setting store.ConnectionProfile) (string, error) {
	if err := validate(setting); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.store.Profiles(ctx)
	if err != nil {
		return "", err
	}

	id, err := r.containsMatchingLocked(ctx, profiles, setting)
	if err != nil {
		return "", err
	}
	if id != "" {
		if err := r.store.SetMostRecentID(ctx, id); err != nil {
			return "", err
		}
		r.logger.Debug("profile already stored", "id", id, "provider", setting.Provider())
		return id, nil
	}

	encrypted, err := r.encryptSetting(ctx, setting)
	if err != nil {
		return "", err
	}
	id = r.generateID(profiles)
	profiles = append(profiles, store.StoredProfile{ID: id, Setting: encrypted})

	if err := r.store.SetProfiles(ctx, profiles); err != nil {
		return "", err
	}
	if err := r.store.SetMostRecentID(ctx, id); err != nil {
		return "", err
	}

	r.logger.Info("profile added", "id", id, "provider", setting.Provider())
	return id, nil
}

// ContainsMatching returns the id of the first stored profile equal to
// setting, or "" when none is. Remote passwords are compared decrypted.
func (r *Registry) ContainsMatching(ctx context.Context, setting store.ConnectionProfile) (string, error) {
	if err := validate(setting); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.store.Profiles(ctx)
	if err != nil {
		return "", err
	}
	return r.containsMatchingLocked(ctx, profiles, setting)
}

func (r *Registry) containsMatchingLocked(ctx context.Context, profiles []store.StoredProfile, setting store.ConnectionProfile) (string, error) {
	switch want := setting.(type) {
	case store.SQLiteProfile:
		for _, p := range profiles {
			if got, ok := p.Setting.(store.SQLiteProfile); ok && got.File == want.File {
				return p.ID, nil
			}
		}

	case store.RemoteProfile:
		for _, p := range profiles {
			got, ok := p.Setting.(store.RemoteProfile)
			if !ok || got.Kind != want.Kind || got.URL != want.URL || got.User != want.User {
				continue
			}
			password, err := r.cipher.Decrypt(ctx, got.Password)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			if err != nil {
				r.logger.Warn("skipping profile with unreadable password", "id", p.ID, "error", err)
				continue
			}
			if password == want.Password {
				return p.ID, nil
			}
		}
	}
	return "", nil
}

// Get returns the profile with id, with its password decrypted, or nil when
// no such profile is stored. The stored record is not modified.
func (r *Registry) Get(ctx context.Context, id string) (*store.StoredProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(ctx, id)
}

func (r *Registry) getLocked(ctx context.Context, id string) (*store.StoredProfile, error) {
	profiles, err := r.store.Profiles(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		if p.ID != id {
			continue
		}
		out := p.Clone()
		if remote, ok := out.Setting.(store.RemoteProfile); ok {
			password, err := r.cipher.Decrypt(ctx, remote.Password)
			if err != nil {
				return nil, fmt.Errorf("decrypting password of profile %s: %w", id, err)
			}
			remote.Password = password
			out.Setting = remote
		}
		return &out, nil
	}
	return nil, nil
}

// Set replaces the profile with the same id, or appends it when the id is
// new. Remote passwords are encrypted again. The MRU pointer is untouched.
func (r *Registry) Set(ctx context.Context, profile store.StoredProfile) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	if err := validate(profile.Setting); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.store.Profiles(ctx)
	if err != nil {
		return err
	}

	encrypted, err := r.encryptSetting(ctx, profile.Setting)
	if err != nil {
		return err
	}
	next := profile.Clone()
	next.Setting = encrypted

	profiles = without(profiles, profile.ID)
	profiles = append(profiles, next)
	if err := r.store.SetProfiles(ctx, profiles); err != nil {
		return err
	}

	r.logger.Debug("profile set", "id", profile.ID, "provider", profile.Setting.Provider())
	return nil
}

// Delete removes the profile with id. Unknown ids are ignored. The MRU
// pointer is cleared when it referenced the deleted profile.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.store.Profiles(ctx)
	if err != nil {
		return err
	}
	remaining := without(profiles, id)
	if len(remaining) == len(profiles) {
		return nil
	}

	if err := r.store.SetProfiles(ctx, remaining); err != nil {
		return err
	}

	recent, err := r.store.MostRecentID(ctx)
	if err != nil {
		return err
	}
	if recent == id {
		if err := r.store.SetMostRecentID(ctx, ""); err != nil {
			return err
		}
	}

	r.logger.Info("profile deleted", "id", id)
	return nil
}

// MostRecent returns the most recently added or reused profile, or nil when
// none is recorded or the recorded one no longer exists.
func (r *Registry) MostRecent(ctx context.Context) (*store.StoredProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.store.MostRecentID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return r.getLocked(ctx, id)
}

// List returns every stored profile in insertion order. Remote passwords are
// blanked; use Get to read one.
func (r *Registry) List(ctx context.Context) ([]store.StoredProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.store.Profiles(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]store.StoredProfile, 0, len(profiles))
	for _, p := range profiles {
		c := p.Clone()
		if remote, ok := c.Setting.(store.RemoteProfile); ok {
			remote.Password = ""
			c.Setting = remote
		}
		out = append(out, c)
	}
	return out, nil
}

// SetLocalPath records the local document directory for profile id. An
// empty path clears it. Unknown ids are ignored.
func (r *Registry) SetLocalPath(ctx context.Context, id, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.store.Profiles(ctx)
	if err != nil {
		return err
	}

	found := false
	for i := range profiles {
		if profiles[i].ID != id {
			continue
		}
		if path == "" {
			profiles[i].LocalPath = nil
		} else {
			p := path
			profiles[i].LocalPath = &p
		}
		found = true
		break
	}
	if !found {
		return nil
	}
	return r.store.SetProfiles(ctx, profiles)
}

// generateID returns an id not used by any of profiles.
func (r *Registry) generateID(profiles []store.StoredProfile) string {
	used := make(map[string]struct{}, len(profiles))
	for _, p := range profiles {
		used[p.ID] = struct{}{}
	}
	for {
		id := r.newID()
		if _, taken := used[id]; !taken && id != "" {
			return id
		}
		r.logger.Debug("profile id collision, retrying")
	}
}

func (r *Registry) encryptSetting(ctx context.Context, setting store.ConnectionProfile) (store.ConnectionProfile, error) {
	remote, ok := setting.(store.RemoteProfile)
	if !ok {
		return setting, nil
	}
	password, err := r.cipher.Encrypt(ctx, remote.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypting password: %w", err)
	}
	remote.Password = password
	return remote, nil
}

func validate(setting store.ConnectionProfile) error {
	switch s := setting.(type) {
	case store.SQLiteProfile:
		if s.File == "" {
			return fmt.Errorf("%w: sqlite file is empty", ErrInvalidProfile)
		}
	case store.RemoteProfile:
		if s.Kind != store.ProviderMySQL && s.Kind != store.ProviderMariaDB {
			return fmt.Errorf("%w: unsupported remote provider %q", ErrInvalidProfile, s.Kind)
		}
		if s.URL == "" {
			return fmt.Errorf("%w: url is empty", ErrInvalidProfile)
		}
	case nil:
		return fmt.Errorf("%w: no setting", ErrInvalidProfile)
	default:
		return fmt.Errorf("%w: unsupported setting type %T", ErrInvalidProfile, setting)
	}
	return nil
}

func without(profiles []store.StoredProfile, id string) []store.StoredProfile {
	out := make([]store.StoredProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
