// ABOUTME: Tests for Registry dedup, MRU tracking, deletion and secret handling
// ABOUTME: Runs against a MockBackend store and a real Cipher with a fake provider

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/docman-vault/internal/platformkey"
	"github.com/2389/docman-vault/internal/secrets"
	"github.com/2389/docman-vault/internal/store"
)

type staticProvider struct{}

func (staticProvider) Available(context.Context) bool { return true }

func (staticProvider) DeriveKey(_ context.Context, seed []byte) ([]byte, error) {
	sum := sha256.Sum256(seed)
	return sum[:], nil
}

// countingCipher records how often the registry reaches the cipher.
type countingCipher struct {
	SecretCipher
	mu       sync.Mutex
	decrypts int
}

func (c *countingCipher) Decrypt(ctx context.Context, s string) (string, error) {
	c.mu.Lock()
	c.decrypts++
	c.mu.Unlock()
	return c.SecretCipher.Decrypt(ctx, s)
}

type testEnv struct {
	reg     *Registry
	store   *store.ProfileStore
	backend *store.MockBackend
	cipher  *countingCipher
}

func setupTestRegistry(t *testing.T, provider platformkey.Provider, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	backend := store.NewMockBackend()
	ps, err := store.Open(ctx, backend)
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })

	seed, err := ps.Seed(ctx)
	require.NoError(t, err)
	iv, err := ps.IV(ctx)
	require.NoError(t, err)

	c, err := secrets.New(ctx, provider, seed, iv)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	counting := &countingCipher{SecretCipher: c}
	return &testEnv{
		reg:     New(ps, counting, opts...),
		store:   ps,
		backend: backend,
		cipher:  counting,
	}
}

func remote(url, user, password string) store.RemoteProfile {
	return store.RemoteProfile{Kind: store.ProviderMariaDB, URL: url, User: user, Password: password}
}

func TestRegistry_EndToEndSQLite(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	id, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := env.reg.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, store.SQLiteProfile{File: "/db/a.db"}, got.Setting)
	assert.Nil(t, got.LocalPath)

	again, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	profiles, err := env.store.Profiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)

	require.NoError(t, env.reg.Delete(ctx, id))
	got, err = env.reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRegistry_RemoteDedup(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	first, err := env.reg.Add(ctx, remote("db:3306/docs", "root", "hunter2"))
	require.NoError(t, err)
	second, err := env.reg.Add(ctx, remote("db:3306/docs", "root", "hunter2"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	profiles, err := env.store.Profiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)

	// A different password is a different profile.
	third, err := env.reg.Add(ctx, remote("db:3306/docs", "root", "other"))
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	// So is a different provider with the same tuple.
	mysql := remote("db:3306/docs", "root", "hunter2")
	mysql.Kind = store.ProviderMySQL
	fourth, err := env.reg.Add(ctx, mysql)
	require.NoError(t, err)
	assert.NotEqual(t, first, fourth)
}

func TestRegistry_PasswordEncryptedAtRest(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	id, err := env.reg.Add(ctx, remote("db:3306/docs", "root", "hunter2"))
	require.NoError(t, err)

	raw, ok := env.backend.Raw(store.KeyRecents)
	require.True(t, ok)
	assert.NotContains(t, string(raw), "hunter2")

	var stored []map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored, 1)
	setting := stored[0]["setting"].(map[string]any)
	assert.Equal(t, "MariaDB", setting["provider"])
	assert.Equal(t, "db:3306/docs", setting["url"])
	assert.Regexp(t, "^[0-9a-f]+$", setting["password"])

	got, err := env.reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Setting.(store.RemoteProfile).Password)

	// Get hands back a copy; the record stays encrypted.
	raw2, _ := env.backend.Raw(store.KeyRecents)
	assert.Equal(t, raw, raw2)
}

func TestRegistry_PassthroughStoresClearText(t *testing.T) {
	env := setupTestRegistry(t, platformkey.Unavailable{})
	ctx := context.Background()

	id, err := env.reg.Add(ctx, remote("db:3306/docs", "root", "hunter2"))
	require.NoError(t, err)

	raw, _ := env.backend.Raw(store.KeyRecents)
	assert.Contains(t, string(raw), `"password":"hunter2"`)

	got, err := env.reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Setting.(store.RemoteProfile).Password)
}

func TestRegistry_MostRecent(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	recent, err := env.reg.MostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, recent)

	a, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	b, err := env.reg.Add(ctx, remote("db:3306/docs", "root", "pw"))
	require.NoError(t, err)

	recent, err = env.reg.MostRecent(ctx)
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.Equal(t, b, recent.ID)
	assert.Equal(t, "pw", recent.Setting.(store.RemoteProfile).Password)

	_, err = env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	recent, err = env.reg.MostRecent(ctx)
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.Equal(t, a, recent.ID)
}

func TestRegistry_DeleteClearsMostRecent(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	keep, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/keep.db"})
	require.NoError(t, err)
	gone, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/gone.db"})
	require.NoError(t, err)

	require.NoError(t, env.reg.Delete(ctx, gone))

	recent, err := env.reg.MostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, recent)

	id, err := env.store.MostRecentID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	got, err := env.reg.Get(ctx, keep)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRegistry_DanglingMostRecent(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	// A pointer left behind by an older writer.
	require.NoError(t, env.store.SetMostRecentID(ctx, "vanished"))

	recent, err := env.reg.MostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, recent)
}

func TestRegistry_DeleteUnknownIsNoop(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	id, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	saves := env.backend.Saves()

	require.NoError(t, env.reg.Delete(ctx, "nope"))
	assert.Equal(t, saves, env.backend.Saves())

	recent, err := env.reg.MostRecent(ctx)
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.Equal(t, id, recent.ID)
}

func TestRegistry_SetUpserts(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	id, err := env.reg.Add(ctx, remote("db:3306/docs", "root", "old"))
	require.NoError(t, err)

	profile, err := env.reg.Get(ctx, id)
	require.NoError(t, err)
	r := profile.Setting.(store.RemoteProfile)
	r.Password = "new"
	profile.Setting = r
	require.NoError(t, env.reg.Set(ctx, *profile))

	got, err := env.reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Setting.(store.RemoteProfile).Password)

	profiles, err := env.store.Profiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.NotEqual(t, "new", profiles[0].Setting.(store.RemoteProfile).Password)

	// Unknown ids are appended.
	require.NoError(t, env.reg.Set(ctx, store.StoredProfile{ID: "manual", Setting: store.SQLiteProfile{File: "/db/b.db"}}))
	profiles, err = env.store.Profiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

func TestRegistry_SetRejectsMissingID(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	err := env.reg.Set(context.Background(), store.StoredProfile{Setting: store.SQLiteProfile{File: "/a"}})
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestRegistry_RejectsInvalidProfiles(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	for name, setting := range map[string]store.ConnectionProfile{
		"nil":          nil,
		"empty file":   store.SQLiteProfile{},
		"empty url":    remote("", "root", "pw"),
		"bad provider": store.RemoteProfile{Kind: store.ProviderSQLite, URL: "x"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.reg.Add(ctx, setting)
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}
}

func TestRegistry_IDCollisionRetried(t *testing.T) {
	ids := []string{"dup", "dup", "dup", "fresh"}
	var n int
	gen := func() string {
		id := ids[n]
		n++
		return id
	}
	env := setupTestRegistry(t, staticProvider{}, WithIDGenerator(gen))
	ctx := context.Background()

	first, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	assert.Equal(t, "dup", first)

	second, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/b.db"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", second)
}

func TestRegistry_CorruptRecordSkippedDuringMatch(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	require.NoError(t, env.store.SetProfiles(ctx, []store.StoredProfile{
		{ID: "corrupt", Setting: store.RemoteProfile{Kind: store.ProviderMySQL, URL: "db/x", User: "u", Password: "not-hex"}},
	}))

	id, err := env.reg.Add(ctx, store.RemoteProfile{Kind: store.ProviderMySQL, URL: "db/x", User: "u", Password: "pw"})
	require.NoError(t, err)
	assert.NotEqual(t, "corrupt", id)

	_, err = env.reg.Get(ctx, "corrupt")
	assert.ErrorIs(t, err, secrets.ErrCipherFailure)
}

func TestRegistry_MatchOnlyDecryptsCandidates(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.reg.Add(ctx, remote(fmt.Sprintf("db%d:3306/docs", i), "root", "pw"))
		require.NoError(t, err)
	}
	before := env.cipher.decrypts

	_, err := env.reg.ContainsMatching(ctx, remote("db3:3306/docs", "root", "pw"))
	require.NoError(t, err)
	assert.Equal(t, 1, env.cipher.decrypts-before)
}

func TestRegistry_ContainsMatching(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	id, err := env.reg.ContainsMatching(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	assert.Empty(t, id)

	added, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)

	id, err = env.reg.ContainsMatching(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	assert.Equal(t, added, id)
}

func TestRegistry_ListBlanksPasswords(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	_, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	require.NoError(t, err)
	_, err = env.reg.Add(ctx, remote("db:3306/docs", "root", "hunter2"))
	require.NoError(t, err)
	before := env.cipher.decrypts

	list, err := env.reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, store.SQLiteProfile{File: "/db/a.db"}, list[0].Setting)
	assert.Empty(t, list[1].Setting.(store.RemoteProfile).Password)
	assert.Equal(t, before, env.cipher.decrypts, "List never decrypts")
}

func TestRegistry_SetLocalPath(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	id, err := env.reg.Add(ctx, remote("db:3306/docs", "root", "hunter2"))
	require.NoError(t, err)
	rawBefore, _ := env.backend.Raw(store.KeyRecents)

	require.NoError(t, env.reg.SetLocalPath(ctx, id, "/home/me/docs"))
	got, err := env.reg.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LocalPath)
	assert.Equal(t, "/home/me/docs", *got.LocalPath)
	assert.Equal(t, "hunter2", got.Setting.(store.RemoteProfile).Password)

	rawAfter, _ := env.backend.Raw(store.KeyRecents)
	assert.NotEqual(t, rawBefore, rawAfter)

	require.NoError(t, env.reg.SetLocalPath(ctx, id, ""))
	got, err = env.reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.LocalPath)

	saves := env.backend.Saves()
	require.NoError(t, env.reg.SetLocalPath(ctx, "unknown", "/x"))
	assert.Equal(t, saves, env.backend.Saves())
}

func TestRegistry_StoreErrorsPropagate(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()
	ioErr := errors.New("disk full")
	env.backend.SaveErr = ioErr

	_, err := env.reg.Add(ctx, store.SQLiteProfile{File: "/db/a.db"})
	assert.ErrorIs(t, err, ioErr)

	env.backend.SaveErr = nil
	env.backend.LoadErr = ioErr
	_, err = env.reg.Get(ctx, "x")
	assert.ErrorIs(t, err, ioErr)
}

func TestRegistry_ConcurrentAdds(t *testing.T) {
	env := setupTestRegistry(t, staticProvider{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.reg.Add(ctx, store.SQLiteProfile{File: fmt.Sprintf("/db/%d.db", i%5)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	profiles, err := env.store.Profiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 5)
}
