// Package store provides durable persistence of the connection-profile vault.
//
// # Architecture
//
// Two layers:
//
//   - Backend: raw key/value persistence of JSON documents (Load, Save, Close)
//   - ProfileStore: typed access to the vault keys with schema defaults
//
// Backend implementations:
//
//   - JSONFileBackend: one JSON object on disk, rewritten atomically on every Save
//   - SQLiteBackend: a single kv table in SQLite (modernc.org/sqlite, WAL mode)
//   - MockBackend: in-memory, for tests
//
// # Persisted Shape
//
// The vault is a flat document with five keys:
//
//	{
//	  "encryptionSeed": "<hex, 256 bytes>",
//	  "iv":             "<hex, 16 bytes>",
//	  "recents":        [ { "id": ..., "localPath": ..., "setting": {...} } ],
//	  "mostRecent":     "<id>" | null,
//	  "settings":       { "loadRecentOnStartup": false, "darkTheme": false, "logToFile": false }
//	}
//
// The seed and iv are generated with crypto/rand the first time a backend is
// opened through Open and are never rotated afterwards.
//
// # Data Models
//
//   - ConnectionProfile: closed variant, SQLiteProfile or RemoteProfile
//   - StoredProfile: a profile plus its id and optional local path override
//   - Settings: application toggles owned by the UI layer
//
// RemoteProfile.Password is stored exactly as handed over. The store never
// encrypts or decrypts anything; that is the registry's job.
//
// # Error Handling
//
// Backends return ErrNotFound for unset keys. Every other I/O error is
// wrapped with %w and propagated unchanged; the store never retries.
//
// # Concurrency
//
// Backends are safe for concurrent use. ProfileStore adds no locking around
// read-modify-write cycles; callers that mutate the profile list must
// serialise themselves (the registry holds a mutex for this).
package store
