// Package registry is the connection-profile vault's front door.
//
// A Registry adds, deduplicates, looks up and removes stored connection
// profiles and tracks the most recently used one. Remote passwords are
// encrypted through a SecretCipher before they reach the store and decrypted
// only in copies handed back to callers.
//
// All read-modify-write cycles on the profile list are serialised by the
// Registry, so one instance may be shared between goroutines.
package registry
