// ABOUTME: Provider interface for platform-backed key derivation
// ABOUTME: Defines the sentinel errors and the always-unavailable provider

package platformkey

import (
	"context"
	"errors"
)

// KeySize is the length of every derived key (AES-256).
const KeySize = 32

var (
	// ErrUnavailable indicates no platform signing identity can be used.
	ErrUnavailable = errors.New("platform signing identity unavailable")

	// ErrNondeterministicKey indicates the selected identity signs with a
	// randomised scheme and cannot derive a stable key.
	ErrNondeterministicKey = errors.New("platform identity does not sign deterministically")
)

// Provider derives symmetric keys from a platform signing identity.
type Provider interface {
	// Available probes the platform. The answer may change between calls.
	Available(ctx context.Context) bool
	// DeriveKey signs seed with the platform identity and returns a KeySize
	// key. It is deterministic for a fixed identity and seed.
	DeriveKey(ctx context.Context, seed []byte) ([]byte, error)
}

// Unavailable is a Provider for hosts without a signing identity.
type Unavailable struct{}

// Available implements Provider.
func (Unavailable) Available(context.Context) bool { return false }

// DeriveKey implements Provider.
func (Unavailable) DeriveKey(context.Context, []byte) ([]byte, error) {
	return nil, ErrUnavailable
}
