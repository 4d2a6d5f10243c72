// Package platformkey derives the vault's envelope key from a platform signing identity.
//
// # Overview
//
// A Provider answers two questions:
//
//   - Available: is a signing identity usable right now?
//   - DeriveKey: sign the vault seed and hash the signature into a 32-byte key
//
// Availability can change at any time (agent stopped, token unplugged), so
// callers must probe again before each derivation rather than caching it.
//
// # ssh-agent Identities
//
// SSHAgentProvider talks to the user's ssh-agent over SSH_AUTH_SOCK. The
// agent may be backed by a hardware token or a secure enclave; the vault only
// sees signatures. Identity selection, in order:
//
//  1. A configured SHA256 fingerprint. Never created, only looked up.
//  2. An agent key whose comment equals the configured account name.
//  3. The identity file, loaded (or created as a fresh ed25519 key on first
//     use) and added to the agent under the account comment.
//
// Only ssh-ed25519 and ssh-rsa identities are accepted. Their signatures are
// deterministic, which keeps the derived key stable for a given seed. ECDSA
// and FIDO (sk-*) keys fail with ErrNondeterministicKey.
//
// # Key Derivation
//
//	key = SHA-256(signature_blob(seed))
//
// The signature blob is wiped as soon as the hash is taken.
//
// # Errors
//
//   - ErrUnavailable: no agent, no usable identity, or the agent refused to sign
//   - ErrNondeterministicKey: the selected identity cannot produce a stable key
package platformkey
