// Package secrets encrypts and decrypts the password field of remote
// connection profiles with a platform-derived envelope key.
//
// A Cipher runs in one of two modes, chosen once when it is created:
//
//   - ModeHardwareSigned: AES-256-CTR keyed by the platformkey-derived key,
//     hex encoded
//   - ModePassthrough: values are returned unchanged
//
// The key is derived lazily, held in locked memory, and destroyed after an
// idle timeout or on Close. The next call after eviction derives it again.
//
// Every secret in a vault shares the vault's fixed iv, so equal passwords
// produce equal ciphertext. Changing that needs a per-secret nonce stored
// with the ciphertext, which is a new record format.
package secrets
