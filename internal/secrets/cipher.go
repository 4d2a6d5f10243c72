// ABOUTME: Cipher encrypts profile secrets with a lazily derived, idle-evicted key
// ABOUTME: Falls back to passthrough when no platform signing identity is available

package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/awnumar/memguard"

	"github.com/2389/docman-vault/internal/platformkey"
)

// DefaultIdleTimeout is how long a derived key stays cached without use.
const DefaultIdleTimeout = 5 * time.Minute

// ErrCipherFailure indicates malformed ciphertext or an unusable key.
var ErrCipherFailure = errors.New("cipher failure")

// Mode is the cipher strategy selected at construction.
type Mode int

const (
	ModePassthrough Mode = iota
	ModeHardwareSigned
)

func (m Mode) String() string {
	switch m {
	case ModePassthrough:
		return "passthrough"
	case ModeHardwareSigned:
		return "hardware-signed"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Cipher owns the in-memory envelope key.
type Cipher struct {
	provider    platformkey.Provider
	seed        []byte
	iv          []byte
	mode        Mode
	idleTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex // guards key, timer and gen, and covers every derive and cipher call
	key   *memguard.LockedBuffer
	timer *time.Timer
	gen   uint64
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Cipher) {
		if d > 0 {
			c.idleTimeout = d
		}
	}
}

// WithLogger sets the cipher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cipher) {
		c.logger = l
	}
}

// New creates a Cipher for the vault's seed and iv. The provider is probed
// once here to pick the Mode.
func New(ctx context.Context, provider platformkey.Provider, seed, iv []byte, opts ...Option) (*Cipher, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	if len(seed) == 0 {
		return nil, errors.New("seed is empty")
	}

	c := &Cipher{
		provider:    provider,
		seed:        append([]byte(nil), seed...),
		iv:          append([]byte(nil), iv...),
		idleTimeout: DefaultIdleTimeout,
		logger:      slog.Default().With("component", "secrets"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if provider != nil && provider.Available(ctx) {
		c.mode = ModeHardwareSigned
	} else {
		c.mode = ModePassthrough
		c.logger.Warn("no platform signing identity, secrets will be stored in clear")
	}
	return c, nil
}

// Mode reports the strategy selected at construction.
func (c *Cipher) Mode() Mode {
	return c.mode
}

// Encrypt returns the hex ciphertext of plaintext. Empty input is returned
// as is without deriving a key.
func (c *Cipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" || c.mode == ModePassthrough {
		return plaintext, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.ensureKeyLocked(ctx)
	if errors.Is(err, platformkey.ErrUnavailable) {
		c.logger.Warn("platform key unavailable, storing secret in clear", "error", err)
		return plaintext, nil
	}
	if err != nil {
		return "", err
	}

	out := []byte(plaintext)
	if err := c.xorLocked(key, out); err != nil {
		return "", err
	}
	c.resetTimerLocked()
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if ciphertext == "" || c.mode == ModePassthrough {
		return ciphertext, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.ensureKeyLocked(ctx)
	if errors.Is(err, platformkey.ErrUnavailable) {
		c.logger.Warn("platform key unavailable, reading secret as clear text", "error", err)
		return ciphertext, nil
	}
	if err != nil {
		return "", err
	}

	out, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", ErrCipherFailure, err)
	}
	if err := c.xorLocked(key, out); err != nil {
		return "", err
	}
	if !utf8.Valid(out) {
		memguard.WipeBytes(out)
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrCipherFailure)
	}
	c.resetTimerLocked()
	return string(out), nil
}

// Close destroys the cached key and stops the idle timer. It is safe to call
// more than once; later calls to Encrypt or Decrypt derive the key again.
func (c *Cipher) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
}

func (c *Cipher) xorLocked(key *memguard.LockedBuffer, buf []byte) error {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}
	cipher.NewCTR(block, c.iv).XORKeyStream(buf, buf)
	return nil
}

func (c *Cipher) ensureKeyLocked(ctx context.Context) (*memguard.LockedBuffer, error) {
	if c.key != nil && c.key.IsAlive() {
		return c.key, nil
	}

	raw, err := c.provider.DeriveKey(ctx, c.seed)
	if err != nil {
		return nil, err
	}
	if len(raw) != platformkey.KeySize {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("%w: derived key is %d bytes, want %d", ErrCipherFailure, len(raw), platformkey.KeySize)
	}

	// NewBufferFromBytes wipes raw
	c.key = memguard.NewBufferFromBytes(raw)
	c.logger.Debug("envelope key derived", "idle_timeout", c.idleTimeout)
	return c.key, nil
}

func (c *Cipher) resetTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.idleTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// A call after this timer was armed owns the key now.
		if c.gen != gen {
			return
		}
		c.logger.Debug("envelope key idle, evicting")
		c.evictLocked()
	})
}

func (c *Cipher) evictLocked() {
	if c.key != nil {
		c.key.Destroy()
		c.key = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}
