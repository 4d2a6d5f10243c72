package secrets

import "github.com/awnumar/memguard"

// KeyCached reports whether a live envelope key is held in memory.
func (c *Cipher) KeyCached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key != nil && c.key.IsAlive()
}

// KeyBuffer exposes the current key buffer so tests can check it was destroyed.
func (c *Cipher) KeyBuffer() *memguard.LockedBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}
