// ABOUTME: JSON file Backend holding the whole vault document in one object
// ABOUTME: Writes go to a temp file that is renamed over the original

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileBackend keeps the vault document in memory and mirrors every Save
// to a single JSON file.
type JSONFileBackend struct {
	mu     sync.RWMutex
	path   string
	doc    map[string]json.RawMessage
	logger *slog.Logger
}

// NewJSONFileBackend opens the JSON document at path.
// A missing file is treated as an empty document. Parent directories are
// created if needed.
func NewJSONFileBackend(path string) (*JSONFileBackend, error) {
	logger := slog.Default().With("component", "store", "backend", "json")

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating vault directory: %w", err)
	}

	b := &JSONFileBackend{
		path:   path,
		doc:    make(map[string]json.RawMessage),
		logger: logger,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("vault file does not exist yet", "path", path)
	case err != nil:
		return nil, fmt.Errorf("reading vault file: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &b.doc); err != nil {
			return nil, fmt.Errorf("parsing vault file %s: %w", path, err)
		}
	}

	logger.Debug("JSON vault opened", "path", path)
	return b, nil
}

// Path returns the file backing the document.
func (b *JSONFileBackend) Path() string {
	return b.path
}

// Load implements Backend.
func (b *JSONFileBackend) Load(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	raw, ok := b.doc[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Save implements Backend. The in-memory document only changes once the
// file has been replaced.
func (b *JSONFileBackend) Save(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %s is not valid JSON", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]json.RawMessage, len(b.doc)+1)
	for k, v := range b.doc {
		next[k] = v
	}
	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	next[key] = stored

	if err := b.writeFile(next); err != nil {
		return err
	}
	b.doc = next
	return nil
}

func (b *JSONFileBackend) writeFile(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "\t")
	if err != nil {
		return fmt.Errorf("encoding vault document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".vault-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp vault file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting vault file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing vault file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing vault file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing vault file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replacing vault file: %w", err)
	}
	return nil
}

// Close implements Backend. Every Save is already on disk.
func (b *JSONFileBackend) Close() error {
	return nil
}
