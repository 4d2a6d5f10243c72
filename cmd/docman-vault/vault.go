// ABOUTME: Opens the vault from configuration: backend, store, provider, cipher and registry
// ABOUTME: Close scrubs the envelope key before the store is closed

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/2389/docman-vault/internal/config"
	"github.com/2389/docman-vault/internal/platformkey"
	"github.com/2389/docman-vault/internal/registry"
	"github.com/2389/docman-vault/internal/secrets"
	"github.com/2389/docman-vault/internal/store"
)

// vault bundles the services one command invocation works with.
type vault struct {
	cfg      *config.Config
	store    *store.ProfileStore
	settings *store.SettingsStore
	provider platformkey.Provider
	cipher   *secrets.Cipher
	registry *registry.Registry
	logger   *slog.Logger
	logFile  io.Closer
}

// newProvider picks the platform key provider named by cfg.
func newProvider(cfg config.PlatformConfig, logger *slog.Logger) platformkey.Provider {
	sshAgent := func() platformkey.Provider {
		return platformkey.NewSSHAgentProvider(platformkey.SSHAgentConfig{
			SocketPath:   cfg.AgentSocket,
			Account:      cfg.Account,
			IdentityFile: cfg.IdentityFile,
			Fingerprint:  cfg.Fingerprint,
		}, platformkey.WithLogger(logger.With("component", "platformkey")))
	}

	switch cfg.Provider {
	case "none":
		return platformkey.Unavailable{}
	case "ssh-agent":
		return sshAgent()
	default:
		if cfg.AgentSocket == "" {
			return platformkey.Unavailable{}
		}
		return sshAgent()
	}
}

func openBackend(cfg config.VaultConfig) (store.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.NewSQLiteBackend(cfg.Path)
	case "json":
		return store.NewJSONFileBackend(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown vault backend %q", cfg.Backend)
	}
}

// openVault opens the store first so the persisted logToFile setting can
// decide where the logger writes before the other services are built.
func openVault(ctx context.Context, cfg *config.Config, verbose bool) (*vault, error) {
	// stderr only until the settings are known
	boot, _, err := setupLogger(cfg.Logging, false, verbose)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(boot)

	backend, err := openBackend(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}
	ps, err := store.Open(ctx, backend)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	settings := store.NewSettingsStore(ps)
	current, err := settings.Get(ctx)
	if err != nil {
		ps.Close()
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	logger, logFile, err := setupLogger(cfg.Logging, current.LogToFile, verbose)
	if err != nil {
		ps.Close()
		return nil, err
	}
	slog.SetDefault(logger)

	seed, err := ps.Seed(ctx)
	if err != nil {
		logFile.Close()
		ps.Close()
		return nil, err
	}
	iv, err := ps.IV(ctx)
	if err != nil {
		logFile.Close()
		ps.Close()
		return nil, err
	}

	provider := newProvider(cfg.Platform, logger)
	cipher, err := secrets.New(ctx, provider, seed, iv,
		secrets.WithIdleTimeout(cfg.Cipher.IdleTimeout),
		secrets.WithLogger(logger.With("component", "secrets")),
	)
	if err != nil {
		logFile.Close()
		ps.Close()
		return nil, err
	}

	logger.Debug("vault opened",
		"backend", cfg.Vault.Backend,
		"path", cfg.Vault.Path,
		"mode", cipher.Mode(),
	)

	return &vault{
		cfg:      cfg,
		store:    ps,
		settings: settings,
		provider: provider,
		cipher:   cipher,
		registry: registry.New(ps, cipher, registry.WithLogger(logger.With("component", "registry"))),
		logger:   logger,
		logFile:  logFile,
	}, nil
}

// Close evicts the envelope key, then closes the store and the log file.
func (v *vault) Close() error {
	v.cipher.Close()
	return errors.Join(v.store.Close(), v.logFile.Close())
}
