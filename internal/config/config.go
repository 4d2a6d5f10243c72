// ABOUTME: Configuration loading and parsing for docman-vault
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "DOCMAN_CONFIG"

// DefaultAccount is the agent key comment that marks the vault identity.
const DefaultAccount = "io.github.docman.vault"

// Config represents the complete docman-vault configuration
type Config struct {
	Vault    VaultConfig    `yaml:"vault" toml:"vault"`
	Platform PlatformConfig `yaml:"platform" toml:"platform"`
	Cipher   CipherConfig   `yaml:"cipher" toml:"cipher"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// VaultConfig selects where the vault document lives
type VaultConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // json or sqlite
	Path    string `yaml:"path" toml:"path"`
}

// PlatformConfig selects the platform signing identity
type PlatformConfig struct {
	Provider     string `yaml:"provider" toml:"provider"` // auto, ssh-agent or none
	AgentSocket  string `yaml:"agent_socket" toml:"agent_socket"`
	Account      string `yaml:"account" toml:"account"`
	IdentityFile string `yaml:"identity_file" toml:"identity_file"`
	Fingerprint  string `yaml:"fingerprint" toml:"fingerprint"`
}

// CipherConfig holds key lifetime configuration
type CipherConfig struct {
	IdleTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	IdleTimeoutRaw string `yaml:"idle_timeout" toml:"idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"` // used when settings.logToFile is on
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{
		Vault: VaultConfig{Backend: "json"},
		Platform: PlatformConfig{
			Provider:    "auto",
			AgentSocket: os.Getenv("SSH_AUTH_SOCK"),
			Account:     DefaultAccount,
		},
		Cipher:  CipherConfig{IdleTimeoutRaw: "5m"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	return cfg
}

// Resolve finds and loads the configuration. An explicit path or
// $DOCMAN_CONFIG must exist; the XDG location is optional and its absence
// yields defaults.
func Resolve(explicit string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return Load(env)
	}

	path := filepath.Join(configHome(), "docman", "vault.yaml")
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(Default())
	}
	return cfg, err
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// finish parses durations, fills derived paths and validates.
func finish(cfg *Config) (*Config, error) {
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.applyPathDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyPathDefaults() error {
	var err error
	if c.Vault.Path == "" {
		name := "vault.json"
		if c.Vault.Backend == "sqlite" {
			name = "vault.db"
		}
		c.Vault.Path = filepath.Join(dataHome(), "docman", name)
	}
	if c.Vault.Path, err = expandHome(c.Vault.Path); err != nil {
		return err
	}

	if c.Platform.IdentityFile == "" {
		c.Platform.IdentityFile = filepath.Join(configHome(), "docman", "vault_ed25519")
	}
	if c.Platform.IdentityFile, err = expandHome(c.Platform.IdentityFile); err != nil {
		return err
	}

	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(filepath.Dir(c.Vault.Path), "main.log")
	}
	if c.Logging.File, err = expandHome(c.Logging.File); err != nil {
		return err
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

// Validate checks that all configuration fields hold supported values.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Vault.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("vault.backend must be json or sqlite, got %q", c.Vault.Backend)
	}
	if c.Vault.Path == "" {
		return fmt.Errorf("vault.path is required")
	}

	switch c.Platform.Provider {
	case "auto", "ssh-agent", "none":
	default:
		return fmt.Errorf("platform.provider must be auto, ssh-agent or none, got %q", c.Platform.Provider)
	}
	if c.Platform.Account == "" {
		return fmt.Errorf("platform.account is required")
	}
	if c.Platform.Fingerprint != "" && !strings.HasPrefix(c.Platform.Fingerprint, "SHA256:") {
		return fmt.Errorf("platform.fingerprint must be a SHA256:... fingerprint")
	}

	if c.Cipher.IdleTimeout <= 0 {
		return fmt.Errorf("cipher.idle_timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Cipher.IdleTimeoutRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(cfg.Cipher.IdleTimeoutRaw)
	if err != nil {
		return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Cipher.IdleTimeoutRaw, err)
	}
	cfg.Cipher.IdleTimeout = d
	return nil
}
