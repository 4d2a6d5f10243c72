// Package config handles configuration loading for docman-vault.
//
// # Configuration File
//
// Locations, in order:
//
//  1. The --config flag
//  2. Path from the DOCMAN_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/docman/vault.yaml (~/.config when unset)
//
// Only the last one may be missing, in which case defaults apply. Files
// ending in .toml are decoded as TOML, everything else as YAML.
//
// # Environment Variable Expansion
//
//	platform:
//	  agent_socket: "${SSH_AUTH_SOCK}"
//
// A leading ~/ in path values is expanded to the home directory.
//
// # Configuration Sections
//
//	vault:
//	  backend: json                 # json, sqlite
//	  path: ~/.local/share/docman/vault.json
//
//	platform:
//	  provider: auto                # auto, ssh-agent, none
//	  agent_socket: ${SSH_AUTH_SOCK}
//	  account: io.github.docman.vault
//	  identity_file: ~/.config/docman/vault_ed25519
//	  fingerprint: ""               # SHA256:... of a pre-loaded key
//
//	cipher:
//	  idle_timeout: 5m
//
//	logging:
//	  level: info                   # debug, info, warn, error
//	  format: text                  # text, json
//	  file: ""                      # defaults to main.log next to the vault
package config
