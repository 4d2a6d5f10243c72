// ABOUTME: Entry point for docman-vault, the encrypted connection-profile vault CLI
// ABOUTME: Builds the cobra command tree and installs signal-driven shutdown

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/docman-vault/internal/config"
)

// Version is set at build time.
var version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "docman-vault",
		Short: "Encrypted store for docman database connection profiles",
		Long: `docman-vault stores, deduplicates and retrieves database connection profiles.

Remote passwords are encrypted with a key derived by signing a random vault
seed through ssh-agent. Without an agent they are stored in clear.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $DOCMAN_CONFIG or ~/.config/docman/vault.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newAddCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newRecentCmd(opts),
		newDeleteCmd(opts),
		newLocalPathCmd(opts),
		newSettingsCmd(opts),
		newStatusCmd(opts),
		newPingCmd(opts),
	)
	return root
}

// withVault opens the vault for one command and always closes it, scrubbing
// the envelope key, before returning.
func (o *rootOptions) withVault(cmd *cobra.Command, fn func(ctx context.Context, v *vault) error) (err error) {
	cfg, err := config.Resolve(o.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	v, err := openVault(ctx, cfg, o.verbose)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := v.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing vault: %w", cerr)
		}
	}()

	return fn(ctx, v)
}
