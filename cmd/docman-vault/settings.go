// ABOUTME: settings and status subcommands
// ABOUTME: Settings are replaced wholesale; status reports the cipher mode and agent state

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/docman-vault/internal/secrets"
	"github.com/2389/docman-vault/internal/store"
)

const statusProbeTimeout = 5 * time.Second

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change application settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				s, err := v.settings.Get(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "loadRecentOnStartup=%t\n", s.LoadRecentOnStartup)
				fmt.Fprintf(out, "darkTheme=%t\n", s.DarkTheme)
				fmt.Fprintf(out, "logToFile=%t\n", s.LogToFile)
				return nil
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <key>=<bool>...",
		Short: "Change one or more settings",
		Long: `Change one or more settings.

Keys: loadRecentOnStartup, darkTheme, logToFile.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				s, err := v.settings.Get(ctx)
				if err != nil {
					return err
				}
				for _, arg := range args {
					if err := applySetting(&s, arg); err != nil {
						return err
					}
				}
				return v.settings.Set(ctx, s)
			})
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

// applySetting parses key=value into s.
func applySetting(s *store.Settings, arg string) error {
	key, raw, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("expected key=value, got %q", arg)
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", "")) {
	case "loadrecentonstartup":
		s.LoadRecentOnStartup = value
	case "darktheme":
		s.DarkTheme = value
	case "logtofile":
		s.LogToFile = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault location, cipher mode and agent availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				profiles, err := v.registry.List(ctx)
				if err != nil {
					return err
				}

				probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
				available := v.provider.Available(probeCtx)
				cancel()

				mode := color.GreenString(v.cipher.Mode().String())
				if v.cipher.Mode() == secrets.ModePassthrough {
					mode = color.YellowString(v.cipher.Mode().String() + " (passwords stored in clear)")
				}
				agent := color.YellowString("unavailable")
				if available {
					agent = color.GreenString("available")
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "vault:     %s (%s)\n", v.cfg.Vault.Path, v.cfg.Vault.Backend)
				fmt.Fprintf(out, "profiles:  %d\n", len(profiles))
				fmt.Fprintf(out, "cipher:    %s\n", mode)
				fmt.Fprintf(out, "provider:  %s\n", v.cfg.Platform.Provider)
				fmt.Fprintf(out, "agent:     %s\n", agent)
				if v.cfg.Platform.Fingerprint != "" {
					fmt.Fprintf(out, "identity:  %s\n", v.cfg.Platform.Fingerprint)
				} else {
					fmt.Fprintf(out, "identity:  %s\n", v.cfg.Platform.Account)
				}
				return nil
			})
		},
	}
}
