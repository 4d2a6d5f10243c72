// ABOUTME: Profile subcommands: add, get, list, recent, delete, local-path and ping
// ABOUTME: Passwords are masked on output unless explicitly requested

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/2389/docman-vault/internal/probe"
	"github.com/2389/docman-vault/internal/secrets"
	"github.com/2389/docman-vault/internal/store"
)

const pingTimeout = 15 * time.Second

func newAddCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a connection profile, reusing an equal one if stored",
	}
	cmd.AddCommand(newAddSQLiteCmd(opts), newAddRemoteCmd(opts))
	return cmd
}

func newAddSQLiteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sqlite <file>",
		Short: "Add a local SQLite database file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				id, err := v.registry.Add(ctx, store.SQLiteProfile{File: file})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func newAddRemoteCmd(opts *rootOptions) *cobra.Command {
	var (
		providerName  string
		url           string
		user          string
		password      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Add a MySQL or MariaDB server",
		Long: `Add a MySQL or MariaDB server profile.

The url has the form host[:port]/database[?params]. The password is read from
--password, from stdin with --password-stdin, or prompted for on a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := store.ParseProvider(providerName)
			if err != nil {
				return err
			}
			if provider == store.ProviderSQLite {
				return errors.New("use 'add sqlite' for SQLite files")
			}

			if passwordStdin {
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("reading password from stdin: %w", err)
				}
			} else if !cmd.Flags().Changed("password") && term.IsTerminal(int(os.Stdin.Fd())) {
				if password, err = promptPassword(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}

			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				id, err := v.registry.Add(ctx, store.RemoteProfile{
					Kind:     provider,
					URL:      url,
					User:     user,
					Password: password,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "mariadb", "mysql or mariadb")
	cmd.Flags().StringVar(&url, "url", "", "host[:port]/database")
	cmd.Flags().StringVar(&user, "user", "", "database user")
	cmd.Flags().StringVar(&password, "password", "", "database password (visible in process listings)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("url")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	var showPassword bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				p, err := v.registry.Get(ctx, args[0])
				if err != nil {
					return explainCipherFailure(args[0], err)
				}
				if p == nil {
					return fmt.Errorf("no profile with id %s", args[0])
				}
				printProfile(cmd.OutOrStdout(), *p, showPassword)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showPassword, "show-password", false, "print the decrypted password")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored profiles without passwords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				profiles, err := v.registry.List(ctx)
				if err != nil {
					return err
				}
				recent, err := v.store.MostRecentID(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(profiles) == 0 {
					fmt.Fprintln(out, "no profiles stored")
					return nil
				}
				for _, p := range profiles {
					marker := " "
					if p.ID == recent {
						marker = color.GreenString("*")
					}
					fmt.Fprintf(out, "%s %s  %-8s %s\n", marker, p.ID, p.Setting.Provider(), target(p.Setting))
				}
				return nil
			})
		},
	}
}

func newRecentCmd(opts *rootOptions) *cobra.Command {
	var showPassword bool

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recently used profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				p, err := v.registry.MostRecent(ctx)
				if err != nil {
					return explainCipherFailure("most recent", err)
				}
				if p == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "no recent profile")
					return nil
				}
				printProfile(cmd.OutOrStdout(), *p, showPassword)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showPassword, "show-password", false, "print the decrypted password")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				return v.registry.Delete(ctx, args[0])
			})
		},
	}
}

func newLocalPathCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "local-path <id> [path]",
		Short: "Set or clear the local document directory of a profile",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 2 {
				abs, err := filepath.Abs(args[1])
				if err != nil {
					return err
				}
				path = abs
			}
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				profiles, err := v.registry.List(ctx)
				if err != nil {
					return err
				}
				if !containsID(profiles, args[0]) {
					return fmt.Errorf("no profile with id %s", args[0])
				}
				return v.registry.SetLocalPath(ctx, args[0], path)
			})
		},
	}
}

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping <id>",
		Short: "Check that a profile's database can be opened",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault) error {
				p, err := v.registry.Get(ctx, args[0])
				if err != nil {
					return explainCipherFailure(args[0], err)
				}
				if p == nil {
					return fmt.Errorf("no profile with id %s", args[0])
				}

				ctx, cancel := context.WithTimeout(ctx, pingTimeout)
				defer cancel()
				if err := probe.Check(ctx, p.Setting); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("ok"), target(p.Setting))
				return nil
			})
		},
	}
}

func printProfile(w io.Writer, p store.StoredProfile, showPassword bool) {
	label := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", label("id:        "), p.ID)
	fmt.Fprintf(w, "%s %s\n", label("provider:  "), p.Setting.Provider())
	switch s := p.Setting.(type) {
	case store.SQLiteProfile:
		fmt.Fprintf(w, "%s %s\n", label("file:      "), s.File)
	case store.RemoteProfile:
		fmt.Fprintf(w, "%s %s\n", label("url:       "), s.URL)
		fmt.Fprintf(w, "%s %s\n", label("user:      "), s.User)
		password := "********"
		if s.Password == "" {
			password = ""
		}
		if showPassword {
			password = s.Password
		}
		fmt.Fprintf(w, "%s %s\n", label("password:  "), password)
	}
	if p.LocalPath != nil {
		fmt.Fprintf(w, "%s %s\n", label("local path:"), *p.LocalPath)
	}
}

func target(setting store.ConnectionProfile) string {
	switch s := setting.(type) {
	case store.SQLiteProfile:
		return s.File
	case store.RemoteProfile:
		if s.User == "" {
			return s.URL
		}
		return s.User + "@" + s.URL
	default:
		return ""
	}
}

func containsID(profiles []store.StoredProfile, id string) bool {
	for _, p := range profiles {
		if p.ID == id {
			return true
		}
	}
	return false
}

func explainCipherFailure(id string, err error) error {
	if errors.Is(err, secrets.ErrCipherFailure) {
		return fmt.Errorf("stored password of %s cannot be decrypted, add the profile again: %w", id, err)
	}
	return err
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
