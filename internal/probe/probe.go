// ABOUTME: Reachability check for stored connection profiles
// ABOUTME: Opens the database with the matching driver and pings it

package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/2389/docman-vault/internal/store"
)

// ErrUnreachable wraps every failure to open or ping a profile's database.
var ErrUnreachable = errors.New("database unreachable")

// Check opens the database described by profile and pings it. Remote
// profiles must carry their decrypted password.
func Check(ctx context.Context, profile store.ConnectionProfile) error {
	logger := slog.Default().With("component", "probe")

	switch p := profile.(type) {
	case store.SQLiteProfile:
		if err := checkSQLite(ctx, p); err != nil {
			return err
		}
		logger.Debug("sqlite database reachable", "file", p.File)
		return nil

	case store.RemoteProfile:
		if err := checkRemote(ctx, p); err != nil {
			return err
		}
		logger.Debug("remote database reachable", "provider", p.Kind, "url", p.URL, "user", p.User)
		return nil

	default:
		return fmt.Errorf("unsupported profile type %T", profile)
	}
}

func checkSQLite(ctx context.Context, p store.SQLiteProfile) error {
	info, err := os.Stat(p.File)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrUnreachable, p.File)
	}

	db, err := sql.Open("sqlite", p.File)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrUnreachable, p.File, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: pinging %s: %v", ErrUnreachable, p.File, err)
	}

	// Ping succeeds on any file; reading the schema proves it is a database.
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrUnreachable, p.File, err)
	}
	return nil
}

func checkRemote(ctx context.Context, p store.RemoteProfile) error {
	cfg, err := Config(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	db := sql.OpenDB(connector)
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, p.Kind, cfg.Addr, err)
	}
	return nil
}
