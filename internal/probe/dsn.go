// ABOUTME: Converts a remote profile's host[:port]/db url into a mysql driver DSN
// ABOUTME: Accepts the jdbc:mariadb:// and jdbc:mysql:// prefixes used by older records

package probe

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/2389/docman-vault/internal/store"
)

// DefaultPort is used when a remote url has no port.
const DefaultPort = "3306"

// DialTimeout bounds the TCP connect of a remote check.
const DialTimeout = 10 * time.Second

var urlPrefixes = []string{"jdbc:mariadb://", "jdbc:mysql://", "mariadb://", "mysql://"}

// Config builds the driver configuration for a decrypted remote profile.
func Config(p store.RemoteProfile) (*mysql.Config, error) {
	raw := strings.TrimSpace(p.URL)
	for _, prefix := range urlPrefixes {
		if strings.HasPrefix(strings.ToLower(raw), prefix) {
			raw = raw[len(prefix):]
			break
		}
	}

	rest, query, _ := strings.Cut(raw, "?")
	hostport, dbName, _ := strings.Cut(rest, "/")
	if hostport == "" {
		return nil, fmt.Errorf("url %q has no host", p.URL)
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		// No port given
		host, port = strings.Trim(hostport, "[]"), DefaultPort
	}

	// Parameters go through the driver's own parser so tls, timeouts and
	// session variables mean what they do in a DSN.
	params := "/"
	if query != "" {
		params += "?" + query
	}
	cfg, err := mysql.ParseDSN(params)
	if err != nil {
		return nil, fmt.Errorf("parsing url parameters: %w", err)
	}
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = dbName
	if cfg.Timeout == 0 {
		cfg.Timeout = DialTimeout
	}
	if cfg.TLS != nil && !cfg.TLS.InsecureSkipVerify {
		cfg.TLS.ServerName = host
	}
	return cfg, nil
}

// DSN renders the driver DSN for p. It contains the password; never log it.
func DSN(p store.RemoteProfile) (string, error) {
	cfg, err := Config(p)
	if err != nil {
		return "", err
	}
	return cfg.FormatDSN(), nil
}
