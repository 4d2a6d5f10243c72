// Package probe checks that a decrypted connection profile can actually be
// opened: SQLite files through modernc.org/sqlite, MySQL and MariaDB servers
// through go-sql-driver/mysql.
package probe
