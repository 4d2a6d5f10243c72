// ABOUTME: End-to-end tests for the docman-vault command tree
// ABOUTME: Each test runs commands against a JSON vault in a temp directory

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/docman-vault/internal/store"
)

type testCLI struct {
	t          *testing.T
	configPath string
	vaultPath  string
}

func setupTestCLI(t *testing.T, backend string) *testCLI {
	t.Helper()
	color.NoColor = true

	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "vault."+backend)
	configPath := filepath.Join(dir, "vault.yaml")
	content := "vault:\n  backend: " + backend + "\n  path: " + vaultPath + "\n" +
		"platform:\n  provider: none\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	return &testCLI{t: t, configPath: configPath, vaultPath: vaultPath}
}

func (c *testCLI) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", c.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *testCLI) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run("", args...)
	require.NoError(c.t, err, out)
	return out
}

func TestCLI_SQLiteLifecycle(t *testing.T) {
	cli := setupTestCLI(t, "json")
	dbFile := filepath.Join(t.TempDir(), "a.db")

	id := strings.TrimSpace(cli.mustRun("add", "sqlite", dbFile))
	require.NotEmpty(t, id)

	again := strings.TrimSpace(cli.mustRun("add", "sqlite", dbFile))
	assert.Equal(t, id, again)

	out := cli.mustRun("get", id)
	assert.Contains(t, out, dbFile)
	assert.Contains(t, out, "SQLite")

	out = cli.mustRun("list")
	assert.Contains(t, out, "* "+id)

	out = cli.mustRun("recent")
	assert.Contains(t, out, id)

	cli.mustRun("delete", id)
	_, err := cli.run("", "get", id)
	assert.Error(t, err)

	out = cli.mustRun("recent")
	assert.Contains(t, out, "no recent profile")
}

func TestCLI_RemotePasswordFromStdin(t *testing.T) {
	cli := setupTestCLI(t, "json")

	out, err := cli.run("hunter2\n", "add", "remote", "--provider", "mysql", "--url", "db:3306/docs", "--user", "root", "--password-stdin")
	require.NoError(t, err, out)
	id := strings.TrimSpace(out)

	out = cli.mustRun("get", id)
	assert.Contains(t, out, "db:3306/docs")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "hunter2")

	out = cli.mustRun("get", id, "--show-password")
	assert.Contains(t, out, "hunter2")

	out = cli.mustRun("list")
	assert.Contains(t, out, "root@db:3306/docs")
	assert.NotContains(t, out, "hunter2")
}

func TestCLI_RemoteRejectsSQLiteProvider(t *testing.T) {
	cli := setupTestCLI(t, "json")
	_, err := cli.run("", "add", "remote", "--provider", "sqlite", "--url", "x", "--password", "")
	assert.Error(t, err)
}

func TestCLI_LocalPath(t *testing.T) {
	cli := setupTestCLI(t, "sqlite")
	docs := t.TempDir()

	id := strings.TrimSpace(cli.mustRun("add", "sqlite", filepath.Join(docs, "a.db")))
	cli.mustRun("local-path", id, docs)

	out := cli.mustRun("get", id)
	assert.Contains(t, out, "local path:")
	assert.Contains(t, out, docs)

	_, err := cli.run("", "local-path", "missing", docs)
	assert.Error(t, err)
}

func TestCLI_Settings(t *testing.T) {
	cli := setupTestCLI(t, "json")

	out := cli.mustRun("settings", "show")
	assert.Contains(t, out, "darkTheme=false")

	cli.mustRun("settings", "set", "darkTheme=true", "load_recent_on_startup=1")
	out = cli.mustRun("settings", "show")
	assert.Contains(t, out, "darkTheme=true")
	assert.Contains(t, out, "loadRecentOnStartup=true")
	assert.Contains(t, out, "logToFile=false")

	_, err := cli.run("", "settings", "set", "colour=true")
	assert.Error(t, err)
	_, err = cli.run("", "settings", "set", "darkTheme")
	assert.Error(t, err)
}

func TestCLI_LogToFile(t *testing.T) {
	cli := setupTestCLI(t, "json")
	cli.mustRun("settings", "set", "logToFile=true")
	cli.mustRun("add", "sqlite", filepath.Join(t.TempDir(), "a.db"))

	logPath := filepath.Join(filepath.Dir(cli.vaultPath), "main.log")
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "profile added")
}

func TestCLI_Status(t *testing.T) {
	cli := setupTestCLI(t, "json")
	out := cli.mustRun("status")
	assert.Contains(t, out, "passthrough")
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, cli.vaultPath)
}

func TestCLI_PingSQLite(t *testing.T) {
	cli := setupTestCLI(t, "json")

	missing := strings.TrimSpace(cli.mustRun("add", "sqlite", filepath.Join(t.TempDir(), "missing.db")))
	_, err := cli.run("", "ping", missing)
	assert.Error(t, err)

	// The vault's own SQLite backend file is a valid database to ping.
	sqliteCLI := setupTestCLI(t, "sqlite")
	sqliteCLI.mustRun("status")
	id := strings.TrimSpace(cli.mustRun("add", "sqlite", sqliteCLI.vaultPath))
	out := cli.mustRun("ping", id)
	assert.Contains(t, out, "ok")
}

func TestCLI_PersistedShape(t *testing.T) {
	cli := setupTestCLI(t, "json")
	cli.mustRun("add", "remote", "--provider", "mariadb", "--url", "db/docs", "--user", "u", "--password", "pw")

	data, err := os.ReadFile(cli.vaultPath)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{store.KeyEncryptionSeed, store.KeyIV, store.KeyRecents, store.KeyMostRecent, store.KeySettings} {
		assert.Contains(t, doc, key)
	}
}

func TestApplySetting(t *testing.T) {
	var s store.Settings
	require.NoError(t, applySetting(&s, "logToFile=true"))
	assert.True(t, s.LogToFile)
	require.NoError(t, applySetting(&s, "LOGTOFILE=false"))
	assert.False(t, s.LogToFile)
	assert.Error(t, applySetting(&s, "darkTheme=maybe"))
}
