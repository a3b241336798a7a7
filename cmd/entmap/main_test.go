package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "entmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDump(t *testing.T) {
	path := writeConfig(t, "driver: memory\nlog:\n  level: silent\n")

	out, err := run(t, "dump", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema dump\n\nTable: user\n")
	assert.Contains(t, out, "\tField: groups -> *group.users[] (join group_users)\n")
	assert.Contains(t, out, "Table: admin extends user\n")
}

func TestDumpNaming(t *testing.T) {
	path := writeConfig(t, "naming:\n  table_prefix: app_\n  plural_tables: true\nlog:\n  level: silent\n")

	out, err := run(t, "dump", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Table: app_users\n")
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "driver: memory\n")
	t.Setenv("ENTMAP_LOG_LEVEL", "silent")
	t.Setenv("ENTMAP_LOG_FORMAT", "logrus")

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "silent", config.Log.Level)
	assert.Equal(t, "logrus", config.Log.Format)
	assert.Equal(t, 1, config.MaxDepth)
}

func TestBuildSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "entmap.db")
	path := writeConfig(t, "driver: sqlite\ndsn: "+dsn+"\nlog:\n  level: silent\n  format: json\n")

	out, err := run(t, "build", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "created 6 tables\n", out)

	// existing tables are kept
	_, err = run(t, "build", "--config", path)
	assert.NoError(t, err)
}

func TestConfigErrors(t *testing.T) {
	_, err := run(t, "dump", "--config", writeConfig(t, "driver: pgx\n"))
	assert.ErrorContains(t, err, "needs a dsn")

	_, err = run(t, "dump", "--config", writeConfig(t, "log:\n  format: xml\n"))
	assert.ErrorContains(t, err, "unknown log format")

	_, err = run(t, "dump", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
