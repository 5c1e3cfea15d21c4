package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuebot/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvToken, config.EnvAPIURL, config.EnvAdminID, config.EnvAdminIDs,
		config.EnvRedisURL, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
	t.Setenv(config.EnvDatabase, filepath.Join(t.TempDir(), "bot.db"))
}

func TestOperatorCommands(t *testing.T) {
	setupEnv(t)
	envFlag := "--env-file=" + filepath.Join(t.TempDir(), "none.env")

	out, err := run(t, "migrate", envFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "driver sqlite")

	out, err = run(t, "user", "set-role", "42", "admin", envFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "user 42 is now admin")

	_, err = run(t, "user", "set-role", "42", "boss", envFlag)
	assert.Error(t, err)

	out, err = run(t, "user", "set-profile", "42", "--department", "Ops", envFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "profile of user 42 updated")

	out, err = run(t, "user", "show", "42", envFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "role:       admin")
	assert.Contains(t, out, "department: Ops")

	_, err = run(t, "user", "show", "7", envFlag)
	assert.ErrorContains(t, err, "not registered")

	out, err = run(t, "issues", envFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "no open issues")
}

func TestConfigCheck(t *testing.T) {
	setupEnv(t)
	envFlag := "--env-file=" + filepath.Join(t.TempDir(), "none.env")

	_, err := run(t, "config", "check", envFlag)
	assert.ErrorContains(t, err, "telegram.token")

	t.Setenv(config.EnvToken, "123:abc")
	out, err := run(t, "config", "check", envFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "config OK")
	assert.Contains(t, out, "conversation: memory")
}
