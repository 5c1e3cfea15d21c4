package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvToken, EnvAPIURL, EnvDatabase, EnvAdminID, EnvAdminIDs, EnvRedisURL, EnvLogLevel} {
		t.Setenv(k, "")
		// godotenv never overrides a variable that is set, even to "".
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const sampleYAML = `
telegram:
  token: "123:abc"
  super_admin_ids: [42]
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/bot.db
conversation:
  ttl: 15m
scheduler:
  enabled: true
  timezone: UTC
  digest: "0 9 * * 1-5"
`

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, []int64{42}, cfg.Telegram.SuperAdminIDs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "15m", cfg.Conversation.TTL)
	assert.Equal(t, "0 9 * * 1-5", cfg.Scheduler.Digest)
	assert.Same(t, cfg, m.Get())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	m := NewConfigManager(writeFile(t, "config.json", `{"telegram":{"token":"x"},"plugins":{}}`))
	_, err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugins")

	m = NewConfigManager(writeFile(t, "config.json", `{"telegram":{"token":"x"}}{}`))
	_, err = m.Load()
	assert.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvAPIURL, "https://api.telegram.org")
	t.Setenv(EnvDatabase, "postgres://bot@db/issuebot")
	t.Setenv(EnvAdminID, "42")
	t.Setenv(EnvAdminIDs, "7, 8 42")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvLogLevel, "warn")

	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIURL)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://bot@db/issuebot", cfg.Storage.DSN)
	assert.Equal(t, []int64{42, 7, 8}, cfg.Telegram.SuperAdminIDs)
	assert.Equal(t, "redis", cfg.Conversation.Store)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestEnvOnlyConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvToken, "t")
	t.Setenv(EnvDatabase, "./bot.db")
	cfg, err := NewConfigManager("").Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./bot.db", cfg.Storage.Path)

	t.Setenv(EnvAdminID, "abc")
	_, err = NewConfigManager("").Load()
	assert.ErrorContains(t, err, EnvAdminID)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, ".env", "BOT_TOKEN=from-dotenv\nADMIN_ID=9\n")
	require.NoError(t, LoadDotEnv(p, filepath.Join(t.TempDir(), "missing.env")))
	cfg, err := NewConfigManager("").Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Telegram.Token)
	assert.Equal(t, []int64{9}, cfg.Telegram.SuperAdminIDs)
}

func TestValidate(t *testing.T) {
	ok := &Config{Telegram: TelegramConfig{Token: "t"}}
	require.NoError(t, Validate(ok))

	cases := map[string]func(c *Config){
		"telegram.token":            func(c *Config) { c.Telegram.Token = " " },
		"storage.driver":            func(c *Config) { c.Storage.Driver = "mongo" },
		"storage.dsn":               func(c *Config) { c.Storage.Driver = "postgres" },
		"conversation.redis_url":    func(c *Config) { c.Conversation.Store = "redis" },
		"conversation.store":        func(c *Config) { c.Conversation.Store = "etcd" },
		"broadcast.workers":         func(c *Config) { c.Broadcast.Workers = -1 },
		"commands.timeout":          func(c *Config) { c.Commands.Timeout = "soon" },
		"scheduler.timezone":        func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
		"logging.chat.enabled":      func(c *Config) { c.Logging.Chat.Enabled = true },
		"telegram.super_admin_ids":  func(c *Config) { c.Telegram.SuperAdminIDs = []int64{0} },
		"conversation.ttl":          func(c *Config) { c.Conversation.TTL = "-1m" },
		"storage.max_conns":         func(c *Config) { c.Storage.MaxConns = -2 },
		"scheduler.digest_timeout":  func(c *Config) { c.Scheduler.DigestTimeout = "x" },
		"broadcast.send_timeout":    func(c *Config) { c.Broadcast.SendTimeout = "1 minute" },
		"commands.page_size":        func(c *Config) { c.Commands.PageSize = -3 },
		"logging.chat.rate_per_sec": func(c *Config) { c.Logging.Chat.RatePerSec = -1 },
	}
	for want, mutate := range cases {
		c := *ok
		mutate(&c)
		err := Validate(&c)
		if assert.Error(t, err, want) {
			assert.Contains(t, err.Error(), want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	d, err := DurationOr("x", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
	d, err = DurationOr("x", "5s", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
	_, err = Duration("x", "-5s")
	assert.Error(t, err)
}

func TestSummarizeConfigChange(t *testing.T) {
	a := &Config{Telegram: TelegramConfig{Token: "t"}, Storage: StorageConfig{Driver: "sqlite", Path: "a.db"}}
	b := *a
	b.Storage.Path = "b.db"
	b.Logging.Level = "debug"
	b.Telegram.Token = "secret-2"

	changed, attrs := SummarizeConfigChange(a, &b)
	assert.Equal(t, []string{"logging", "storage", "telegram.connection"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"storage", "telegram.connection"}, NeedsRestart(changed))

	changed, _ = SummarizeConfigChange(a, a)
	assert.Empty(t, changed)
}

func TestWatchPublishesValidChanges(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"telegram":{"token":"t"},"logging":{"level":"info"}}`)
	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Invalid: rejected, nothing published.
	require.NoError(t, os.WriteFile(path, []byte(`{"telegram":{"token":""}}`), 0o600))
	select {
	case got := <-sub:
		t.Fatalf("unexpected publish: %+v", got)
	case <-time.After(600 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte(`{"telegram":{"token":"t"},"logging":{"level":"debug"}}`), 0o600))
	select {
	case got := <-sub:
		assert.Equal(t, "debug", got.Logging.Level)
		assert.Equal(t, "debug", m.Get().Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("reload not published")
	}
}
