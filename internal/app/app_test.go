package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuebot/internal/config"
	"issuebot/internal/conversation"
	"issuebot/internal/domain"
	"issuebot/internal/storage"
	kit "issuebot/internal/transport"
	"issuebot/internal/transport/fake"
	logx "issuebot/pkg/logx"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvToken, config.EnvAPIURL, config.EnvDatabase, config.EnvAdminID,
		config.EnvAdminIDs, config.EnvRedisURL, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func testConfig(t *testing.T, extra string) *config.ConfigManager {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	body := `{
  "telegram": {"token": "test", "super_admin_ids": [1]},
  "logging": {"level": "error"},
  "storage": {"driver": "sqlite", "path": ` + quote(filepath.Join(dir, "bot.db")) + `},
  "commands": {"workers": 2}` + extra + `
}`
	p := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	m := config.NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)
	return m
}

func quote(s string) string { return `"` + strings.ReplaceAll(s, `\`, `\\`) + `"` }

func message(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: from, From: kit.Sender{ID: from, FirstName: "Ann"}, Text: text,
	}}
}

func TestAppServesCommands(t *testing.T) {
	cfgm := testConfig(t, `,
  "scheduler": {"enabled": true, "timezone": "UTC", "digest": "0 9 * * *"}`)
	fa := fake.New()
	ctx := context.Background()

	a, err := New(ctx, cfgm, WithAdapter(fa))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	fa.Push(message(5, "/start"))
	require.Eventually(t, func() bool { return len(fa.SentTo(5)) > 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, fa.SentTo(5)[0], "added to the broadcast list")

	// The configured operator was promoted at startup.
	role, ok, err := a.dir.Role(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleSuperAdmin, role)

	names := []string{}
	for _, s := range a.sched.Snapshot() {
		names = append(names, s.Name)
		assert.False(t, s.Next.IsZero(), s.Name)
	}
	assert.Equal(t, []string{JobSweep, JobDigest}, names)
	assert.Eventually(t, func() bool { return len(fa.Menu()) > 0 }, 3*time.Second, 10*time.Millisecond)

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(sctx, StopCLI))
	counters := a.sup.Counters()
	assert.Zero(t, counters.Active)
	assert.NotZero(t, counters.Started)
	select {
	case <-a.Done():
	default:
		t.Fatal("app context not cancelled after Stop")
	}
}

func TestApplyConfigReschedulesDigest(t *testing.T) {
	cfgm := testConfig(t, "")
	a, err := New(context.Background(), cfgm, WithAdapter(fake.New()))
	require.NoError(t, err)
	defer func() { _ = a.Stop(context.Background(), StopCLI) }()

	prev := cfgm.Get()
	next := *prev
	next.Scheduler = config.SchedulerConfig{Enabled: true, Digest: "@daily"}
	next.Telegram.SuperAdminIDs = []int64{1, 9}
	a.applyConfig(context.Background(), prev, &next)

	var names []string
	for _, s := range a.sched.Snapshot() {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, JobDigest)
	role, _, err := a.dir.Role(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperAdmin, role)

	next2 := next
	next2.Scheduler.Digest = ""
	a.applyConfig(context.Background(), &next, &next2)
	names = names[:0]
	for _, s := range a.sched.Snapshot() {
		names = append(names, s.Name)
	}
	assert.NotContains(t, names, JobDigest)
}

func TestMapStorageConfig(t *testing.T) {
	sc, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, storage.DriverSQLite, sc.Driver)
	assert.Equal(t, defaultSQLitePath, sc.Path)

	sc, err = mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: "pg", DSN: "postgres://x", ConnectTimeout: "3s"}})
	require.NoError(t, err)
	assert.Equal(t, storage.DriverPostgres, sc.Driver)
	assert.Equal(t, 3*time.Second, sc.ConnectTimeout)

	_, err = mapStorageConfig(&config.Config{Storage: config.StorageConfig{BusyTimeout: "nope"}})
	assert.Error(t, err)
}

func TestOpenConversationStore(t *testing.T) {
	ctx := context.Background()

	st, closeFn, err := openConversationStore(ctx, &config.Config{}, logx.Nop())
	require.NoError(t, err)
	assert.IsType(t, &conversation.MemoryStore{}, st)
	require.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	cfg := &config.Config{Conversation: config.ConversationConfig{Store: "redis", RedisURL: "redis://" + mr.Addr() + "/0", TTL: "1m"}}
	st, closeFn, err = openConversationStore(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	defer func() { _ = closeFn() }()
	_, ok := st.(*conversation.RedisStore)
	require.True(t, ok)

	put, err := st.Put(ctx, 7, conversation.State{Step: conversation.StepAwaitingTitle})
	require.NoError(t, err)
	got, ok, err := st.Load(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, put.Version, got.Version)
	assert.True(t, mr.Exists("issuebot:conv:7"))

	cfg.Conversation.RedisURL = "redis://127.0.0.1:1"
	_, _, err = openConversationStore(ctx, cfg, logx.Nop())
	assert.Error(t, err)
}
