package directory

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuebot/internal/domain"
	"issuebot/internal/eventbus"
	"issuebot/internal/storage"
	logx "issuebot/pkg/logx"
)

func newTestDirectory(t *testing.T) (*Directory, eventbus.Bus) {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "dir.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	bus := eventbus.New()
	return New(st, bus, logx.Nop(), WithAudit(st)), bus
}

func TestRegisterIfAbsentTwice(t *testing.T) {
	d, bus := newTestDirectory(t)
	events, unsub := bus.Subscribe(4, eventbus.TopicUserRegistered)
	defer unsub()
	ctx := context.Background()

	created, err := d.RegisterIfAbsent(ctx, 42, "Ann", "ann")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = d.RegisterIfAbsent(ctx, 42, "Ann", "ann")
	require.NoError(t, err)
	assert.False(t, created)

	ids, err := d.ListAllIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ids)
	assert.Len(t, events, 1)

	u, ok, err := d.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleEmployee, u.Role)
	assert.Equal(t, domain.StatusPendingApproval, u.Status)
}

func TestRegisterIfAbsentConcurrent(t *testing.T) {
	d, _ := newTestDirectory(t)
	var created atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := d.RegisterIfAbsent(context.Background(), 5, "Bo", "")
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())
}

func TestIsPrivileged(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	ok, err := d.IsPrivileged(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "unknown users are not privileged")

	_, err = d.RegisterIfAbsent(ctx, 1, "Emp", "")
	require.NoError(t, err)
	ok, err = d.IsPrivileged(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.EnsureSuperAdmins(ctx, []int64{9}))
	ok, err = d.IsPrivileged(ctx, 9)
	require.NoError(t, err)
	assert.True(t, ok)

	priv, err := d.ListPrivilegedIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, priv)
}

func TestTouchActivity(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return now }

	require.NoError(t, d.TouchActivity(ctx, 404), "unknown user is a no-op")

	_, err := d.RegisterIfAbsent(ctx, 3, "C", "")
	require.NoError(t, err)
	now = now.Add(time.Hour)
	require.NoError(t, d.TouchActivity(ctx, 3))

	u, _, err := d.Get(ctx, 3)
	require.NoError(t, err)
	assert.True(t, u.LastSeen.Equal(now))
}

func TestSetRoleRequiresSuperAdmin(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	_, _ = d.RegisterIfAbsent(ctx, 1, "Emp", "")
	_, _ = d.RegisterIfAbsent(ctx, 2, "Adm", "")
	require.NoError(t, d.EnsureSuperAdmins(ctx, []int64{100}))
	require.NoError(t, d.SetRole(ctx, 100, 2, domain.RoleAdmin))

	assert.ErrorIs(t, d.SetRole(ctx, 1, 2, domain.RoleEmployee), ErrForbidden)
	assert.ErrorIs(t, d.SetRole(ctx, 2, 1, domain.RoleAdmin), ErrForbidden, "admins cannot change roles")
	assert.ErrorIs(t, d.SetRole(ctx, 100, 555, domain.RoleAdmin), ErrUnknownUser)
	assert.Error(t, d.SetRole(ctx, 100, 1, domain.Role("owner")))

	role, known, err := d.Role(ctx, 2)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, domain.RoleAdmin, role)

	assert.ErrorIs(t, d.Approve(ctx, 2, 1), ErrForbidden)
	require.NoError(t, d.Approve(ctx, 100, 1))
	u, _, err := d.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, u.Status)
}

func TestSetProfile(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	_, _ = d.RegisterIfAbsent(ctx, 1, "Boss", "")
	_, _ = d.RegisterIfAbsent(ctx, 2, "Worker", "")

	self := int64(2)
	assert.Error(t, d.SetProfile(ctx, 2, domain.Profile{ManagerID: &self}))

	mgr := int64(1)
	require.NoError(t, d.SetProfile(ctx, 2, domain.Profile{FullName: "W. Orker", ManagerID: &mgr}))
	assert.ErrorIs(t, d.SetProfile(ctx, 77, domain.Profile{}), ErrUnknownUser)

	require.NoError(t, d.ForceRole(ctx, 2, domain.RoleAdmin))
	role, _, err := d.Role(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, role)
}
