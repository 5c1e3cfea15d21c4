package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuebot/internal/domain"
	logx "issuebot/pkg/logx"
)

func openTestSQLite(t *testing.T) Store {
	t.Helper()
	st, err := Open(context.Background(), Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "bot.db"),
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// stores returns every backend available in this environment.
func stores(t *testing.T) map[string]func(t *testing.T) Store {
	out := map[string]func(t *testing.T) Store{"sqlite": openTestSQLite}
	if dsn := os.Getenv("ISSUEBOT_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			t.Helper()
			ctx := context.Background()
			st, err := Open(ctx, Config{Driver: "postgres", DSN: dsn, ConnectTimeout: 5 * time.Second}, logx.Nop())
			require.NoError(t, err)
			pg := st.(*pgStore)
			_, err = pg.pool.Exec(ctx, `TRUNCATE audit, issues, users RESTART IDENTITY CASCADE`)
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			return st
		}
	}
	return out
}

func addUser(t *testing.T, st Store, id int64) {
	t.Helper()
	created, err := st.InsertUserIfAbsent(context.Background(), domain.NewUser(id, "u", "", time.Now()))
	require.NoError(t, err)
	require.True(t, created)
}

func TestInsertUserIfAbsent(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			now := time.Now()

			created, err := st.InsertUserIfAbsent(ctx, domain.NewUser(10, "Ann", "ann", now))
			require.NoError(t, err)
			assert.True(t, created)

			created, err = st.InsertUserIfAbsent(ctx, domain.NewUser(10, "Other", "other", now))
			require.NoError(t, err)
			assert.False(t, created)

			u, ok, err := st.GetUser(ctx, 10)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Ann", u.FirstName)
			assert.Equal(t, domain.RoleEmployee, u.Role)
			assert.Equal(t, domain.StatusPendingApproval, u.Status)
			assert.Nil(t, u.Profile.ManagerID)

			ids, err := st.ListUserIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{10}, ids)
		})
	}
}

func TestInsertUserIfAbsentConcurrent(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			var created atomic.Int32
			var wg sync.WaitGroup
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := st.InsertUserIfAbsent(context.Background(), domain.NewUser(77, "x", "", time.Now()))
					assert.NoError(t, err)
					if ok {
						created.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), created.Load())
		})
	}
}

func TestUserRoleStatusAndProfile(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			addUser(t, st, 1)
			addUser(t, st, 2)

			ok, err := st.UpdateUserRole(ctx, 2, domain.RoleAdmin)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = st.UpdateUserRole(ctx, 99, domain.RoleAdmin)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.UpsertUserRole(ctx, 3, domain.RoleSuperAdmin, time.Now()))
			require.NoError(t, st.UpsertUserRole(ctx, 1, domain.RoleSuperAdmin, time.Now()))

			ids, err := st.ListUserIDsByRole(ctx, domain.RoleAdmin, domain.RoleSuperAdmin)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2, 3}, ids)

			u, _, err := st.GetUser(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusActive, u.Status)

			ok, err = st.UpdateUserStatus(ctx, 2, domain.StatusActive)
			require.NoError(t, err)
			assert.True(t, ok)

			mgr := int64(1)
			ok, err = st.UpdateUserProfile(ctx, 2, domain.Profile{EmployeeID: "E-2", Department: "Ops", ManagerID: &mgr})
			require.NoError(t, err)
			assert.True(t, ok)
			u, _, err = st.GetUser(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, "E-2", u.Profile.EmployeeID)
			assert.Equal(t, "Ops", u.Profile.Department)
			require.NotNil(t, u.Profile.ManagerID)
			assert.Equal(t, int64(1), *u.Profile.ManagerID)

			seen := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			require.NoError(t, st.TouchUser(ctx, 2, seen))
			require.NoError(t, st.TouchUser(ctx, 404, seen))
			u, _, err = st.GetUser(ctx, 2)
			require.NoError(t, err)
			assert.True(t, u.LastSeen.Equal(seen), "last_seen %v != %v", u.LastSeen, seen)
		})
	}
}

func TestIssueLifecycle(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			addUser(t, st, 1)
			addUser(t, st, 2)

			iss, err := st.InsertIssue(ctx, "Server down", "fix in prog", 1, time.Now())
			require.NoError(t, err)
			assert.Equal(t, int64(1), iss.ID)
			assert.Equal(t, domain.IssueOpen, iss.Status)
			assert.Empty(t, iss.Resolution)
			assert.Zero(t, iss.ClosedBy)
			assert.True(t, iss.ClosedAt.IsZero())

			closed, ok, err := st.CloseIssue(ctx, iss.ID, "Patched v2.1", 2, time.Now())
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, domain.IssueClosed, closed.Status)
			assert.Equal(t, "Patched v2.1", closed.Resolution)
			assert.Equal(t, int64(2), closed.ClosedBy)

			_, ok, err = st.CloseIssue(ctx, iss.ID, "second attempt", 1, time.Now().Add(time.Hour))
			require.NoError(t, err)
			assert.False(t, ok)

			got, ok, err := st.GetIssue(ctx, iss.ID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Patched v2.1", got.Resolution)
			assert.Equal(t, int64(2), got.ClosedBy)
			assert.True(t, got.ClosedAt.Equal(closed.ClosedAt))

			_, ok, err = st.CloseIssue(ctx, 404, "nothing here", 1, time.Now())
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = st.GetIssue(ctx, 404)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCloseIssueConcurrent(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			addUser(t, st, 1)
			iss, err := st.InsertIssue(context.Background(), "Printer", "out of toner again", 1, time.Now())
			require.NoError(t, err)

			var wins atomic.Int32
			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, ok, err := st.CloseIssue(context.Background(), iss.ID, "replaced toner", 1, time.Now())
					assert.NoError(t, err)
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestListOpenIssuesOrderAndFilter(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			addUser(t, st, 1)
			addUser(t, st, 2)

			base := time.Now().Add(-time.Hour)
			a, err := st.InsertIssue(ctx, "first", "description one", 1, base)
			require.NoError(t, err)
			b, err := st.InsertIssue(ctx, "second", "description two", 2, base.Add(time.Minute))
			require.NoError(t, err)
			// Same timestamp as b: the higher id is newer.
			c, err := st.InsertIssue(ctx, "third", "description three", 1, base.Add(time.Minute))
			require.NoError(t, err)
			d, err := st.InsertIssue(ctx, "fourth", "description four", 1, base.Add(2*time.Minute))
			require.NoError(t, err)
			_, _, err = st.CloseIssue(ctx, d.ID, "done and dusted", 1, time.Now())
			require.NoError(t, err)

			all, err := st.ListOpenIssues(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, []int64{c.ID, b.ID, a.ID}, issueIDs(all))

			one := int64(1)
			mine, err := st.ListOpenIssues(ctx, &one)
			require.NoError(t, err)
			assert.Equal(t, []int64{c.ID, a.ID}, issueIDs(mine))
		})
	}
}

func TestAppendAudit(t *testing.T) {
	st := openTestSQLite(t)
	require.NoError(t, st.AppendAudit(context.Background(), AuditEntry{
		ActorID: 1, Component: "broadcast", Action: "send", Target: "issue.created", OK: 3, Fail: 1,
	}))
	var n int
	require.NoError(t, st.(*sqliteStore).db.QueryRow(`SELECT COUNT(*) FROM audit`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestErrorsWrapStoreUnavailable(t *testing.T) {
	st := openTestSQLite(t)
	require.NoError(t, st.Close())
	_, err := st.ListUserIDs(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestInsertIssueRequiresKnownCreator(t *testing.T) {
	st := openTestSQLite(t)
	_, err := st.InsertIssue(context.Background(), "title", "long enough text", 999, time.Now())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)
	assert.Equal(t, DriverSQLite, NormalizeDriver(""))
	assert.Equal(t, DriverPostgres, NormalizeDriver("PostgreSQL"))
}

func issueIDs(in []domain.Issue) []int64 {
	out := make([]int64, 0, len(in))
	for _, i := range in {
		out = append(out, i.ID)
	}
	return out
}
