package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "issuebot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		kind SpecKind
		spec string
	}{
		{"0 9 * * 1-5", SpecCron, "0 9 * * 1-5"},
		{"@daily", SpecCron, "@daily"},
		{"cron: */5 * * * *", SpecCron, "*/5 * * * *"},
		{"15m", SpecInterval, "@every 15m0s"},
		{"00:50", SpecInterval, "@every 50m0s"},
		{"every: 2h", SpecInterval, "@every 2h0m0s"},
	}
	for _, c := range cases {
		ps, err := ParseSchedule(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.kind, ps.Kind, c.in)
		assert.Equal(t, c.spec, ps.Spec(), c.in)
	}

	for _, bad := range []string{"", "cron:", "soon", "10ms", "01:75"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddScheduleValidates(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	job := func(context.Context) error { return nil }

	assert.Error(t, s.AddSchedule("", "1m", 0, job))
	assert.Error(t, s.AddSchedule("x", "1m", 0, nil))
	assert.Error(t, s.AddSchedule("x", "61 * * * *", 0, job))
	require.NoError(t, s.AddSchedule("x", "1m", time.Second, job))
	require.NoError(t, s.AddSchedule("x", "@hourly", time.Second, job))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "@hourly", snap[0].Spec)
	assert.True(t, snap[0].Next.IsZero())

	assert.True(t, s.Remove("x"))
	assert.False(t, s.Remove("x"))
}

func TestStartComputesNextRun(t *testing.T) {
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	require.NoError(t, s.AddSchedule("digest", "0 9 * * *", 0, func(context.Context) error { return nil }))
	s.Start(context.Background())
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	require.False(t, snap[0].Next.IsZero())
	assert.Equal(t, 9, snap[0].Next.UTC().Hour())

	// Added after Start: registered with cron immediately.
	require.NoError(t, s.AddSchedule("sweep", "5m", 0, func(context.Context) error { return nil }))
	for _, info := range s.Snapshot() {
		assert.False(t, info.Next.IsZero(), info.Name)
	}
}

func TestDisabledDoesNotStart(t *testing.T) {
	s := New(Config{Enabled: false}, logx.Nop())
	require.NoError(t, s.AddSchedule("x", "1s", 0, func(context.Context) error { return nil }))
	s.Start(context.Background())
	assert.True(t, s.Snapshot()[0].Next.IsZero())
	s.Stop(context.Background())
}

func TestIntervalJobRuns(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	var runs atomic.Int32
	require.NoError(t, s.AddSchedule("tick", "1s", 0, func(context.Context) error {
		runs.Add(1)
		return errors.New("failures are logged, not fatal")
	}))
	s.Start(context.Background())
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := New(Config{}, logx.Nop())
	require.NoError(t, s.AddSchedule("slow", "1h", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestApplyTogglesAndRestarts(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	require.NoError(t, s.AddSchedule("x", "0 9 * * *", 0, func(context.Context) error { return nil }))
	s.Start(context.Background())

	s.Apply(Config{Enabled: true, Timezone: "Asia/Tokyo"})
	next := s.Snapshot()[0].Next
	require.False(t, next.IsZero())
	assert.Equal(t, "Asia/Tokyo", next.Location().String())

	s.Apply(Config{Enabled: false})
	assert.True(t, s.Snapshot()[0].Next.IsZero())

	s.Apply(Config{Enabled: true})
	assert.False(t, s.Snapshot()[0].Next.IsZero())
	s.Stop(context.Background())
}
