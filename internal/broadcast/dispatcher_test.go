package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"issuebot/internal/eventbus"
	"issuebot/internal/storage"
	kit "issuebot/internal/transport"
	"issuebot/internal/transport/fake"
	logx "issuebot/pkg/logx"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type staticRecipients struct {
	ids []int64
	err error
}

func (s staticRecipients) ListAllIdentities(context.Context) ([]int64, error) { return s.ids, s.err }

type auditSpy struct{ entries []storage.AuditEntry }

func (a *auditSpy) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

func fastConfig() Config { return Config{Workers: 3, RatePerSec: 1000, SendTimeout: time.Second} }

func TestBroadcastIsolatesFailures(t *testing.T) {
	ad := fake.New()
	ad.FailFor(2, 5)
	ids := []int64{1, 2, 3, 4, 5, 6, 7}
	audit := &auditSpy{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(2, eventbus.TopicBroadcastFinished)
	defer unsub()

	d := New(fastConfig(), ad, staticRecipients{ids: ids}, logx.Nop(), WithBus(bus), WithAudit(audit))
	sum, err := d.Broadcast(WithActor(context.Background(), 99), "issue.created", "hello", &kit.SendOptions{ParseMode: "HTML"})
	require.NoError(t, err)

	assert.Equal(t, 7, sum.Total)
	assert.Equal(t, 5, sum.Sent)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, []int64{2, 5}, sum.Failures)

	// Every recipient attempted exactly once, no retries.
	sent := ad.Sent()
	require.Len(t, sent, len(ids))
	seen := map[int64]int{}
	for _, s := range sent {
		seen[s.To.ChatID]++
		assert.Equal(t, "hello", s.Text)
		assert.Equal(t, "HTML", s.Opt.ParseMode)
	}
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], "recipient %d", id)
	}

	require.Len(t, audit.entries, 1)
	assert.Equal(t, int64(99), audit.entries[0].ActorID)
	assert.Equal(t, 5, audit.entries[0].OK)
	assert.Equal(t, 2, audit.entries[0].Fail)

	require.Len(t, events, 1)
	ev := (<-events).Data.(eventbus.BroadcastEvent)
	assert.Equal(t, 2, ev.Failed)
}

func TestBroadcastRecipientError(t *testing.T) {
	boom := errors.New("db down")
	d := New(fastConfig(), fake.New(), staticRecipients{err: boom}, logx.Nop())
	_, err := d.Broadcast(context.Background(), "x", "y", nil)
	assert.ErrorIs(t, err, boom)
}

func TestBroadcastSurvivesCallerCancellation(t *testing.T) {
	ad := fake.New()
	d := New(fastConfig(), ad, staticRecipients{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := d.SendTo(ctx, "late", []int64{1, 2, 3}, "still delivered", nil)
	assert.Equal(t, 3, sum.Sent)
	assert.Zero(t, sum.Failed)
	assert.Len(t, ad.Sent(), 3)
}

func TestSendToEmpty(t *testing.T) {
	d := New(fastConfig(), fake.New(), staticRecipients{}, logx.Nop())
	sum := d.SendTo(context.Background(), "none", nil, "x", nil)
	assert.Zero(t, sum.Total)
	assert.Zero(t, sum.Sent)
	assert.Empty(t, sum.Failures)
}

type slowAdapter struct{ *fake.Adapter }

func (s slowAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if to.ChatID == 2 {
		<-ctx.Done()
		return kit.MessageRef{}, ctx.Err()
	}
	return s.Adapter.SendText(ctx, to, text, opt)
}

func TestSendTimeoutCountsAsFailure(t *testing.T) {
	d := New(Config{Workers: 2, RatePerSec: 1000, SendTimeout: 20 * time.Millisecond}, slowAdapter{fake.New()}, staticRecipients{}, logx.Nop())
	sum := d.SendTo(context.Background(), "slow", []int64{1, 2, 3}, "x", nil)
	assert.Equal(t, 2, sum.Sent)
	assert.Equal(t, []int64{2}, sum.Failures)
}

func TestApplyDefaults(t *testing.T) {
	d := New(Config{}, fake.New(), staticRecipients{}, logx.Nop())
	assert.Equal(t, 4, d.cfg.Workers)
	d.Apply(Config{Workers: 8, RatePerSec: 5})
	assert.Equal(t, 8, d.cfg.Workers)
	assert.Equal(t, 10*time.Second, d.cfg.SendTimeout)
}
