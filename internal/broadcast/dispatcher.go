package broadcast

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"issuebot/internal/eventbus"
	"issuebot/internal/storage"
	kit "issuebot/internal/transport"
	logx "issuebot/pkg/logx"
)

type Config struct {
	Workers     int
	RatePerSec  int
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Recipients lists every user a broadcast goes to.
type Recipients interface {
	ListAllIdentities(ctx context.Context) ([]int64, error)
}

// Summary is the outcome of one broadcast.
type Summary struct {
	ID       string
	Name     string
	Total    int
	Sent     int
	Failed   int
	Failures []int64 // recipients whose send failed, ascending
	Took     time.Duration
}

type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter    kit.Adapter
	recipients Recipients
	bus        eventbus.Bus
	audit      storage.AuditStore
	log        logx.Logger
}

type Option func(*Dispatcher)

func WithBus(b eventbus.Bus) Option { return func(d *Dispatcher) { d.bus = b } }

func WithAudit(a storage.AuditStore) Option { return func(d *Dispatcher) { d.audit = a } }

func New(cfg Config, adapter kit.Adapter, recipients Recipients, log logx.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		adapter:    adapter,
		recipients: recipients,
		bus:        eventbus.Nop{},
		log:        log.With(logx.String("comp", "broadcast")),
	}
	for _, o := range opts {
		o(d)
	}
	d.Apply(cfg)
	return d
}

// Apply swaps workers, pacing and timeout. Running broadcasts keep the
// settings they started with.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

type actorKey struct{}

// WithActor tags ctx with the user who triggered a broadcast (for the audit log).
func WithActor(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

func actorFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(actorKey{}).(int64)
	return id
}

// Broadcast sends text to every registered user. It fails only when the
// recipient list cannot be read; delivery failures are in the Summary.
func (d *Dispatcher) Broadcast(ctx context.Context, name, text string, opt *kit.SendOptions) (Summary, error) {
	ids, err := d.recipients.ListAllIdentities(ctx)
	if err != nil {
		return Summary{Name: name}, fmt.Errorf("broadcast %s: list recipients: %w", name, err)
	}
	return d.SendTo(ctx, name, ids, text, opt), nil
}

// SendTo attempts delivery to each id exactly once.
func (d *Dispatcher) SendTo(ctx context.Context, name string, ids []int64, text string, opt *kit.SendOptions) Summary {
	d.mu.Lock()
	cfg, lim := d.cfg, d.limiter
	d.mu.Unlock()

	start := time.Now()
	actor := actorFrom(ctx)
	// Detached: an in-flight broadcast is never cancelled half way.
	ctx = context.WithoutCancel(ctx)
	sum := Summary{ID: "bc:" + strconv.FormatInt(start.UnixNano(), 36), Name: name, Total: len(ids)}

	d.log.Info("broadcast started", logx.String("job", sum.ID), logx.String("name", name), logx.Int("total", len(ids)), logx.Int("workers", cfg.Workers))

	var (
		mu       sync.Mutex
		failures []int64
	)
	g := new(errgroup.Group)
	g.SetLimit(cfg.Workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := d.sendOne(ctx, cfg, lim, id, text, opt); err != nil {
				d.log.Warn("broadcast send failed", logx.String("job", sum.ID), logx.String("name", name), logx.Int64("chat_id", id), logx.Err(err))
				mu.Lock()
				failures = append(failures, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i] < failures[j] })
	sum.Failures = failures
	sum.Failed = len(failures)
	sum.Sent = sum.Total - sum.Failed
	sum.Took = time.Since(start)

	fields := []logx.Field{
		logx.String("job", sum.ID),
		logx.String("name", name),
		logx.Int("total", sum.Total),
		logx.Int("sent", sum.Sent),
		logx.Int("failed", sum.Failed),
		logx.Duration("dur", sum.Took),
	}
	if sum.Failed > 0 {
		d.log.Warn("broadcast finished with failures", fields...)
	} else {
		d.log.Info("broadcast finished", fields...)
	}

	d.record(ctx, actor, sum)
	return sum
}

func (d *Dispatcher) sendOne(ctx context.Context, cfg Config, lim *rate.Limiter, id int64, text string, opt *kit.SendOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	_, err = d.adapter.SendText(sctx, kit.Private(id), text, opt)
	return err
}

func (d *Dispatcher) record(ctx context.Context, actor int64, sum Summary) {
	d.bus.Publish(eventbus.Event{Type: eventbus.TopicBroadcastFinished, Data: eventbus.BroadcastEvent{
		Name: sum.Name, Total: sum.Total, Sent: sum.Sent, Failed: sum.Failed, Took: sum.Took,
	}})
	if d.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.audit.AppendAudit(actx, storage.AuditEntry{
		At: time.Now(), ActorID: actor, Component: "broadcast", Action: "send", Target: sum.Name,
		OK: sum.Sent, Fail: sum.Failed, TookMS: sum.Took.Milliseconds(),
	}); err != nil {
		d.log.Warn("audit append failed", logx.Err(err))
	}
}
