package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"issuebot/internal/broadcast"
	"issuebot/internal/config"
	"issuebot/internal/conversation"
	"issuebot/internal/directory"
	"issuebot/internal/eventbus"
	"issuebot/internal/issuebot"
	"issuebot/internal/issues"
	rtsup "issuebot/internal/runtime/supervisor"
	"issuebot/internal/scheduler"
	"issuebot/internal/storage"
	kit "issuebot/internal/transport"
	telegram "issuebot/internal/transport/telegram/adapter"
	"issuebot/internal/transport/telegram/router"
	logx "issuebot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter   kit.Adapter
	convStore conversation.Store
	convClose func() error

	dir   *directory.Directory
	iss   *issues.Service
	bc    *broadcast.Dispatcher
	conv  *conversation.Controller
	bot   *issuebot.Bot
	cmdm  *router.CommandManager
	sched *scheduler.Service

	updates chan kit.Update
}

type Option func(*options)

type options struct {
	adapter kit.Adapter
}

// WithAdapter replaces the Bot API adapter (tests use the fake transport).
func WithAdapter(a kit.Adapter) Option { return func(o *options) { o.adapter = a } }

// New wires every component from the committed config. Nothing runs until Start.
func New(ctx context.Context, cfgm *config.ConfigManager, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	cfg := cfgm.Get()
	if cfg == nil {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}

	ad := o.adapter
	if ad == nil {
		acfg, err := mapAdapterConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(acfg, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	// Chat forwarding stays off until the target is set, then Apply enables it.
	lcfg := mapLogConfig(cfg)
	boot := lcfg
	boot.Chat.Enabled = false
	logs, root := logx.New(boot, ad)
	logs.SetChatTarget(cfg.Telegram.LogChat, cfg.Logging.Chat.ThreadID)
	logs.Apply(lcfg)
	log := root.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, log: log, logs: logs, adapter: ad, bus: eventbus.New(), updates: make(chan kit.Update, 256)}
	if err := a.build(ctx, cfg, root); err != nil {
		a.closeResources()
		logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, root logx.Logger) error {
	st, err := OpenStore(ctx, cfg, root)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = st

	a.convStore, a.convClose, err = openConversationStore(ctx, cfg, root.With(logx.String("comp", "conversation")))
	if err != nil {
		return err
	}

	a.dir = directory.New(st, a.bus, root, directory.WithAudit(st))
	if err := a.dir.EnsureSuperAdmins(ctx, cfg.Telegram.SuperAdminIDs); err != nil {
		return err
	}
	a.iss = issues.New(st, a.bus, root, issues.WithAudit(st))

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return err
	}
	a.bc = broadcast.New(bcfg, a.adapter, a.dir, root, broadcast.WithBus(a.bus), broadcast.WithAudit(st))
	a.conv = conversation.NewController(a.convStore, a.iss, a.bc, root)

	rcfg, err := mapRouterConfig(cfg)
	if err != nil {
		return err
	}
	a.cmdm = router.NewCommandManager(rcfg, root.With(logx.String("comp", "commands")), a.adapter, a.dir)
	a.bot = issuebot.New(issuebot.Deps{
		Directory:    a.dir,
		Issues:       a.iss,
		Conversation: a.conv,
		Broadcast:    a.bc,
		Logger:       root,
	}, issuebot.WithPageSize(cfg.Commands.PageSize))
	a.bot.Register(a.cmdm)

	a.sched = scheduler.New(mapSchedulerConfig(cfg), root)
	return a.registerJobs(cfg)
}

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapBroadcastConfig(cfg); err != nil {
			return err
		}
		if _, err := mapRouterConfig(cfg); err != nil {
			return err
		}
		_, err := conversationTTL(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.sup.Go0("commands.menu", func(c context.Context) {
		pctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.cmdm.PublishMenu(pctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("publish command menu failed", logx.Err(err))
		}
	})

	a.startEventLog()
	a.sched.Start(a.sup.Context())

	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.closeResources() })

	c := a.sup.Counters()
	if c.Active > 0 {
		a.log.Warn("goroutines still running after stop", logx.Int64("active", c.Active))
	}
	a.log.Info("stopped", logx.Uint64("goroutines_started", c.Started))
	return a.logs.Close()
}

func (a *App) closeResources() error {
	var errs []error
	if a.convClose != nil {
		errs = append(errs, a.convClose())
		a.convClose = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}

// step runs one shutdown step with an upper bound so a stuck component
// cannot stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
