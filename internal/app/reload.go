package app

import (
	"context"
	"strings"
	"time"

	"issuebot/internal/config"
	"issuebot/internal/conversation"
	logx "issuebot/pkg/logx"
)

// startReload applies hot-reloaded config to the running components.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: only the newest config matters.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.NeedsRestart(sections); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.SetChatTarget(next.Telegram.LogChat, next.Logging.Chat.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	if bcfg, err := mapBroadcastConfig(next); err == nil {
		a.bc.Apply(bcfg)
	}
	if rcfg, err := mapRouterConfig(next); err == nil {
		a.cmdm.SetCommandTimeout(rcfg.CommandTimeout)
	}
	if ms, ok := a.convStore.(*conversation.MemoryStore); ok {
		if ttl, err := conversationTTL(next); err == nil {
			ms.SetTTL(ttl)
		}
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.dir.EnsureSuperAdmins(sctx, next.Telegram.SuperAdminIDs); err != nil {
		a.log.Warn("super admin bootstrap failed", logx.Err(err))
	}
	cancel()

	a.sched.Apply(mapSchedulerConfig(next))
	if err := a.applyDigest(next); err != nil {
		a.log.Warn("digest schedule rejected; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
