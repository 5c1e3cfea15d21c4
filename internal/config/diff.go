package config

import (
	"slices"
	"strings"

	logx "issuebot/pkg/logx"
)

// restartSections cannot be applied live.
var restartSections = []string{"storage", "conversation", "telegram.connection"}

// SummarizeConfigChange lists the changed sections and safe attrs for
// logging. Tokens, DSNs and redis URLs are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	o, n := oldCfg, newCfg

	if o.Telegram.Token != n.Telegram.Token || trim(o.Telegram.APIURL) != trim(n.Telegram.APIURL) ||
		trim(o.Telegram.PollTimeout) != trim(n.Telegram.PollTimeout) {
		changed = append(changed, "telegram.connection")
		attrs = append(attrs,
			logx.String("telegram.api_url", trim(n.Telegram.APIURL)),
			logx.Bool("telegram.token_changed", o.Telegram.Token != n.Telegram.Token),
		)
	}
	if !slices.Equal(o.Telegram.SuperAdminIDs, n.Telegram.SuperAdminIDs) || o.Telegram.LogChat != n.Telegram.LogChat {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.super_admins", len(n.Telegram.SuperAdminIDs)),
			logx.Bool("telegram.log_chat_set", n.Telegram.LogChat != 0),
		)
	}
	if o.Logging != n.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.Console),
			logx.Bool("logging.file", n.Logging.File.Enabled),
			logx.Bool("logging.chat", n.Logging.Chat.Enabled),
		)
	}
	if o.Storage != n.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", trim(n.Storage.Driver)),
			logx.Bool("storage.dsn_set", trim(n.Storage.DSN) != ""),
		)
	}
	if o.Conversation != n.Conversation {
		changed = append(changed, "conversation")
		attrs = append(attrs,
			logx.String("conversation.store", trim(n.Conversation.Store)),
			logx.String("conversation.ttl", trim(n.Conversation.TTL)),
		)
	}
	if o.Broadcast != n.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.workers", n.Broadcast.Workers),
			logx.Int("broadcast.rate_per_sec", n.Broadcast.RatePerSec),
		)
	}
	if o.Commands != n.Commands {
		changed = append(changed, "commands")
		attrs = append(attrs, logx.String("commands.timeout", trim(n.Commands.Timeout)))
	}
	if o.Scheduler != n.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", n.Scheduler.Enabled),
			logx.String("scheduler.timezone", trim(n.Scheduler.Timezone)),
			logx.String("scheduler.digest", trim(n.Scheduler.Digest)),
		)
	}
	slices.Sort(changed)
	return changed, attrs
}

// NeedsRestart reports the changed sections that only take effect after a restart.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		if slices.Contains(restartSections, s) {
			out = append(out, s)
		}
	}
	return out
}

func trim(s string) string { return strings.TrimSpace(s) }
