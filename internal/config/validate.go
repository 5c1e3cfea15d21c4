package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate rejects configs the app cannot run with. It is used at startup
// and before a hot reload is committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		check(fmt.Errorf("telegram.token is required (or set %s)", EnvToken))
	}
	for _, id := range cfg.Telegram.SuperAdminIDs {
		if id <= 0 {
			check(fmt.Errorf("telegram.super_admin_ids: invalid id %d", id))
		}
	}
	if cfg.Logging.Chat.Enabled && cfg.Telegram.LogChat == 0 {
		check(errors.New("logging.chat.enabled requires telegram.log_chat"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pg", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			check(fmt.Errorf("storage.dsn is required for postgres (or set %s)", EnvDatabase))
		}
	default:
		check(fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
	}
	if cfg.Storage.MaxConns < 0 {
		check(errors.New("storage.max_conns must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Conversation.Store)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Conversation.RedisURL) == "" {
			check(fmt.Errorf("conversation.redis_url is required for the redis store (or set %s)", EnvRedisURL))
		}
	default:
		check(fmt.Errorf("conversation.store: unknown %q", cfg.Conversation.Store))
	}

	for _, n := range []struct {
		path string
		v    int
	}{
		{"broadcast.workers", cfg.Broadcast.Workers},
		{"broadcast.rate_per_sec", cfg.Broadcast.RatePerSec},
		{"commands.workers", cfg.Commands.Workers},
		{"commands.queue_size", cfg.Commands.QueueSize},
		{"commands.page_size", cfg.Commands.PageSize},
		{"logging.chat.rate_per_sec", cfg.Logging.Chat.RatePerSec},
	} {
		if n.v < 0 {
			check(fmt.Errorf("%s must be >= 0", n.path))
		}
	}

	for _, d := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"storage.connect_timeout", cfg.Storage.ConnectTimeout},
		{"conversation.ttl", cfg.Conversation.TTL},
		{"broadcast.send_timeout", cfg.Broadcast.SendTimeout},
		{"commands.timeout", cfg.Commands.Timeout},
		{"scheduler.digest_timeout", cfg.Scheduler.DigestTimeout},
		{"scheduler.sweep_every", cfg.Scheduler.SweepEvery},
	} {
		_, err := Duration(d.path, d.raw)
		check(err)
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			check(fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}
	return errors.Join(errs...)
}
