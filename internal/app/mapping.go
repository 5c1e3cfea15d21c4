package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"issuebot/internal/broadcast"
	"issuebot/internal/config"
	"issuebot/internal/conversation"
	"issuebot/internal/scheduler"
	"issuebot/internal/storage"
	telegram "issuebot/internal/transport/telegram/adapter"
	"issuebot/internal/transport/telegram/router"
	logx "issuebot/pkg/logx"
)

const defaultSQLitePath = "./data/issuebot.db"

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.Duration("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	connect, err := config.Duration("storage.connect_timeout", sc.ConnectTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	out := storage.Config{
		Driver:         storage.NormalizeDriver(sc.Driver),
		Path:           strings.TrimSpace(sc.Path),
		DSN:            strings.TrimSpace(sc.DSN),
		BusyTimeout:    busy,
		ConnectTimeout: connect,
		MaxConns:       sc.MaxConns,
	}
	if out.Driver == storage.DriverSQLite && out.Path == "" {
		out.Path = defaultSQLitePath
	}
	return out, nil
}

// OpenStore opens the configured relational store. The CLI uses it for
// commands that never touch the chat transport.
func OpenStore(ctx context.Context, cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, sc, log)
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		APIURL:      cfg.Telegram.APIURL,
		PollTimeout: poll,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    lc.Chat.Enabled && cfg.Telegram.LogChat != 0,
			ThreadID:   lc.Chat.ThreadID,
			MinLevel:   lc.Chat.MinLevel,
			RatePerSec: lc.Chat.RatePerSec,
		},
	}
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	send, err := config.Duration("broadcast.send_timeout", cfg.Broadcast.SendTimeout)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		Workers:     cfg.Broadcast.Workers,
		RatePerSec:  cfg.Broadcast.RatePerSec,
		SendTimeout: send,
	}, nil
}

func mapRouterConfig(cfg *config.Config) (router.Config, error) {
	timeout, err := config.Duration("commands.timeout", cfg.Commands.Timeout)
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{
		Workers:        cfg.Commands.Workers,
		QueueSize:      cfg.Commands.QueueSize,
		CommandTimeout: timeout,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
	}
}

func conversationTTL(cfg *config.Config) (time.Duration, error) {
	return config.DurationOr("conversation.ttl", cfg.Conversation.TTL, conversation.DefaultTTL)
}

// openConversationStore returns the store and, for redis, the client to close.
func openConversationStore(ctx context.Context, cfg *config.Config, log logx.Logger) (conversation.Store, func() error, error) {
	ttl, err := conversationTTL(cfg)
	if err != nil {
		return nil, nil, err
	}
	cc := cfg.Conversation
	switch strings.ToLower(strings.TrimSpace(cc.Store)) {
	case "", "memory":
		return conversation.NewMemoryStore(ttl), func() error { return nil }, nil
	case "redis":
		opt, err := goredis.ParseURL(strings.TrimSpace(cc.RedisURL))
		if err != nil {
			return nil, nil, fmt.Errorf("conversation.redis_url: %w", err)
		}
		rdb := goredis.NewClient(opt)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("conversation redis ping: %w", err)
		}
		prefix := strings.TrimSpace(cc.RedisPrefix)
		if prefix == "" {
			prefix = "issuebot:conv:"
		}
		log.Info("conversation store: redis", logx.String("addr", opt.Addr), logx.Int("db", opt.DB))
		return conversation.NewRedisStore(rdb, prefix, ttl), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("conversation.store: unknown %q", cc.Store)
	}
}
