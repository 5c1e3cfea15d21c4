package config

// Config is the on-disk configuration (JSON or YAML). Environment variables
// loaded by ApplyEnv override the secrets and deployment specific fields.
//
// All durations are Go duration strings ("500ms", "10s", "30m").
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Conversation ConversationConfig `json:"conversation"`
	Broadcast    BroadcastConfig    `json:"broadcast"`
	Commands     CommandsConfig     `json:"commands"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// APIURL is the Bot API base; empty means the Bale endpoint.
	APIURL string `json:"api_url,omitempty"`
	// SuperAdminIDs are promoted to super_admin at startup.
	SuperAdminIDs []int64 `json:"super_admin_ids,omitempty"`
	// LogChat receives forwarded log lines when logging.chat.enabled is set.
	LogChat     int64  `json:"log_chat,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the relational store.
//
//	"storage": { "driver": "sqlite", "path": "./data/issuebot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@db/issuebot" }
type StorageConfig struct {
	Driver         string `json:"driver"`
	Path           string `json:"path,omitempty"`
	DSN            string `json:"dsn,omitempty"` // never logged
	BusyTimeout    string `json:"busy_timeout,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"`
	MaxConns       int32  `json:"max_conns,omitempty"`
}

// ConversationConfig controls where pending admin dialogs live.
// Store is "memory" (default) or "redis".
type ConversationConfig struct {
	Store       string `json:"store,omitempty"`
	TTL         string `json:"ttl,omitempty"`
	RedisURL    string `json:"redis_url,omitempty"` // never logged
	RedisPrefix string `json:"redis_prefix,omitempty"`
}

type BroadcastConfig struct {
	Workers     int    `json:"workers,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

type CommandsConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// SchedulerConfig controls periodic jobs. An empty Digest disables the
// open-issues digest; the conversation sweep always runs when enabled.
type SchedulerConfig struct {
	Enabled       bool   `json:"enabled"`
	Timezone      string `json:"timezone,omitempty"`
	Digest        string `json:"digest,omitempty"`
	DigestTimeout string `json:"digest_timeout,omitempty"`
	SweepEvery    string `json:"sweep_every,omitempty"`
}
