package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognized by ApplyEnv.
const (
	EnvToken    = "BOT_TOKEN"
	EnvAPIURL   = "BOT_API_URL"
	EnvDatabase = "DATABASE_URL"
	EnvAdminID  = "ADMIN_ID"
	EnvAdminIDs = "ADMIN_IDS"
	EnvRedisURL = "REDIS_URL"
	EnvLogLevel = "LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE pairs from files into the process
// environment. Variables already set win; missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
//
// DATABASE_URL selects postgres when it looks like a postgres URL and is
// treated as a sqlite path otherwise. ADMIN_ID and ADMIN_IDS (comma or space
// separated) are merged into telegram.super_admin_ids.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	if v := env(EnvToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := env(EnvAPIURL); v != "" {
		cfg.Telegram.APIURL = v
	}
	if v := env(EnvDatabase); v != "" {
		low := strings.ToLower(v)
		if strings.HasPrefix(low, "postgres://") || strings.HasPrefix(low, "postgresql://") {
			cfg.Storage.Driver = "postgres"
			cfg.Storage.DSN = v
		} else {
			cfg.Storage.Driver = "sqlite"
			cfg.Storage.Path = strings.TrimPrefix(v, "sqlite://")
		}
	}
	if v := env(EnvRedisURL); v != "" {
		cfg.Conversation.RedisURL = v
		if strings.TrimSpace(cfg.Conversation.Store) == "" {
			cfg.Conversation.Store = "redis"
		}
	}
	if v := env(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}

	for _, key := range []string{EnvAdminID, EnvAdminIDs} {
		ids, err := parseIDList(env(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		cfg.Telegram.SuperAdminIDs = mergeIDs(cfg.Telegram.SuperAdminIDs, ids)
	}
	return nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func parseIDList(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", f)
		}
		out = append(out, id)
	}
	return out, nil
}

func mergeIDs(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, list := range [][]int64{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
