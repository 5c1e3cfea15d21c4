package storage

import (
	"context"
	"fmt"
	"strings"

	logx "issuebot/pkg/logx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open initializes the configured store and applies migrations.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := NormalizeDriver(cfg.Driver); driver {
	case DriverSQLite:
		return openSQLite(ctx, cfg, log)
	case DriverPostgres:
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}

// NormalizeDriver maps aliases to a driver name; empty means sqlite.
func NormalizeDriver(s string) string {
	switch d := strings.ToLower(strings.TrimSpace(s)); d {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres
	default:
		return d
	}
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
