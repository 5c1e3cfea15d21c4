package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"issuebot/internal/app"
	"issuebot/internal/config"
	"issuebot/internal/directory"
	"issuebot/internal/eventbus"
	"issuebot/internal/storage"
	logx "issuebot/pkg/logx"
)

func loadDotEnv() error {
	files := []string{envFile}
	if cfgPath != "" {
		// A .env next to the config file is picked up too.
		files = append(files, filepath.Join(filepath.Dir(cfgPath), ".env"))
	}
	return config.LoadDotEnv(files...)
}

// openStore opens storage for the operator commands. The bot token is not
// required here, so the config is parsed without full validation.
func openStore(ctx context.Context) (storage.Store, *config.Config, error) {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	lvl := cfg.Logging.Level
	if lvl == "" {
		lvl = "warn"
	}
	st, err := app.OpenStore(ctx, cfg, logx.NewWriter(os.Stderr, lvl))
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func openDirectory(ctx context.Context) (*directory.Directory, storage.Store, error) {
	st, _, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return directory.New(st, eventbus.Nop{}, logx.Nop(), directory.WithAudit(st)), st, nil
}
