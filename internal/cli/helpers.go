package cli

import (
	"fmt"
	"log/slog"

	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/generator"
	"github.com/promptbandit/promptbandit/internal/store"
)

// withStore resolves the config, opens the database, runs fn, and
// handles cleanup.
func withStore(fn func(s *store.SQLiteStore, cfg config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s, cfg)
}

// newGenerator builds the candidate generator from config. Without an
// API key generation is disabled and plateau cycles degrade to no-ops.
func newGenerator(cfg config.Config, logger *slog.Logger) generator.Generator {
	if cfg.Generator.APIKey == "" {
		logger.Warn("no generator API key configured, candidate generation disabled")
		return generator.Disabled{}
	}
	return generator.NewOpenAI(cfg.Generator.APIKey, cfg.Generator.Model, cfg.Generator.Timeout, logger)
}
