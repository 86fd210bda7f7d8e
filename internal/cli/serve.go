package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/promptbandit/promptbandit/internal/bandit"
	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/observer"
	"github.com/promptbandit/promptbandit/internal/plateau"
	"github.com/promptbandit/promptbandit/internal/scheduler"
	"github.com/promptbandit/promptbandit/internal/seed"
	"github.com/promptbandit/promptbandit/internal/segment"
	"github.com/promptbandit/promptbandit/internal/server"
	"github.com/promptbandit/promptbandit/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the promptbandit server",
	Long: `Start the HTTP server and background workers.

The server provides:
  - POST /api/select   pick the next variant for a subject
  - POST /api/convert  report a conversion event
  - GET  /api/variants ranked pool with win rates
  - GET  /health, GET /metrics

Background workers sweep expired observation windows and run the
plateau cycle on their configured cadence.

Example:
  promptbandit serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore, cfg config.Config) error {
		if port != 0 {
			cfg.Port = port
		}

		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Bootstrap the seed pool; existing rows keep their weights.
		inserted, err := seed.Ensure(ctx, s)
		if err != nil {
			return err
		}
		if inserted > 0 {
			logger.Info("seeded variant pool", "inserted", inserted)
		}

		segments := segment.New(s, logger)
		selector := bandit.NewSelector(s, logger, cfg.ObservationWindow)
		obs := observer.New(s, segments, logger)
		detector := plateau.New(s, newGenerator(cfg, logger), logger, cfg.PlateauCooldown)

		srv := server.New(s, selector, segments, obs, logger, cfg.Port)
		sched := scheduler.New(obs, detector, logger, cfg.SweepInterval, cfg.SweepBatchSize, cfg.PlateauInterval)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Start(ctx) })
		g.Go(func() error { return sched.Run(ctx) })

		fmt.Printf("promptbandit running on http://localhost:%d\n", cfg.Port)
		fmt.Println("Press Ctrl+C to stop")

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
