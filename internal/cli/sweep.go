package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/observer"
	"github.com/promptbandit/promptbandit/internal/segment"
	"github.com/promptbandit/promptbandit/internal/store"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close expired observation windows once",
	Long: `Run one pass of the expired-window sweep: selections whose window
elapsed without a conversion are closed as expired and count against
their variant. The serve command runs this continuously.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore, cfg config.Config) error {
			logger := newLogger(cfg)
			obs := observer.New(s, segment.New(s, logger), logger)

			processed, err := obs.ProcessExpiredWindows(context.Background(), cfg.SweepBatchSize)
			if err != nil {
				return err
			}

			fmt.Printf("Closed %d expired windows.\n", processed)
			return nil
		})
	},
}
