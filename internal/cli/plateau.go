package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/plateau"
	"github.com/promptbandit/promptbandit/internal/store"
)

func init() {
	rootCmd.AddCommand(newPlateauCmd())
}

func newPlateauCmd() *cobra.Command {
	var detectOnly bool

	cmd := &cobra.Command{
		Use:   "plateau",
		Short: "Run one plateau cycle",
		Long: `Evaluate convergence across the variant pool and, on a plateau,
generate new candidate variants from the current top performers.

With --detect-only the pool is evaluated but never grown.

Requires OPENAI_API_KEY (or generator.api_key in the config file) for
generation; without it the cycle reports the plateau and stops.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore, cfg config.Config) error {
				ctx := context.Background()
				logger := newLogger(cfg)
				detector := plateau.New(s, newGenerator(cfg, logger), logger, cfg.PlateauCooldown)

				if detectOnly {
					detection, err := detector.DetectPlateau(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("Plateau: %v (%s)\n", detection.Plateau, detection.Reason)
					for i, v := range detection.TopVariants {
						fmt.Printf("  %d. %-28s win rate %.1f%%, %.0f samples\n",
							i+1, v.Key, v.WinRate*100, v.Samples)
					}
					return nil
				}

				result, err := detector.RunCycle(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Plateau: %v, new variants: %d (%s)\n",
					result.Plateau, result.NewVariants, result.Reason)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&detectOnly, "detect-only", false, "evaluate convergence without generating variants")

	return cmd
}
