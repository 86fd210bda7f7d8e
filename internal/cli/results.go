package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/stats"
	"github.com/promptbandit/promptbandit/internal/store"
)

func init() {
	rootCmd.AddCommand(resultsCmd)
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show ranked pool performance",
	Long: `Rank the pool by empirical win rate with Wilson confidence
intervals, and report how confident we are that the leader actually
beats the runner-up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore, cfg config.Config) error {
			variants, err := s.ListVariants(context.Background())
			if err != nil {
				return err
			}
			if len(variants) == 0 {
				fmt.Println("No variants. Run 'promptbandit seed' to install the seed pool.")
				return nil
			}

			result := stats.Analyze(variants)

			fmt.Printf("%-4s %-28s %9s %9s %18s\n", "RANK", "KEY", "WIN RATE", "SAMPLES", "95% CI")
			for i, v := range result.Variants {
				fmt.Printf("%-4d %-28s %8.1f%% %9.1f   [%5.1f%%, %5.1f%%]\n",
					i+1, v.Key, v.WinRate*100, v.Samples, v.CILower*100, v.CIUpper*100)
			}

			if len(result.Variants) >= 2 {
				fmt.Println()
				if result.Confident {
					fmt.Printf("Leader beats runner-up with %.1f%% confidence.\n", result.ConfidenceLevel*100)
				} else {
					fmt.Printf("Leader vs runner-up confidence: %.1f%% (not yet conclusive).\n", result.ConfidenceLevel*100)
				}
			}
			return nil
		})
	},
}
