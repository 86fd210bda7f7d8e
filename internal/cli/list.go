package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/store"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the variant pool",
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

			fmt.Printf("%-28s %-9s %8s %8s %9s  %s\n", "KEY", "ORIGIN", "ALPHA", "BETA", "WIN RATE", "TEXT")
			for _, v := range variants {
				origin := "generated"
				if v.IsSeed {
					origin = "seed"
				}
				fmt.Printf("%-28s %-9s %8.1f %8.1f %8.1f%%  %s\n",
					v.Key, origin, v.Alpha, v.Beta, v.WinRate()*100, truncate(v.Text, 60))
			}
			return nil
		})
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
