package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/seed"
	"github.com/promptbandit/promptbandit/internal/store"
)

func init() {
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the seed variant pool",
	Long: `Insert the hand-authored seed variants into the database.

Idempotent: variants already present keep their learned weights.
The serve command runs this automatically on startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore, cfg config.Config) error {
			inserted, err := seed.Ensure(context.Background(), s)
			if err != nil {
				return err
			}

			if inserted == 0 {
				fmt.Println("Seed pool already present, nothing to do.")
				return nil
			}
			fmt.Printf("Inserted %d seed variants.\n", inserted)
			return nil
		})
	},
}
