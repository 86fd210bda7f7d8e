package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/promptbandit/promptbandit/internal/bandit"
	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/segment"
	"github.com/promptbandit/promptbandit/internal/store"
)

func init() {
	rootCmd.AddCommand(newPickCmd())
}

func newPickCmd() *cobra.Command {
	var (
		sessionID string
		domain    string
		tier      string
		behavior  string
		style     string
	)

	cmd := &cobra.Command{
		Use:   "pick <subject-id>",
		Short: "Pick the next variant for a subject",
		Long: `Run one Thompson-Sampling selection for a subject and open its
observation window. Cohort flags enable segment boosting.

Example:
  promptbandit pick subj-42 --domain tech --tier executive --behavior daily`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectID := args[0]

			return withStore(func(s *store.SQLiteStore, cfg config.Config) error {
				ctx := context.Background()
				logger := newLogger(cfg)
				segments := segment.New(s, logger)
				selector := bandit.NewSelector(s, logger, cfg.ObservationWindow)

				if sessionID == "" {
					sessionID = uuid.NewString()
				}

				var cohortKey string
				boosts := map[string]float64{}
				if domain != "" || tier != "" || behavior != "" {
					cohort := segment.Cohort{Domain: domain, Tier: tier, Behavior: behavior, Style: style}
					cohortKey = cohort.Key()

					var err error
					boosts, err = segments.GetBoosts(ctx, cohortKey)
					if err != nil {
						return err
					}
				}

				variant, sel, err := selector.SelectAndRecord(ctx, subjectID, sessionID, cohortKey, style, boosts)
				if err != nil {
					return err
				}

				fmt.Printf("Selected '%s': %s\n", variant.Key, variant.Text)
				fmt.Printf("Observation window open until %s (selection %s)\n",
					sel.WindowEnd.Format("2006-01-02 15:04:05"), sel.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (random if omitted)")
	cmd.Flags().StringVar(&domain, "domain", "", "cohort domain, e.g. tech")
	cmd.Flags().StringVar(&tier, "tier", "", "cohort tier, e.g. executive")
	cmd.Flags().StringVar(&behavior, "behavior", "", "cohort posting behavior, e.g. daily")
	cmd.Flags().StringVar(&style, "style", "", "cohort style tag")

	return cmd
}
