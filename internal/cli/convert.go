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
	rootCmd.AddCommand(newConvertCmd())
}

func newConvertCmd() *cobra.Command {
	var (
		event    string
		response string
	)

	cmd := &cobra.Command{
		Use:   "convert <subject-id>",
		Short: "Record a conversion event for a subject",
		Long: `Credit a conversion to the subject's most recent open observation
window. A conversion with no open window is absorbed silently.

Example:
  promptbandit convert subj-42 --event published_post`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectID := args[0]

			return withStore(func(s *store.SQLiteStore, cfg config.Config) error {
				logger := newLogger(cfg)
				obs := observer.New(s, segment.New(s, logger), logger)

				if err := obs.RecordConversion(context.Background(), subjectID, event, response); err != nil {
					return err
				}

				fmt.Printf("Recorded conversion '%s' for subject '%s'.\n", event, subjectID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&event, "event", "e", "", "conversion event name (required)")
	cmd.Flags().StringVar(&response, "response", "", "subject's response text")
	cmd.MarkFlagRequired("event")

	return cmd
}
