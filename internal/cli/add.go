package cli

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/promptbandit/promptbandit/internal/config"
	"github.com/promptbandit/promptbandit/internal/store"
)

func init() {
	rootCmd.AddCommand(newAddCmd())
}

func newAddCmd() *cobra.Command {
	var (
		key  string
		text string
		hint string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a hand-authored variant to the pool",
		Long: `Add a new variant with uniform priors (alpha=1, beta=1).

Values not passed as flags are prompted for interactively.

Example:
  promptbandit add --key seed_proud_moment --text "What work are you most proud of this year?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if key == "" {
				if key, err = promptValue("Variant key (stable tag, e.g. seed_proud_moment)"); err != nil {
					return err
				}
			}
			if text == "" {
				if text, err = promptValue("Question text"); err != nil {
					return err
				}
			}
			if hint == "" {
				if hint, err = promptValue("Context hint (what this reveals)"); err != nil {
					return err
				}
			}

			return withStore(func(s *store.SQLiteStore, cfg config.Config) error {
				ctx := context.Background()

				if _, err := s.GetVariantByKey(ctx, key); err == nil {
					return fmt.Errorf("variant %q already exists", key)
				}

				_, err := s.InsertVariants(ctx, []store.NewVariant{{
					Key:         key,
					Text:        text,
					ContextHint: hint,
					IsSeed:      true,
				}})
				if err != nil {
					return err
				}

				fmt.Printf("Added variant '%s'.\n", key)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "stable variant key")
	cmd.Flags().StringVar(&text, "text", "", "question text shown to subjects")
	cmd.Flags().StringVar(&hint, "hint", "", "what the question is meant to reveal")

	return cmd
}

func promptValue(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if input == "" {
				return fmt.Errorf("value required")
			}
			return nil
		},
	}

	value, err := prompt.Run()
	if err == promptui.ErrInterrupt {
		return "", fmt.Errorf("cancelled")
	}
	return value, err
}
