package main

import (
	"fmt"
	"time"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/service/feedback"
	"github.com/sandevgo/edubot/internal/transport"
	"github.com/spf13/cobra"
)

var (
	fbPlatform string
	fbThread   string
	fbText     string
	fbReaction string
	fbAt       string
	fbDelta    int
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Score a previous reply",
	Long: `Applies a reaction to the reply whose text equals --text and which answered a message
sent within 90 seconds before --at. Prints whether a reply matched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		at := time.Now().UTC()
		if fbAt != "" {
			parsed, err := time.Parse(time.RFC3339, fbAt)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
			at = parsed.UTC()
		}

		delta := fbDelta
		if delta == 0 {
			delta = feedback.ReactionDelta(fbReaction)
		}
		if delta == 0 {
			return fmt.Errorf("reaction %q carries no score; pass --delta", fbReaction)
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.db.Close()

		applied, err := a.engine.HandleFeedback(ctx,
			core.BotIdentity{Username: a.cfg.BotUsername, Platform: fbPlatform},
			core.Feedback{
				Thread:     fbThread,
				QuotedText: fbText,
				Reaction:   fbReaction,
				SentAt:     at,
				Delta:      delta,
			},
		)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "applied: %t\n", applied)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().StringVarP(&fbPlatform, "platform", "p", transport.PlatformCLI, "platform of the thread")
	feedbackCmd.Flags().StringVarP(&fbThread, "thread", "t", "default", "thread name")
	feedbackCmd.Flags().StringVar(&fbText, "text", "", "exact text of the reply")
	feedbackCmd.Flags().StringVarP(&fbReaction, "reaction", "r", "👍", "reaction key")
	feedbackCmd.Flags().StringVar(&fbAt, "at", "", "time of the reply as RFC3339 (default now)")
	feedbackCmd.Flags().IntVar(&fbDelta, "delta", 0, "score change, overrides --reaction")
	_ = feedbackCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(feedbackCmd)
}
