package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/service/engine"
	"github.com/sandevgo/edubot/internal/transport"
	"github.com/spf13/cobra"
)

var (
	askThread  string
	askUser    string
	askPersona string
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message and print the reply",
	Long:  `Runs a single turn on the cli platform. History of the thread is kept between runs.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.db.Close()

		reply, err := a.engine.HandleTurn(ctx, engine.TurnRequest{
			Bot:    core.BotIdentity{Username: a.cfg.BotUsername, Platform: transport.PlatformCLI},
			Thread: askThread,
			Messages: []core.IncomingMessage{{
				Username: askUser,
				Body:     strings.Join(args, " "),
				SentAt:   time.Now().UTC(),
			}},
			PersonaOverride: askPersona,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askThread, "thread", "t", "default", "thread name")
	askCmd.Flags().StringVarP(&askUser, "user", "u", "user", "username of the sender")
	askCmd.Flags().StringVar(&askPersona, "persona", "", "persona text appended for this turn")
	rootCmd.AddCommand(askCmd)
}
