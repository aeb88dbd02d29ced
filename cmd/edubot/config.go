package main

import (
	"fmt"
	"strings"

	"github.com/sandevgo/edubot/internal/config"
	"github.com/sandevgo/edubot/internal/service/ui"
	"github.com/sandevgo/edubot/pkg/env"
	"github.com/spf13/cobra"
)

var showSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Loads the runtime .env file and the environment and prints every section. Secrets are masked unless --show-secrets is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}

		var out strings.Builder
		section := func(title string, load func() (any, error)) {
			c, err := load()
			if err != nil {
				out.WriteString(ui.Failure(title, err))
				return
			}
			body, err := env.MarshalEnv(c, !showSecrets)
			if err != nil {
				out.WriteString(ui.Failure(title, err))
				return
			}
			out.WriteString(ui.Section(title, body))
		}

		section("APP", func() (any, error) { return config.NewAppConfig() })
		section("PROVIDER", func() (any, error) { return config.NewProviderConfig() })
		section("TELEGRAM", func() (any, error) { return config.NewTelegramConfig() })
		section("MATRIX", func() (any, error) { return config.NewMatrixConfig() })

		fmt.Fprint(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print secrets in clear text")
	rootCmd.AddCommand(configCmd)
}
