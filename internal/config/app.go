package config

import (
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/edubot/internal/core"
)

type AppConfig struct {
	RuntimePath string `env:"EDUBOT_RUNTIME_PATH" envDefault:".edubot"`

	// Bot identity used when a transport does not override it
	BotUsername string `env:"EDUBOT_USERNAME" envDefault:"edubot"`
	Personality string `env:"EDUBOT_PERSONALITY"`

	// Transport Flags
	EnableTelegram bool `env:"ENABLE_TELEGRAM" envDefault:"false"`
	EnableMatrix   bool `env:"ENABLE_MATRIX" envDefault:"false"`

	// Context Management
	PromptTokens     int    `env:"EDUBOT_PROMPT_TOKENS" envDefault:"7000"`
	CompletionTokens int    `env:"EDUBOT_COMPLETION_TOKENS" envDefault:"1192"`
	HistoryMessages  int    `env:"EDUBOT_HISTORY_MESSAGES" envDefault:"100"`
	TokenEstimator   string `env:"EDUBOT_TOKEN_ESTIMATOR" envDefault:"heuristic"`
}

func NewAppConfig() (*AppConfig, error) {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		return nil, &core.ConfigError{Section: "app", Err: err}
	}
	c.RuntimePath = resolveRuntimePath(c.RuntimePath)

	if c.PromptTokens <= 0 || c.CompletionTokens <= 0 || c.HistoryMessages <= 0 {
		return nil, &core.ConfigError{Section: "app", Err: errNonPositiveBudget}
	}
	switch c.TokenEstimator {
	case EstimatorHeuristic, EstimatorTiktoken:
	default:
		return nil, &core.ConfigError{Section: "app", Err: errUnknownEstimator(c.TokenEstimator)}
	}
	return c, nil
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetPersonaPath() string {
	return filepath.Join(c.RuntimePath, "PERSONA.md")
}

func (c AppConfig) GetRulesPath() string {
	return filepath.Join(c.RuntimePath, "RULES.md")
}

func (c AppConfig) GetPersonality() string {
	return c.Personality
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "edubot.db")
}

func (c AppConfig) IsTelegramSelected() bool {
	return c.EnableTelegram
}

func (c AppConfig) IsMatrixSelected() bool {
	return c.EnableMatrix
}
