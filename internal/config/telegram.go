package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/edubot/internal/core"
)

type TelegramConfig struct {
	Token string `env:"TELEGRAM_TOKEN,required,notEmpty" secret:"true"`
	// Username overrides the bot name stored for the telegram platform
	Username string `env:"TELEGRAM_BOT_USERNAME"`
	// Persona is appended to the preamble of every telegram turn
	Persona string `env:"TELEGRAM_PERSONA"`
}

func NewTelegramConfig() (*TelegramConfig, error) {
	c := &TelegramConfig{}
	if err := env.Parse(c); err != nil {
		return nil, &core.ConfigError{Section: "telegram", Err: err}
	}
	return c, nil
}

func (c TelegramConfig) GetTelegramToken() string {
	return c.Token
}
