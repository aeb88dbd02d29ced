package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/edubot/internal/core"
)

type MatrixConfig struct {
	Homeserver  string   `env:"MATRIX_HOMESERVER,required,notEmpty"`
	UserID      string   `env:"MATRIX_USER_ID,required,notEmpty"`
	AccessToken string   `env:"MATRIX_ACCESS_TOKEN,required,notEmpty" secret:"true"`
	Rooms       []string `env:"MATRIX_ROOMS" envSeparator:","`
	Persona     string   `env:"MATRIX_PERSONA"`
}

func NewMatrixConfig() (*MatrixConfig, error) {
	c := &MatrixConfig{}
	if err := env.Parse(c); err != nil {
		return nil, &core.ConfigError{Section: "matrix", Err: err}
	}
	return c, nil
}

func (c MatrixConfig) GetHomeserver() string  { return c.Homeserver }
func (c MatrixConfig) GetUserID() string      { return c.UserID }
func (c MatrixConfig) GetAccessToken() string { return c.AccessToken }
