package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/edubot/internal/core"
)

type ProviderConfig struct {
	APIKey      string  `env:"OPENAI_API_KEY,required,notEmpty" secret:"true"`
	BaseURL     string  `env:"OPENAI_BASE_URL"`
	Model       string  `env:"OPENAI_MODEL" envDefault:"gpt-4"`
	VisionModel string  `env:"OPENAI_VISION_MODEL" envDefault:"gpt-4o-mini"`
	Temperature float32 `env:"OPENAI_TEMPERATURE" envDefault:"0.3"`
}

func NewProviderConfig() (*ProviderConfig, error) {
	c := &ProviderConfig{}
	if err := env.Parse(c); err != nil {
		return nil, &core.ConfigError{Section: "provider", Err: err}
	}
	return c, nil
}

func (c ProviderConfig) GetModel() string         { return c.Model }
func (c ProviderConfig) GetVisionModel() string   { return c.VisionModel }
func (c ProviderConfig) GetOpenAIAPIKey() string  { return c.APIKey }
func (c ProviderConfig) GetOpenAIBaseURL() string { return c.BaseURL }
func (c ProviderConfig) GetTemperature() float32  { return c.Temperature }
