package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/lucci-labs/luccibot/pkg/domain/provider"
)

// EnvOverrides are credentials and model choices taken from the process
// environment. They are laid over the stored document in memory only.
type EnvOverrides struct {
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	GoogleKey    string `env:"GOOGLE_API_KEY"`
	GeminiKey    string `env:"GEMINI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	ActiveModel  string `env:"ACTIVE_MODEL"`
	ConfigPath   string `env:"LUCCIBOT_CONFIG"`
}

// LoadEnvOverrides reads the overrides from the process environment.
func LoadEnvOverrides() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return o, fmt.Errorf("parse environment: %w", err)
	}
	return o, nil
}

// EnvOverridesFrom reads the overrides from a fixed variable set.
func EnvOverridesFrom(vars map[string]string) (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: vars}); err != nil {
		return o, fmt.Errorf("parse environment: %w", err)
	}
	return o, nil
}

func (o EnvOverrides) keys() map[string]string {
	google := o.GoogleKey
	if google == "" {
		google = o.GeminiKey
	}
	return map[string]string{
		provider.OpenAI:    o.OpenAIKey,
		provider.Google:    google,
		provider.Anthropic: o.AnthropicKey,
	}
}

// apply fills empty API keys and the default model. Stored values win.
func (o EnvOverrides) apply(c *Config) {
	for name, key := range o.keys() {
		if key == "" {
			continue
		}
		p, ok := c.Providers[name]
		if !ok {
			p = ProviderConfig{Enabled: true, ActiveModels: []string{}}
		}
		if p.APIKey == "" {
			p.APIKey = strings.TrimSpace(key)
		}
		c.Providers[name] = p
	}
	if c.DefaultModel == "" && o.ActiveModel != "" {
		c.DefaultModel = o.ActiveModel
	}
}
