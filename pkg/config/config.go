// Package config is the LucciBot config store: provider credentials, the
// default provider/model and user preferences, persisted as one JSON document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/domain/provider"
)

// ---------------------------------------------------------------------------
// Document schema
// ---------------------------------------------------------------------------

// ProviderConfig holds one provider's credentials and model selection.
type ProviderConfig struct {
	APIKey       string   `json:"apiKey,omitempty"`
	BaseURL      string   `json:"baseUrl,omitempty"`
	ActiveModels []string `json:"activeModels"`
	Enabled      bool     `json:"enabled"`
}

// UnmarshalJSON applies schema defaults: enabled is true and activeModels is
// empty unless the document says otherwise.
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type raw struct {
		APIKey       string   `json:"apiKey"`
		BaseURL      string   `json:"baseUrl"`
		ActiveModels []string `json:"activeModels"`
		Enabled      *bool    `json:"enabled"`
	}
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*p = ProviderConfig{
		APIKey:       r.APIKey,
		BaseURL:      r.BaseURL,
		ActiveModels: r.ActiveModels,
		Enabled:      true,
	}
	if r.Enabled != nil {
		p.Enabled = *r.Enabled
	}
	if p.ActiveModels == nil {
		p.ActiveModels = []string{}
	}
	return nil
}

// HasCredential reports whether the provider can be used for chat.
func (p ProviderConfig) HasCredential() bool {
	return p.Enabled && p.APIKey != ""
}

func (p ProviderConfig) clone() ProviderConfig {
	p.ActiveModels = append([]string{}, p.ActiveModels...)
	return p
}

// UserConfig holds operator preferences.
type UserConfig struct {
	Name  string       `json:"name,omitempty"`
	Theme domain.Theme `json:"theme"`
}

// Config is the whole document.
type Config struct {
	Providers       map[string]ProviderConfig `json:"providers"`
	DefaultProvider string                    `json:"defaultProvider,omitempty"`
	DefaultModel    string                    `json:"defaultModel,omitempty"`
	User            UserConfig                `json:"user"`
}

// Default returns the document a fresh install starts with: every built-in
// provider enabled with its model catalogue and no credentials.
func Default() Config {
	providers := make(map[string]ProviderConfig)
	for _, spec := range provider.Known() {
		providers[spec.Name] = ProviderConfig{
			ActiveModels: spec.Models,
			Enabled:      true,
		}
	}
	return Config{
		Providers: providers,
		User:      UserConfig{Theme: domain.ThemeSystem},
	}
}

// applyDefaults fills in fields a hand-written document may omit.
func (c *Config) applyDefaults() {
	if c.Providers == nil {
		c.Providers = Default().Providers
	}
	if c.User.Theme == "" {
		c.User.Theme = domain.ThemeSystem
	}
}

// Validate checks the document against its schema.
func (c Config) Validate() error {
	if !c.User.Theme.Valid() {
		return fmt.Errorf("user.theme: unknown theme %q", c.User.Theme)
	}
	for name := range c.Providers {
		if name == "" {
			return fmt.Errorf("providers: empty provider name")
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		out.Providers[name] = p.clone()
	}
	return out
}

// ProviderNames returns the configured provider names sorted.
func (c Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Masked returns a copy safe to print: API keys keep only their last four characters.
func (c Config) Masked() Config {
	out := c.Clone()
	for name, p := range out.Providers {
		p.APIKey = MaskSecret(p.APIKey)
		out.Providers[name] = p
	}
	return out
}

// MaskSecret hides all but the last four characters of s.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// DefaultDir returns ~/.luccibot.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".luccibot"), nil
}

// DefaultConfigPath returns ~/.luccibot/config.json.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}
