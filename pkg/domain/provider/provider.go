// Package provider defines the catalogue of chat-completion providers LucciBot
// knows out of the box: their models and OpenAI-compatible endpoints.
package provider

import "strings"

// ---------------------------------------------------------------------------
// Catalogue
// ---------------------------------------------------------------------------

// Spec describes a known provider.
type Spec struct {
	Name        string
	DisplayName string
	BaseURL     string
	Models      []string
}

const (
	Google    = "google"
	OpenAI    = "openai"
	Anthropic = "anthropic"
)

// FallbackModel is used when neither the provider nor the config names one.
const FallbackModel = "gpt-4o-mini"

var catalogue = []Spec{
	{
		Name:        Google,
		DisplayName: "Google",
		BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
		Models: []string{
			"gemini-2.0-pro-exp",
			"gemini-2.0-flash-thinking-exp",
			"gemini-1.5-pro",
			"gemini-1.5-flash",
		},
	},
	{
		Name:        OpenAI,
		DisplayName: "OpenAI",
		BaseURL:     "https://api.openai.com/v1",
		Models:      []string{"gpt-4o", "gpt-4o-mini", "o1"},
	},
	{
		Name:        Anthropic,
		DisplayName: "Anthropic",
		BaseURL:     "https://api.anthropic.com/v1",
		Models:      []string{"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022"},
	},
}

// Known returns the built-in providers in a stable order. The slices are copies.
func Known() []Spec {
	out := make([]Spec, len(catalogue))
	for i, s := range catalogue {
		s.Models = append([]string(nil), s.Models...)
		out[i] = s
	}
	return out
}

// Lookup finds a built-in provider by name (case-insensitive).
func Lookup(name string) (Spec, bool) {
	name = strings.ToLower(name)
	for _, s := range Known() {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// DefaultBaseURL returns the endpoint for name, falling back to OpenAI's.
func DefaultBaseURL(name string) string {
	if s, ok := Lookup(name); ok {
		return s.BaseURL
	}
	return catalogue[1].BaseURL
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

type ProviderError string

func (e ProviderError) Error() string { return string(e) }

const (
	ErrProviderNotFound ProviderError = "provider not found"
	ErrProviderDisabled ProviderError = "provider is disabled"
	ErrNoAPIKey         ProviderError = "no API key configured"
)
