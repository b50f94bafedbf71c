package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lucci-labs/luccibot/pkg/domain/provider"
	"github.com/lucci-labs/luccibot/pkg/infrastructure/persistence"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

// ConfigError is a config store error.
type ConfigError string

func (e ConfigError) Error() string { return string(e) }

const (
	ErrEmptyProviderName ConfigError = "provider name is required"
	ErrEmptyModel        ConfigError = "model name is required"
)

// Reporter receives load problems, one human-readable line each.
type Reporter func(problem string)

// ProviderPatch is a partial ProviderConfig. Nil fields are left unchanged.
type ProviderPatch struct {
	APIKey       *string
	BaseURL      *string
	ActiveModels []string
	Enabled      *bool
}

// Option configures a Store.
type Option func(*Store)

// WithEnvOverrides lays o over every read. Overrides are never written back.
func WithEnvOverrides(o EnvOverrides) Option {
	return func(s *Store) { s.env = &o }
}

// WithReporter routes load problems to r in addition to the logger.
func WithReporter(r Reporter) Option {
	return func(s *Store) { s.reporter = r }
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store owns the config document. Reads return copies; writes are serialized
// and persisted atomically before they become visible.
type Store struct {
	mu       sync.RWMutex
	file     *persistence.JSONFile[Config]
	doc      Config
	env      *EnvOverrides
	reporter Reporter
	problems []string
}

// Open loads the document at path, creating it with defaults when absent.
// An unreadable or invalid document is replaced by defaults in memory and
// reported; it is never fatal. An empty path means DefaultConfigPath.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	s := &Store{file: persistence.NewJSONFile[Config](path, 0600)}
	for _, opt := range opts {
		opt(s)
	}
	s.mu.Lock()
	s.load()
	s.mu.Unlock()
	return s, nil
}

// Path returns the document location.
func (s *Store) Path() string { return s.file.Path() }

// Reload re-reads the document from disk.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
}

func (s *Store) load() {
	s.problems = nil
	doc, err := s.file.Read()
	switch {
	case errors.Is(err, persistence.ErrNotExist):
		s.doc = Default()
		if err := s.file.Write(&s.doc); err != nil {
			s.report(fmt.Sprintf("could not create config file: %v", err))
			return
		}
		logger.InfoCF("config", "Created default config", map[string]interface{}{
			"path": s.file.Path(),
		})
	case err != nil:
		s.doc = Default()
		s.report(fmt.Sprintf("config file unreadable, using defaults: %v", err))
	default:
		doc.applyDefaults()
		if verr := doc.Validate(); verr != nil {
			s.doc = Default()
			s.report(fmt.Sprintf("config file invalid, using defaults: %v", verr))
			return
		}
		s.doc = *doc
	}
}

func (s *Store) report(problem string) {
	s.problems = append(s.problems, problem)
	logger.WarnCF("config", problem, map[string]interface{}{"path": s.file.Path()})
	if s.reporter != nil {
		s.reporter(problem)
	}
}

// Problems returns what went wrong during the last load.
func (s *Store) Problems() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.problems...)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Snapshot returns a deep copy of the effective document (stored values with
// environment overrides applied).
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effective()
}

func (s *Store) effective() Config {
	c := s.doc.Clone()
	if s.env != nil {
		s.env.apply(&c)
	}
	return c
}

// Provider returns the effective config for name.
func (s *Store) Provider(name string) (ProviderConfig, bool) {
	c := s.Snapshot()
	p, ok := c.Providers[normalizeName(name)]
	return p, ok
}

// DefaultProvider returns the configured default provider name, if any.
func (s *Store) DefaultProvider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.DefaultProvider
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// SetProvider merges patch into the named provider, creating it if needed.
func (s *Store) SetProvider(name string, patch ProviderPatch) error {
	name = normalizeName(name)
	if name == "" {
		return ErrEmptyProviderName
	}
	return s.update(func(c *Config) error {
		p, ok := c.Providers[name]
		if !ok {
			p = ProviderConfig{Enabled: true, ActiveModels: []string{}}
		}
		if patch.APIKey != nil {
			p.APIKey = *patch.APIKey
		}
		if patch.BaseURL != nil {
			p.BaseURL = *patch.BaseURL
		}
		if patch.ActiveModels != nil {
			p.ActiveModels = append([]string{}, patch.ActiveModels...)
		}
		if patch.Enabled != nil {
			p.Enabled = *patch.Enabled
		}
		c.Providers[name] = p
		return nil
	})
}

// SetDefaultProvider records name as the default provider.
func (s *Store) SetDefaultProvider(name string) error {
	name = normalizeName(name)
	if name == "" {
		return ErrEmptyProviderName
	}
	return s.update(func(c *Config) error {
		c.DefaultProvider = name
		return nil
	})
}

// SetDefaultModel records the global default model.
func (s *Store) SetDefaultModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return ErrEmptyModel
	}
	return s.update(func(c *Config) error {
		c.DefaultModel = model
		return nil
	})
}

// update applies fn to a copy of the stored document and persists it. The
// in-memory document only changes once the write succeeded.
func (s *Store) update(fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.file.Write(&next); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	s.doc = next
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ---------------------------------------------------------------------------
// Chat target resolution
// ---------------------------------------------------------------------------

// Target is everything needed to talk to one provider.
type Target struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// ResolveTarget picks the provider for a chat call: name when given, else the
// default provider. The model is the provider's first active model, then the
// global default model, then provider.FallbackModel.
func (c Config) ResolveTarget(name string) (Target, error) {
	name = normalizeName(name)
	if name == "" {
		name = c.DefaultProvider
	}
	if name == "" {
		return Target{}, provider.ErrProviderNotFound
	}
	p, ok := c.Providers[name]
	if !ok {
		return Target{Provider: name}, provider.ErrProviderNotFound
	}
	if !p.HasCredential() {
		if !p.Enabled {
			return Target{Provider: name}, provider.ErrProviderDisabled
		}
		return Target{Provider: name}, provider.ErrNoAPIKey
	}

	t := Target{Provider: name, BaseURL: p.BaseURL, APIKey: p.APIKey}
	if t.BaseURL == "" {
		t.BaseURL = provider.DefaultBaseURL(name)
	}
	switch {
	case len(p.ActiveModels) > 0:
		t.Model = p.ActiveModels[0]
	case c.DefaultModel != "":
		t.Model = c.DefaultModel
	default:
		t.Model = provider.FallbackModel
	}
	return t, nil
}
