package skill

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional per-directory skill manifest.
const ManifestFile = "skills.yaml"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidName reports whether name can address a file directly under the skills dir.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// ---------------------------------------------------------------------------
// Manifest
// ---------------------------------------------------------------------------

// Manifest overrides how individual skills are run.
//
//	skills:
//	  swap:
//	    description: Quote and build a DEX swap
//	    interpreter: bun
//	    timeout_sec: 45
type Manifest struct {
	Skills map[string]ManifestEntry `yaml:"skills"`
}

// ManifestEntry is one skill's overrides. Zero fields keep the defaults.
type ManifestEntry struct {
	Description string `yaml:"description"`
	Interpreter string `yaml:"interpreter"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

// ParseManifest decodes a manifest, rejecting unknown fields.
func ParseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	for name, e := range m.Skills {
		if !ValidName(name) {
			return Manifest{}, fmt.Errorf("%w: bad skill name %q", ErrInvalidManifest, name)
		}
		if e.TimeoutSec < 0 {
			return Manifest{}, fmt.Errorf("%w: %s: negative timeout", ErrInvalidManifest, name)
		}
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Metrics repository
// ---------------------------------------------------------------------------

// MetricsRepository persists execution metrics keyed by skill name.
type MetricsRepository interface {
	Load() (map[string]SkillMetrics, error)
	Save(metrics map[string]SkillMetrics) error
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// Catalog resolves skills under one directory and records how they ran.
type Catalog struct {
	dir      string
	manifest Manifest
	repo     MetricsRepository
	now      func() time.Time

	mu      sync.Mutex
	metrics map[string]SkillMetrics
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithMetricsRepository persists metrics through repo.
func WithMetricsRepository(repo MetricsRepository) CatalogOption {
	return func(c *Catalog) { c.repo = repo }
}

// WithClock overrides the time source used for metrics.
func WithClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) { c.now = now }
}

// NewCatalog opens dir. A missing directory is not an error; every lookup
// then fails with ErrSkillNotFound. A broken manifest is.
func NewCatalog(dir string, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		dir:     dir,
		now:     time.Now,
		metrics: make(map[string]SkillMetrics),
	}
	for _, opt := range opts {
		opt(c)
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read manifest: %w", err)
	default:
		m, err := ParseManifest(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		c.manifest = m
	}

	if c.repo != nil {
		stored, err := c.repo.Load()
		if err != nil {
			return nil, fmt.Errorf("load skill metrics: %w", err)
		}
		for name, m := range stored {
			c.metrics[name] = m
		}
	}
	return c, nil
}

// Dir returns the skills directory.
func (c *Catalog) Dir() string { return c.dir }

// Resolve finds <dir>/<name>.<ext>, trying the known extensions in order and
// finally the bare name.
func (c *Catalog) Resolve(name string) (*Skill, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSkillName, name)
	}
	for _, it := range interpreters {
		path := filepath.Join(c.dir, name+it.Ext)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if it.Ext == "" && info.Mode().Perm()&0111 == 0 {
			continue
		}
		return c.build(name, path, it.Interpreter), nil
	}
	return nil, fmt.Errorf("%w: %s (looked in %s)", ErrSkillNotFound, name, c.dir)
}

func (c *Catalog) build(name, path, interpreter string) *Skill {
	s := &Skill{
		Name:        name,
		Path:        path,
		Interpreter: interpreter,
		Timeout:     DefaultTimeout,
	}
	if e, ok := c.manifest.Skills[name]; ok {
		s.Description = e.Description
		if e.Interpreter != "" {
			s.Interpreter = e.Interpreter
		}
		if e.TimeoutSec > 0 {
			s.Timeout = time.Duration(e.TimeoutSec) * time.Second
		}
	}
	c.mu.Lock()
	s.Metrics = c.metrics[name]
	c.mu.Unlock()
	return s
}

// List returns every resolvable skill, sorted by name.
func (c *Catalog) List() ([]*Skill, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skills dir %s: %w", c.dir, err)
	}

	seen := make(map[string]bool)
	var skills []*Skill
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ManifestFile {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if seen[name] || !ValidName(name) {
			continue
		}
		if _, ok := InterpreterFor(entry.Name()); !ok {
			continue
		}
		s, err := c.Resolve(name)
		if err != nil {
			continue
		}
		seen[name] = true
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

// RecordExecution tracks one finished run. runErr is nil on success.
func (c *Catalog) RecordExecution(name string, d time.Duration, runErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	m := c.metrics[name]
	m.recordExecution(d, now)
	if runErr != nil {
		m.recordError(runErr.Error(), now)
	}
	c.metrics[name] = m

	if c.repo == nil {
		return nil
	}
	snapshot := make(map[string]SkillMetrics, len(c.metrics))
	for k, v := range c.metrics {
		snapshot[k] = v
	}
	return c.repo.Save(snapshot)
}

// Metrics returns the recorded metrics for name.
func (c *Catalog) Metrics(name string) SkillMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics[name]
}
