// Package app is the composition root. It wires the hub, config store, skill
// catalog and the three workers (agent, bridge, vault) and runs them until
// shutdown.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lucci-labs/luccibot/pkg/agent"
	"github.com/lucci-labs/luccibot/pkg/api"
	"github.com/lucci-labs/luccibot/pkg/bridge"
	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/config"
	"github.com/lucci-labs/luccibot/pkg/domain"
	skilldomain "github.com/lucci-labs/luccibot/pkg/domain/skill"
	"github.com/lucci-labs/luccibot/pkg/infrastructure/persistence"
	"github.com/lucci-labs/luccibot/pkg/logger"
	"github.com/lucci-labs/luccibot/pkg/providers"
	"github.com/lucci-labs/luccibot/pkg/vault"
)

// Key store backends.
const (
	KeyStoreMemory = "memory"
	KeyStoreSQLite = "sqlite"
)

const metricsFile = "skill-metrics.json"

// Options selects what the container builds.
type Options struct {
	// ConfigPath is the config document; empty means the default location.
	ConfigPath string
	// DataDir holds the vault database and skill metrics; empty means the
	// directory of the config document.
	DataDir   string
	SkillsDir string
	// KeyStore is KeyStoreMemory or KeyStoreSQLite (the default).
	KeyStore string
	// Listen enables the event stream on host:port.
	Listen string
	// Fast disables the presentation delays.
	Fast bool
	// Env is applied over the stored config. Nil means none.
	Env *config.EnvOverrides
	// Chat overrides the chat client.
	Chat providers.ChatClient
}

// Container holds the wired components.
type Container struct {
	Hub     *bus.Hub
	Config  *config.Store
	Catalog *skilldomain.Catalog
	Agent   *agent.Agent
	Bridge  *bridge.Bridge
	Vault   *vault.Vault
	// Stream is nil unless Options.Listen is set.
	Stream *api.Server

	keys      vault.KeyStore
	closeKeys func() error
	closeOnce sync.Once
}

// NewContainer builds every component. Config problems are not fatal: they
// are kept and replayed as warn logs when Run starts.
func NewContainer(opts Options) (*Container, error) {
	hub := bus.NewHub()
	c := &Container{Hub: hub}

	cfgOpts := []config.Option{
		config.WithReporter(func(problem string) {
			logger.WarnCF("app", "Config problem", map[string]interface{}{"problem": problem})
		}),
	}
	if opts.Env != nil {
		cfgOpts = append(cfgOpts, config.WithEnvOverrides(*opts.Env))
	}
	store, err := config.Open(opts.ConfigPath, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	c.Config = store

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = filepath.Dir(store.Path())
	}

	catalog, err := OpenCatalog(opts.SkillsDir, dataDir)
	if err != nil {
		return nil, err
	}
	c.Catalog = catalog

	if err := c.openKeyStore(opts.KeyStore, dataDir); err != nil {
		return nil, err
	}

	chat := opts.Chat
	if chat == nil {
		chat = providers.NewOpenAICompatible(nil)
	}

	agentOpts := agent.Options{}
	vaultOpts := vault.Options{}
	if opts.Fast {
		agentOpts.ActionDelay = -1
		vaultOpts.SignDelay = -1
	}

	c.Agent = agent.New(hub, store, chat, agentOpts)
	c.Bridge = bridge.New(hub, catalog, bridge.Options{})
	c.Vault = vault.New(hub, c.keys, vaultOpts)
	if opts.Listen != "" {
		c.Stream = api.NewServer(hub, opts.Listen)
	}

	logger.InfoCF("app", "Container ready", map[string]interface{}{
		"config":     store.Path(),
		"skills_dir": catalog.Dir(),
		"key_store":  keyStoreName(opts.KeyStore),
		"listen":     opts.Listen,
	})
	return c, nil
}

// OpenCatalog loads the skills under skillsDir with execution metrics kept in
// dataDir.
func OpenCatalog(skillsDir, dataDir string) (*skilldomain.Catalog, error) {
	catalog, err := skilldomain.NewCatalog(skillsDir,
		skilldomain.WithMetricsRepository(persistence.NewSkillMetricsRepository(filepath.Join(dataDir, metricsFile))),
	)
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	return catalog, nil
}

func keyStoreName(s string) string {
	if s == "" {
		return KeyStoreSQLite
	}
	return strings.ToLower(s)
}

func (c *Container) openKeyStore(kind, dataDir string) error {
	switch keyStoreName(kind) {
	case KeyStoreMemory:
		c.keys = vault.NewMemoryKeyStore()
		c.closeKeys = func() error { return nil }
	case KeyStoreSQLite:
		ks, err := vault.OpenSQLiteKeyStore(filepath.Join(dataDir, "vault.db"))
		if err != nil {
			return fmt.Errorf("open key store: %w", err)
		}
		c.keys = ks
		c.closeKeys = ks.Close
	default:
		return fmt.Errorf("unknown key store %q (want %s or %s)", kind, KeyStoreMemory, KeyStoreSQLite)
	}
	return nil
}

// Run starts the workers and blocks until they stop. They stop when ctx is
// cancelled or a shutdown message is published.
func (c *Container) Run(ctx context.Context) error {
	for _, problem := range c.Config.Problems() {
		_ = c.Hub.Log(domain.LevelWarn, "Config: %s. Using defaults.", problem)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub := c.Hub.OnShutdown(func(bus.Shutdown) { cancel() })
	defer sub.Unsubscribe()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.Agent.Run(gctx) })
	g.Go(func() error { return c.Bridge.Run(gctx) })
	g.Go(func() error { return c.Vault.Run(gctx) })
	if c.Stream != nil {
		g.Go(func() error { return c.Stream.Start(gctx) })
	}

	logger.InfoC("app", "LucciBot running")
	err := g.Wait()
	logger.InfoC("app", "LucciBot stopped")
	return err
}

// Shutdown broadcasts a shutdown message.
func (c *Container) Shutdown(reason string) error {
	return c.Hub.PublishShutdown(bus.Shutdown{Reason: reason})
}

// Close detaches every component and releases the key store.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.Agent.Close()
		c.Bridge.Close()
		c.Vault.Close()
		err = c.closeKeys()
		c.Hub.Close()
	})
	return err
}
