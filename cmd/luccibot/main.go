package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucci-labs/luccibot/pkg/app"
	"github.com/lucci-labs/luccibot/pkg/channels/cli"
	"github.com/lucci-labs/luccibot/pkg/config"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

var (
	// Global flags
	configPath string
	skillsDir  string
	keyStore   string
	listenAddr string
	verbose    bool
	fast       bool
)

// rootCmd starts the interactive shell.
var rootCmd = &cobra.Command{
	Use:   "luccibot",
	Short: "LucciBot - command-driven crypto assistant",
	Long: `LucciBot is a terminal assistant for crypto operations.

Type a command at the prompt:
  swap <amount> <token>                   build a transaction with the swap skill
  config set <provider> <apiKey> [model]  store a provider credential
  config use <provider>                   choose the default chat provider
  config model <model>                    choose the default model
  config show                             show the configuration (keys masked)
  clear                                   clear the log window
  @<provider> <message>                   ask a specific provider
  exit                                    quit

Anything else is sent to the default chat provider.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// The shell configures its own log file.
		if cmd == cmd.Root() {
			return
		}
		if verbose {
			logger.SetLevel("debug")
		} else {
			logger.SetLevel("warn")
		}
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $LUCCIBOT_CONFIG or ~/.luccibot/config.json)")
	rootCmd.PersistentFlags().StringVar(&skillsDir, "skills-dir", "./skills", "Directory of skill programs")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().StringVar(&keyStore, "keystore", app.KeyStoreSQLite, "Vault key store: memory or sqlite")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve the event stream on host:port (e.g. 127.0.0.1:7777)")
	rootCmd.Flags().BoolVar(&fast, "fast", false, "Skip presentation delays")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(skillsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfigPath applies the flag, then the environment, then the default.
func resolveConfigPath(env config.EnvOverrides) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	if env.ConfigPath != "" {
		return env.ConfigPath, nil
	}
	return config.DefaultConfigPath()
}

func runInteractive(cmd *cobra.Command, args []string) error {
	env, err := config.LoadEnvOverrides()
	if err != nil {
		return err
	}
	path, err := resolveConfigPath(env)
	if err != nil {
		return err
	}
	dataDir := filepath.Dir(path)

	// Diagnostics go to a file so the prompt stays clean.
	level := "info"
	if verbose {
		level = "debug"
	}
	if err := logger.Configure(logger.Options{
		Level:   level,
		File:    filepath.Join(dataDir, "luccibot.log"),
		Console: verbose,
	}); err != nil {
		return err
	}
	defer logger.Sync()

	c, err := app.NewContainer(app.Options{
		ConfigPath: path,
		DataDir:    dataDir,
		SkillsDir:  skillsDir,
		KeyStore:   keyStore,
		Listen:     listenAddr,
		Fast:       fast,
		Env:        &env,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	console := cli.NewConsole(c.Hub, cli.Options{
		Theme:       c.Config.Snapshot().User.Theme,
		HistoryFile: filepath.Join(dataDir, "history"),
	})
	defer console.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.InfoCF("main", "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			if err := c.Shutdown(sig.String()); err != nil {
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "LucciBot ready. Config: %s. Type 'exit' to quit.\n", c.Config.Path())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error { return console.Run(gctx) })
	return g.Wait()
}
