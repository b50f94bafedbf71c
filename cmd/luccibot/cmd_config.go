package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucci-labs/luccibot/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with API keys masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConfig()
		if err != nil {
			return err
		}
		for _, problem := range store.Problems() {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s, showing defaults\n", problem)
		}
		data, err := json.MarshalIndent(store.Snapshot().Masked(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.LoadEnvOverrides()
		if err != nil {
			return err
		}
		path, err := resolveConfigPath(env)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

// openConfig opens the config store the way the shell does.
func openConfig() (*config.Store, error) {
	env, err := config.LoadEnvOverrides()
	if err != nil {
		return nil, err
	}
	path, err := resolveConfigPath(env)
	if err != nil {
		return nil, err
	}
	return config.Open(path, config.WithEnvOverrides(env))
}
