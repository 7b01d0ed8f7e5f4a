package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/indygreg/docker-worker/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration the worker would run with, after the
config file and defaults are merged. Secrets are redacted.

Examples:
  # Show the defaults
  docker-worker config

  # Show the effective config for a file
  docker-worker config --config /etc/docker-worker/config.yaml`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringP("config", "c", "", "Path to YAML config file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if cfg.Queue.AccessToken != "" {
		cfg.Queue.AccessToken = "<redacted>"
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %v", err)
	}
	fmt.Print(string(out))
	return nil
}
