package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"igmonitor/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igmonitor configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IGMONITOR_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write every option with its default value as YAML.

The file is created as 'igmonitor.yaml' in the current directory unless
--config names another path. An existing file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "igmonitor.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file %s already exists, remove it first", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
