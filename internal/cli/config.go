package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/yairfalse/tapio-trace/internal/observers/config"
	"gopkg.in/yaml.v3"
)

func (a *app) configCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tapio-trace configuration",
		Long: `Configuration sources (in priority order):
  1. Command line flags
  2. Environment variables (` + envPrefix + `_*)
  3. Configuration file
  4. Defaults`,
		Example: `  # Write a configuration file with the defaults
  tapio-trace config init

  # Show the effective configuration as JSON
  tapio-trace config show --format json`,
	}

	configCmd.AddCommand(a.configShowCommand())
	configCmd.AddCommand(a.configInitCommand())
	return configCmd
}

func (a *app) configShowCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if used := a.viper.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "# config file: %s\n", used)
			}

			switch format {
			case "yaml", "yml":
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("failed to marshal configuration: %w", err)
				}
				_, err = out.Write(data)
				return err

			case "json":
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal configuration: %w", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err

			default:
				return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Output format (yaml, json)")
	return cmd
}

func (a *app) configInitCommand() *cobra.Command {
	var (
		file  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = configName + ".yaml"
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
			}

			data, err := yaml.Marshal(config.DefaultTraceConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal configuration: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write configuration: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Configuration file path (default ./"+configName+".yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
