// Package cli implements the tapio-trace command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yairfalse/tapio-trace/internal/observers/config"
	"go.uber.org/zap"
)

const (
	configName = ".tapio-trace"
	envPrefix  = "TAPIO_TRACE"
)

// app holds the state shared by all subcommands
type app struct {
	viper   *viper.Viper
	cfgFile string
	verbose bool

	// logger overrides the logger built from flags when set
	logger *zap.Logger
	stderr io.Writer
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree with its own configuration state
func NewRootCommand() *cobra.Command {
	return newApp().rootCommand()
}

func newApp() *app {
	return &app{
		viper:  viper.New(),
		stderr: os.Stderr,
	}
}

func (a *app) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tapio-trace",
		Short: "Record recent device input events in a bounded ring buffer",
		Long: `tapio-trace keeps the most recent device events in a fixed-size
in-memory buffer, evicting the oldest when it fills up, so the input
that led to a problem can be inspected after the fact.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/"+configName+".yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(a.recordCommand())
	rootCmd.AddCommand(a.configCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func (a *app) initConfig() error {
	v := a.viper

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(configName)
	}

	setDefaults(v, config.DefaultTraceConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else if a.verbose {
		fmt.Fprintf(a.stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}
	return nil
}

// setDefaults registers every key so environment variables are picked up
// by Unmarshal
func setDefaults(v *viper.Viper, cfg *config.TraceConfig) {
	v.SetDefault("name", cfg.Name)
	v.SetDefault("metrics_enabled", cfg.MetricsEnabled)
	v.SetDefault("buffer_size_bytes", cfg.BufferSizeBytes)
	v.SetDefault("device_filter", uint16(cfg.DeviceFilter))
	v.SetDefault("enabled", cfg.Enabled)
	v.SetDefault("drop_log_interval", cfg.DropLogInterval)
	v.SetDefault("state_path", cfg.StatePath)
}

// loadConfig decodes the effective configuration
func (a *app) loadConfig() (*config.TraceConfig, error) {
	cfg := config.DefaultTraceConfig()
	if err := a.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (a *app) newLogger() (*zap.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}

	logConfig := zap.NewProductionConfig()
	if a.verbose {
		logConfig = zap.NewDevelopmentConfig()
	}
	return logConfig.Build()
}
