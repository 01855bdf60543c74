package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/yairfalse/tapio-trace/internal/observers/config"
	"github.com/yairfalse/tapio-trace/internal/observers/trace"
	"github.com/yairfalse/tapio-trace/internal/observers/trace/devices"
	"github.com/yairfalse/tapio-trace/internal/observers/trace/source"
	"github.com/yairfalse/tapio-trace/internal/output"
	"github.com/yairfalse/tapio-trace/pkg/domain"
	"go.uber.org/zap"
)

type recordOptions struct {
	input  string
	output string
	follow bool
}

func (a *app) recordCommand() *cobra.Command {
	opts := &recordOptions{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record device events from newline-delimited JSON",
		Long: `Record reads device events, one JSON object per line, and keeps the
most recent ones in a ring buffer of --buffer-size bytes. When the input
ends the retained events are printed oldest first.

With --follow each recorded event is printed as it arrives and changes to
device_filter in the config file take effect immediately.`,
		Example: `  # Record a capture file and show what was retained
  tapio-trace record --input capture.jsonl

  # Only keep events from device 3, in a 4 KiB buffer
  tapio-trace record --input capture.jsonl --device 3 --buffer-size 4096

  # Stream events from stdin
  input-dump | tapio-trace record --follow --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRecord(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "input file, - for stdin")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "human", "output format (human, json, yaml)")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "print events as they are recorded")
	cmd.Flags().Int("buffer-size", config.DefaultBufferSizeBytes, "ring buffer capacity in bytes")
	cmd.Flags().Uint16("device", uint16(domain.AnyDevice), "record only this device (0 for all)")
	cmd.Flags().String("state", "", "file used to save and restore recorder settings")

	// Bind flags to viper
	_ = a.viper.BindPFlag("buffer_size_bytes", cmd.Flags().Lookup("buffer-size"))
	_ = a.viper.BindPFlag("device_filter", cmd.Flags().Lookup("device"))
	_ = a.viper.BindPFlag("state_path", cmd.Flags().Lookup("state"))

	return cmd
}

func (a *app) runRecord(cmd *cobra.Command, opts *recordOptions) error {
	if err := output.ValidateFormat(opts.output); err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	logger, err := a.newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	registry := devices.NewRegistry(logger)
	for _, device := range cfg.Devices {
		if err := registry.Register(device); err != nil {
			return fmt.Errorf("failed to register device %d: %w", device.ID, err)
		}
	}

	bus := source.NewBus(logger)
	recorder, err := trace.New(bus,
		trace.WithConfig(cfg),
		trace.WithLogger(logger),
		trace.WithDeviceRegistry(registry))
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	defer recorder.Dispose()

	if err := a.startRecorder(cmd, recorder, cfg, logger); err != nil {
		return err
	}

	in, err := openInput(opts.input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer in.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filterChanges := make(chan domain.DeviceID, 1)
	if opts.follow {
		a.watchDeviceFilter(filterChanges, logger)
	}

	formatter := output.NewFormatter(opts.output, cmd.OutOrStdout())
	if err := a.recordLoop(ctx, recorder, bus, readEvents(ctx, in), filterChanges, formatter, opts.follow, logger); err != nil {
		return err
	}

	if cfg.StatePath != "" {
		if err := recorder.SaveStateFile(cfg.StatePath); err != nil {
			return err
		}
	}

	if opts.follow {
		return nil
	}
	report, err := output.BuildReport(recorder)
	if err != nil {
		return err
	}
	return formatter.Print(report)
}

// startRecorder applies saved state if there is any, lets an explicit
// --device flag override it, and enables recording
func (a *app) startRecorder(cmd *cobra.Command, recorder *trace.Recorder, cfg *config.TraceConfig, logger *zap.Logger) error {
	restored := false
	if cfg.StatePath != "" {
		err := recorder.RestoreStateFile(cfg.StatePath)
		switch {
		case err == nil:
			restored = true
		case errors.Is(err, os.ErrNotExist):
			logger.Debug("No saved recorder state", zap.String("path", cfg.StatePath))
		default:
			return fmt.Errorf("failed to restore recorder state: %w", err)
		}
	}

	if restored && cmd.Flags().Changed("device") {
		if err := recorder.SetDeviceFilter(cfg.DeviceFilter); err != nil {
			return err
		}
	}

	if !restored && !cfg.Enabled {
		logger.Info("Recorder disabled by configuration")
		return nil
	}
	if restored && !recorder.Enabled() {
		return nil
	}
	return recorder.Enable()
}

// watchDeviceFilter reloads device_filter when the config file changes.
// The callback runs on the watcher goroutine, so changes are handed to the
// record loop instead of touching the recorder.
func (a *app) watchDeviceFilter(changes chan domain.DeviceID, logger *zap.Logger) {
	if a.viper.ConfigFileUsed() == "" {
		return
	}

	a.viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := a.loadConfig()
		if err != nil {
			logger.Warn("Ignoring invalid config change",
				zap.String("path", e.Name),
				zap.Error(err))
			return
		}

		// Keep only the latest change if the loop has not caught up
		select {
		case <-changes:
		default:
		}
		changes <- cfg.DeviceFilter
	})
	a.viper.WatchConfig()
}

func (a *app) recordLoop(
	ctx context.Context,
	recorder *trace.Recorder,
	bus *source.Bus,
	events <-chan inputEvent,
	filterChanges <-chan domain.DeviceID,
	formatter output.Formatter,
	follow bool,
	logger *zap.Logger,
) error {
	index := 0
	skipped := 0

	for {
		select {
		case <-ctx.Done():
			logger.Info("Recording interrupted", zap.Int("skipped_lines", skipped))
			return nil

		case id := <-filterChanges:
			if err := recorder.SetDeviceFilter(id); err != nil {
				logger.Warn("Failed to apply device filter", zap.Error(err))
				continue
			}
			logger.Info("Device filter updated", zap.Uint16("device_filter", uint16(id)))

		case item, ok := <-events:
			if !ok {
				if skipped > 0 {
					logger.Warn("Skipped undecodable input lines", zap.Int("count", skipped))
				}
				return nil
			}
			if item.err != nil {
				skipped++
				logger.Debug("Skipping input line", zap.Int("line", item.line), zap.Error(item.err))
				continue
			}

			before := recorder.EventCount()
			bus.Publish(item.event)

			if !follow || recorder.EventCount() == before {
				continue
			}
			view, ok := recorder.Latest()
			if !ok {
				continue
			}
			if err := formatter.PrintEvent(output.NewEventLine(recorder, index, view)); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
			index++
		}
	}
}
