package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/tapio-trace/internal/observers/trace"
	"github.com/yairfalse/tapio-trace/internal/observers/trace/source"
	"github.com/yairfalse/tapio-trace/internal/output"
	"github.com/yairfalse/tapio-trace/pkg/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const sampleInput = `{"type":"STAT","device":1,"time":1.0,"payload":"AQI="}
{"type":"STAT","device":2,"time":2.0}
not json
{"type":"TEXT","device":2,"time":3.0,"handled":true}
`

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	a := newApp()
	a.logger = zaptest.NewLogger(t)
	a.stderr = &bytes.Buffer{}

	cmd := a.rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeReport(t *testing.T, out string) output.Report {
	t.Helper()
	var report output.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	return report
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["record"])
	assert.True(t, names["config"])
	assert.True(t, names["version"])
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tapio-trace vdev")
}

func TestRecordCommand_JSON(t *testing.T) {
	out, err := runCommand(t, sampleInput, "record", "--output", "json")
	require.NoError(t, err)

	report := decodeReport(t, out)
	require.Len(t, report.Events, 3)
	assert.Equal(t, []byte{1, 2}, report.Events[0].Payload)
	assert.Equal(t, "TEXT", report.Events[2].Type)
	assert.True(t, report.Events[2].Handled)
	assert.Equal(t, int64(3), report.Stats.EventsRecorded)
}

func TestRecordCommand_DeviceAndBufferFlags(t *testing.T) {
	out, err := runCommand(t, sampleInput, "record", "-o", "json", "--device", "2", "--buffer-size", "16")
	require.NoError(t, err)

	report := decodeReport(t, out)
	require.Len(t, report.Events, 1)
	assert.Equal(t, 3.0, report.Events[0].Time)
	assert.Equal(t, int64(1), report.Stats.EventsFiltered)
	assert.Equal(t, int64(1), report.Stats.EventsEvicted)
	assert.Equal(t, domain.DeviceID(2), report.Stats.DeviceFilter)
}

func TestRecordCommand_ConfigFile(t *testing.T) {
	path := writeConfig(t, `
name: keyboard
metrics_enabled: false
buffer_size_bytes: 4096
device_filter: 1
devices:
  - id: 1
    name: Keyboard
`)

	out, err := runCommand(t, sampleInput, "--config", path, "record", "-o", "json")
	require.NoError(t, err)

	report := decodeReport(t, out)
	require.Len(t, report.Events, 1)
	assert.Equal(t, "Keyboard", report.Events[0].DeviceName)
	assert.Equal(t, "keyboard", report.Stats.Name)
	assert.Equal(t, 4096, report.Stats.Buffer.Capacity)
}

func TestRecordCommand_EnvOverridesConfig(t *testing.T) {
	t.Setenv("TAPIO_TRACE_DEVICE_FILTER", "2")

	out, err := runCommand(t, sampleInput, "record", "-o", "json")
	require.NoError(t, err)
	assert.Len(t, decodeReport(t, out).Events, 2)
}

func TestRecordCommand_DisabledByConfig(t *testing.T) {
	path := writeConfig(t, "enabled: false\n")

	out, err := runCommand(t, sampleInput, "--config", path, "record", "-o", "json")
	require.NoError(t, err)

	report := decodeReport(t, out)
	assert.Empty(t, report.Events)
	assert.False(t, report.Stats.Enabled)
}

func TestRecordCommand_Follow(t *testing.T) {
	out, err := runCommand(t, sampleInput, "record", "--follow", "-o", "json", "--device", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first output.EventLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 2.0, first.Time)
}

func TestRecordCommand_Human(t *testing.T) {
	out, err := runCommand(t, sampleInput, "record")
	require.NoError(t, err)
	assert.Contains(t, out, "3 events")
	assert.Contains(t, out, "TEXT")
}

func TestRecordCommand_InputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleInput), 0o644))

	out, err := runCommand(t, "", "record", "--input", path, "-o", "json")
	require.NoError(t, err)
	assert.Len(t, decodeReport(t, out).Events, 3)

	_, err = runCommand(t, "", "record", "--input", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRecordCommand_Errors(t *testing.T) {
	_, err := runCommand(t, "", "record", "--output", "xml")
	assert.ErrorContains(t, err, "invalid output format")

	_, err = runCommand(t, "", "record", "--buffer-size", "8")
	assert.ErrorContains(t, err, "buffer_size_bytes")

	_, err = runCommand(t, "", "--config", filepath.Join(t.TempDir(), "none.yaml"), "record")
	assert.ErrorContains(t, err, "failed to read config")
}

func TestRecordCommand_State(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.yaml")

	_, err := runCommand(t, sampleInput, "record", "-o", "json", "--state", statePath, "--device", "2", "--buffer-size", "512")
	require.NoError(t, err)

	state, err := trace.LoadState(statePath)
	require.NoError(t, err)
	assert.Equal(t, trace.State{BufferSizeBytes: 512, DeviceFilter: 2, Enabled: true}, state)

	// Saved settings apply to the next run
	out, err := runCommand(t, sampleInput, "record", "-o", "json", "--state", statePath)
	require.NoError(t, err)
	report := decodeReport(t, out)
	assert.Len(t, report.Events, 2)
	assert.Equal(t, 512, report.Stats.Buffer.Capacity)

	// An explicit device flag wins over the saved one
	out, err = runCommand(t, sampleInput, "record", "-o", "json", "--state", statePath, "--device", "1")
	require.NoError(t, err)
	assert.Len(t, decodeReport(t, out).Events, 1)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "trace.yaml")

	out, err := runCommand(t, "", "config", "init", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = runCommand(t, "", "config", "init", "--file", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = runCommand(t, "", "config", "init", "--file", path, "--force")
	require.NoError(t, err)

	out, err = runCommand(t, "", "--config", path, "config", "show", "--format", "json")
	require.NoError(t, err)

	var shown map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.EqualValues(t, 1024*1024, shown["buffer_size_bytes"])
	assert.Equal(t, "trace", shown["name"])

	out, err = runCommand(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "buffer_size_bytes: 1048576")

	_, err = runCommand(t, "", "config", "show", "--format", "toml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestRecordLoop_AppliesFilterChanges(t *testing.T) {
	logger := zaptest.NewLogger(t)
	bus := source.NewBus(logger)
	recorder, err := trace.New(bus, trace.WithBufferSize(256), trace.WithLogger(logger), trace.WithMetrics(false, nil))
	require.NoError(t, err)
	defer recorder.Dispose()
	require.NoError(t, recorder.Enable())

	events := make(chan inputEvent)
	changes := make(chan domain.DeviceID)
	var out bytes.Buffer

	go func() {
		events <- inputEvent{event: &domain.DeviceEvent{Type: domain.EventTypeState, DeviceID: 1, Time: 1}}
		changes <- 2
		events <- inputEvent{event: &domain.DeviceEvent{Type: domain.EventTypeState, DeviceID: 1, Time: 2}}
		events <- inputEvent{event: &domain.DeviceEvent{Type: domain.EventTypeState, DeviceID: 2, Time: 3}}
		close(events)
	}()

	a := newApp()
	formatter := output.NewFormatter("json", &out)
	require.NoError(t, a.recordLoop(context.Background(), recorder, bus, events, changes, formatter, true, logger))

	assert.Equal(t, domain.DeviceID(2), recorder.DeviceFilter())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestRecordLoop_StopsOnCancel(t *testing.T) {
	logger := zaptest.NewLogger(t)
	bus := source.NewBus(logger)
	recorder, err := trace.New(bus, trace.WithLogger(logger), trace.WithMetrics(false, nil))
	require.NoError(t, err)
	defer recorder.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newApp()
	err = a.recordLoop(ctx, recorder, bus, make(chan inputEvent), nil, output.NewFormatter("human", &bytes.Buffer{}), false, logger)
	assert.NoError(t, err)
}

func TestReadEvents(t *testing.T) {
	var items []inputEvent
	for item := range readEvents(context.Background(), strings.NewReader(sampleInput+"\n")) {
		items = append(items, item)
	}

	require.Len(t, items, 4)
	assert.NoError(t, items[0].err)
	assert.Equal(t, domain.EventTypeState, items[0].event.Type)
	assert.Error(t, items[2].err)
	assert.Equal(t, 3, items[2].line)
	assert.True(t, items[3].event.Handled)
}


func TestWatchDeviceFilter_ReloadsConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, "device_filter: 1\n")

	a := newApp()
	a.cfgFile = path
	a.stderr = &bytes.Buffer{}
	require.NoError(t, a.initConfig())

	cfg, err := a.loadConfig()
	require.NoError(t, err)
	require.Equal(t, domain.DeviceID(1), cfg.DeviceFilter)

	// The watcher outlives the test, so it must not log through t
	changes := make(chan domain.DeviceID, 1)
	a.watchDeviceFilter(changes, zap.NewNop())

	require.NoError(t, os.WriteFile(path, []byte("device_filter: 5\n"), 0o644))

	var got domain.DeviceID
	require.Eventually(t, func() bool {
		select {
		case id := <-changes:
			got = id
			return id == 5
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, domain.DeviceID(5), got)
}

func TestWatchDeviceFilter_KeepsLatestChange(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, "device_filter: 1\n")

	a := newApp()
	a.cfgFile = path
	a.stderr = &bytes.Buffer{}
	require.NoError(t, a.initConfig())

	changes := make(chan domain.DeviceID, 1)
	changes <- 9
	a.watchDeviceFilter(changes, zap.NewNop())

	require.NoError(t, os.WriteFile(path, []byte("device_filter: 7\n"), 0o644))

	// The stale value is replaced rather than blocking the watcher
	require.Eventually(t, func() bool {
		select {
		case id := <-changes:
			if id == 7 {
				return true
			}
			select {
			case changes <- id:
			default:
			}
			return false
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchDeviceFilter_NoConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	a := newApp()
	a.stderr = &bytes.Buffer{}
	require.NoError(t, a.initConfig())

	changes := make(chan domain.DeviceID, 1)
	a.watchDeviceFilter(changes, zap.NewNop())
	assert.Empty(t, changes)
}
