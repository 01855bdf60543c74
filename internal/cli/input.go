package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/yairfalse/tapio-trace/pkg/domain"
)

// maxLineBytes fits the largest record payload after base64 encoding
const maxLineBytes = 256 * 1024

// inputEvent is one decoded line, or the error that prevented decoding it
type inputEvent struct {
	line  int
	event *domain.DeviceEvent
	err   error
}

// openInput returns the reader for path, where "-" or "" means stdin
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

// readEvents decodes newline-delimited JSON events from r until EOF or ctx
// is done. The channel is closed when reading stops.
func readEvents(ctx context.Context, r io.Reader) <-chan inputEvent {
	out := make(chan inputEvent)

	go func() {
		defer close(out)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		line := 0
		for scanner.Scan() {
			line++
			data := scanner.Bytes()
			if len(data) == 0 {
				continue
			}

			item := inputEvent{line: line}
			var event domain.DeviceEvent
			if err := json.Unmarshal(data, &event); err != nil {
				item.err = fmt.Errorf("line %d: %w", line, err)
			} else {
				item.event = &event
			}

			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case out <- inputEvent{line: line, err: fmt.Errorf("failed to read input: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out
}
