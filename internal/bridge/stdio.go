package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	apperrors "github.com/tgienger/devdesk/internal/errors"
)

// maxLine bounds one request line.
const maxLine = 8 * 1024 * 1024

// ServeStdio reads newline-delimited JSON requests from r and writes one
// JSON response line per request to w, in order. It returns nil when r is
// exhausted and ctx.Err() when ctx ends first.
func (d *Dispatcher) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
		for scanner.Scan() {
			line := bytes.Clone(scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read request: %w", err)
					}
				default:
				}
				return nil
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if err := enc.Encode(d.handleLine(ctx, line)); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

func (d *Dispatcher) handleLine(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return d.failure(Request{Op: "?"}, apperrors.Invalid("request", err.Error()))
	}
	return d.Handle(ctx, req)
}
