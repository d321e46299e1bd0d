// Package bridge is the request/response surface a UI process talks to.
// Each record operation is registered under one dotted op name; failures
// come back as {success: false, error, code} and never as Go errors.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	apperrors "github.com/tgienger/devdesk/internal/errors"
)

// Request is one call from the UI.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers one Request.
type Response struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Handler runs one operation against a decoded payload.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Dispatcher routes requests to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: make(map[string]Handler), logger: logger}
}

// Register binds op to h. Registering the same op twice panics.
func (d *Dispatcher) Register(op string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.handlers[op]; dup {
		panic(fmt.Sprintf("bridge: op %q registered twice", op))
	}
	d.handlers[op] = h
}

// Routes lists every registered op, sorted.
func (d *Dispatcher) Routes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for op := range d.handlers {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Handle runs req and converts the outcome into a Response.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	d.mu.RLock()
	h, ok := d.handlers[req.Op]
	d.mu.RUnlock()
	if !ok {
		return d.failure(req, apperrors.UnknownOp(req.Op))
	}

	start := time.Now()
	data, err := d.invoke(ctx, h, req.Payload)
	if err != nil {
		return d.failure(req, err)
	}
	d.logger.Debug("bridge op", "op", req.Op, "duration", time.Since(start))
	return Response{ID: req.ID, Success: true, Data: data}
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, payload json.RawMessage) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Internal("operation panicked", fmt.Errorf("%v", r))
		}
	}()
	return h(ctx, payload)
}

func (d *Dispatcher) failure(req Request, err error) Response {
	code := apperrors.CodeOf(err)
	d.logger.Warn("bridge op failed", "op", req.Op, "code", string(code), "error", err)
	return Response{ID: req.ID, Success: false, Error: err.Error(), Code: string(code)}
}

// Call is the in-process form of Handle. in is encoded as the payload and
// the result is decoded into out, so callers see the same shapes a remote
// UI does. A failed response is returned as an *AppError carrying its code.
func (d *Dispatcher) Call(ctx context.Context, op string, in, out any) error {
	var payload json.RawMessage
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", op, err)
		}
		payload = raw
	}

	resp := d.Handle(ctx, Request{Op: op, Payload: payload})
	if !resp.Success {
		return &apperrors.AppError{Code: apperrors.Code(resp.Code), What: resp.Error}
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", op, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", op, err)
	}
	return nil
}

// decode reads payload into a value of type In. An empty payload yields
// the zero value.
func decode[In any](payload json.RawMessage) (In, error) {
	var in In
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return in, nil
	}
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return in, apperrors.Invalid("payload", err.Error())
	}
	return in, nil
}

// bind adapts a typed function into a Handler.
func bind[In any](fn func(ctx context.Context, in In) (any, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := decode[In](payload)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// noArgs adapts a function that takes no payload.
func noArgs(fn func(ctx context.Context) (any, error)) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		return fn(ctx)
	}
}
