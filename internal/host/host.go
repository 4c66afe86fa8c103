// Package host runs one native-messaging exchange: read a request frame,
// dispatch it, write the response frame, and pick the process exit code.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/bankrecon/recon-host/internal/log"
	"github.com/bankrecon/recon-host/internal/protocol"
)

// Exit codes returned by Serve.
const (
	ExitOK    = 0
	ExitError = 1
)

// Handler answers a decoded request. *dispatch.Dispatcher implements it.
type Handler interface {
	Dispatch(ctx context.Context, req *protocol.Request) protocol.Response
}

// Host owns the inbound and outbound channels for one invocation.
type Host struct {
	handler Handler
	now     func() time.Time
	logger  *slog.Logger
}

// Option adjusts a Host.
type Option func(*Host)

// WithClock replaces time.Now for error timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// WithLogger sets the logger; by default a fresh invocation id is attached.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// NewInvocationID returns the id that tags every log line of one launch.
func NewInvocationID() string {
	return uuid.NewString()
}

// New creates a Host around handler.
func New(handler Handler, opts ...Option) *Host {
	h := &Host{
		handler: handler,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = log.WithInvocation(NewInvocationID())
	}
	return h
}

// Serve performs the exchange and returns the exit code. At most one frame
// is written to out, and only ever a complete one.
func (h *Host) Serve(ctx context.Context, in io.Reader, out io.Writer) int {
	started := time.Now()
	h.logger.Debug("waiting for request")

	req, err := protocol.ReadMessage(in)
	if errors.Is(err, io.EOF) {
		h.logger.Info("input closed before any request, exiting")
		return ExitOK
	}
	if err != nil {
		h.logger.Error("invalid request", "error", err)
		h.fail(out, protocol.CodeInvalidJSON, fmt.Sprintf("Invalid JSON input: %v", err))
		return ExitError
	}

	resp, err := h.dispatch(ctx, req)
	if err != nil {
		h.logger.Error("dispatch failed", "command", req.CommandLabel(), "error", err)
		h.fail(out, protocol.CodeFatal, fmt.Sprintf("Fatal error: %v", err))
		return ExitError
	}

	payload, err := protocol.Encode(resp)
	if err == nil {
		err = protocol.WriteFrame(out, payload)
	}
	if err != nil {
		h.logger.Error("failed to write response", "error", err)
		var encErr *json.UnsupportedTypeError
		var valErr *json.UnsupportedValueError
		if errors.Is(err, protocol.ErrFrameTooLarge) || errors.As(err, &encErr) || errors.As(err, &valErr) {
			// Nothing was written yet, so a small error frame still fits.
			h.fail(out, protocol.CodeFatal, fmt.Sprintf("Fatal error: %v", err))
		}
		return ExitError
	}

	h.logger.Info("request handled",
		"command", req.CommandLabel(),
		"success", resp.Success(),
		"error_code", resp.ErrorCode(),
		"duration", time.Since(started),
	)
	return ExitOK
}

// dispatch calls the handler, turning a panic into an error.
func (h *Host) dispatch(ctx context.Context, req *protocol.Request) (resp protocol.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic during dispatch", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%v", r)
		}
	}()
	resp = h.handler.Dispatch(ctx, req)
	if resp == nil {
		return nil, errors.New("handler returned no response")
	}
	return resp, nil
}

// fail writes a best-effort error frame.
func (h *Host) fail(out io.Writer, code protocol.ErrorCode, msg string) {
	if err := protocol.WriteMessage(out, protocol.Failure(code, msg, h.now())); err != nil {
		h.logger.Error("failed to write error response", "error", err)
	}
}
