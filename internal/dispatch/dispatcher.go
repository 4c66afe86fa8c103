package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bankrecon/recon-host/internal/extract"
	"github.com/bankrecon/recon-host/internal/log"
	"github.com/bankrecon/recon-host/internal/protocol"
	"github.com/bankrecon/recon-host/internal/runner"
)

const (
	CommandPing      = "ping"
	CommandReconcile = "run_reconciliation"

	// DefaultBank is used when a run request names no bank.
	DefaultBank = "HSBC"
)

// SupportedCommands is reported alongside UNKNOWN_COMMAND.
var SupportedCommands = []string{CommandPing, CommandReconcile}

// Dispatcher maps commands to handlers.
type Dispatcher struct {
	reconciler Reconciler
	health     HealthReporter
	now        func() time.Time
	logger     *slog.Logger
}

// Option adjusts a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher.
func New(reconciler Reconciler, health HealthReporter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reconciler: reconciler,
		health:     health,
		now:        time.Now,
		logger:     log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles req and returns the response to send back.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) protocol.Response {
	d.logger.Info("dispatching", "command", req.CommandLabel())

	switch req.Command {
	case CommandPing:
		return d.health.Snapshot(ctx)
	case CommandReconcile:
		return d.reconcile(ctx, req)
	default:
		d.logger.Warn("unknown command", "command", req.CommandLabel())
		resp := protocol.Failure(protocol.CodeUnknownCommand,
			fmt.Sprintf("Unknown command: %s", req.CommandLabel()), d.now())
		resp["supportedCommands"] = SupportedCommands
		return resp
	}
}

func (d *Dispatcher) reconcile(ctx context.Context, req *protocol.Request) protocol.Response {
	bank := req.Bank
	if bank == "" {
		bank = DefaultBank
	}

	out, err := d.reconciler.Run(ctx, bank, req.Options)
	if err != nil {
		var f *runner.Failure
		if errors.As(err, &f) {
			d.logger.Warn("reconciliation failed", "bank", bank, "error_code", f.Code, "error", f.Message)
			return protocol.Failure(f.Code, f.Message, d.now())
		}
		d.logger.Error("reconciliation error", "bank", bank, "error", err)
		return protocol.Failure(protocol.CodeExecution, err.Error(), d.now())
	}

	resp := extract.Result(out.Output, out.ExitCode, d.now())
	d.logger.Info("reconciliation complete",
		"bank", bank,
		"exit_code", out.ExitCode,
		"success", resp.Success(),
		"elapsed", out.Elapsed,
	)
	return resp
}
