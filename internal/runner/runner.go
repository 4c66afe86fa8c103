package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bankrecon/recon-host/internal/config"
	"github.com/bankrecon/recon-host/internal/lock"
	"github.com/bankrecon/recon-host/internal/log"
	"github.com/bankrecon/recon-host/internal/protocol"
)

const (
	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// Outcome is a finished engine run.
type Outcome struct {
	// Output is stdout, a newline, then stderr.
	Output   string
	ExitCode int
	Elapsed  time.Duration
}

// Failure is an expected negative outcome of a run, reported to the caller
// with its error code instead of an Outcome.
type Failure struct {
	Code    protocol.ErrorCode
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func failf(code protocol.ErrorCode, cause error, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Runner executes run_all for a fixed configuration.
type Runner struct {
	cfg     *config.Config
	timeout time.Duration
	grace   time.Duration
	logger  *slog.Logger
}

// Option adjusts a Runner.
type Option func(*Runner)

// WithTimeout overrides the configured deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithGracePeriod overrides the SIGTERM to SIGKILL delay.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) { r.grace = d }
}

// WithLogger sets the logger used for run diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		timeout: cfg.Timeout(),
		grace:   terminationGracePeriod,
		logger:  log.WithComponent("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one reconciliation for bank. It returns an Outcome when the
// engine ran to completion, whatever its exit code, and a *Failure otherwise.
func (r *Runner) Run(ctx context.Context, bank string, opts protocol.Options) (*Outcome, error) {
	if err := r.checkPaths(); err != nil {
		return nil, err
	}

	if r.cfg.LockingEnabled() {
		if err := lock.CheckLocalFilesystem(r.cfg.LockFile); errors.Is(err, lock.ErrNetworkFilesystem) {
			r.logger.Warn("run lock may not exclude other machines", "error", err)
		}
		l, err := lock.AcquirePIDLock(r.cfg.LockFile)
		switch {
		case errors.Is(err, lock.ErrLocked):
			return nil, failf(protocol.CodeExecution, err, "Another reconciliation is already running: %v", err)
		case err != nil:
			r.logger.Warn("run lock unavailable, continuing without it", "path", r.cfg.LockFile, "error", err)
		default:
			r.logger.Debug("run lock acquired", "path", l.Path())
			defer func() {
				if err := l.Release(); err != nil {
					r.logger.Warn("failed to release run lock", "error", err)
				}
			}()
		}
	}

	args := BuildArgs(r.cfg.Python, r.cfg.ScriptPath, bank, opts)
	return r.execute(ctx, args)
}

func (r *Runner) checkPaths() error {
	dir := r.cfg.BankReconDir
	info, err := os.Stat(dir)
	if err != nil {
		return failf(protocol.CodeDirNotFound, err, "BankRecon directory not found: %s", dir)
	}
	if !info.IsDir() {
		return failf(protocol.CodeDirNotFound, nil, "BankRecon directory not found: %s is not a directory", dir)
	}

	script := r.cfg.ScriptPath
	if _, err := os.Stat(script); err != nil {
		return failf(protocol.CodeScriptNotFound, err, "%s not found at %s", filepath.Base(script), script)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, args []string) (*Outcome, error) {
	// Prepare command (don't use CommandContext - we'll manage termination ourselves)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = r.cfg.BankReconDir
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONUNBUFFERED=1")
	// A grandchild holding our pipes must not block Wait forever.
	cmd.WaitDelay = r.grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	r.logger.Info("starting reconciliation", "args", args, "dir", cmd.Dir, "timeout", r.timeout)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, classifyStartError(err)
	}

	timeoutTimer := time.NewTimer(r.timeout)
	defer timeoutTimer.Stop()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timeoutTimer.C:
		r.logger.Warn("reconciliation timed out", "pid", cmd.Process.Pid, "timeout", r.timeout)
		r.terminate(cmd, waitErr)
		return nil, &Failure{Code: protocol.CodeTimeout, Message: timeoutMessage(r.timeout), Err: context.DeadlineExceeded}

	case <-ctx.Done():
		r.logger.Warn("reconciliation cancelled", "pid", cmd.Process.Pid, "error", ctx.Err())
		r.terminate(cmd, waitErr)
		return nil, failf(protocol.CodeExecution, ctx.Err(), "Reconciliation cancelled: %v", ctx.Err())

	case err := <-waitErr:
		elapsed := time.Since(started)
		if err != nil {
			var exitErr *exec.ExitError
			switch {
			case errors.As(err, &exitErr):
			case errors.Is(err, exec.ErrWaitDelay):
				r.logger.Warn("engine exited but its output pipes stayed open", "grace", r.grace)
			default:
				return nil, failf(protocol.CodeExecution, err, "%v", err)
			}
		}

		code := exitCode(cmd.ProcessState)
		r.logger.Info("reconciliation finished", "exit_code", code, "elapsed", elapsed,
			"stdout_bytes", stdout.Len(), "stderr_bytes", stderr.Len())

		return &Outcome{
			Output:   combineOutput(stdout.Bytes(), stderr.Bytes()),
			ExitCode: code,
			Elapsed:  elapsed,
		}, nil
	}
}

// terminate stops the engine and everything it started, then reaps it.
func (r *Runner) terminate(cmd *exec.Cmd, waitErr <-chan error) {
	tree := snapshotDescendants(cmd.Process.Pid)

	if err := terminateGroup(cmd); err != nil {
		r.logger.Error("failed to signal process group", "error", err)
	}

	grace := time.NewTimer(r.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
		r.logger.Info("engine exited after termination signal")
	case <-grace.C:
		r.logger.Warn("engine did not exit within grace period, killing", "grace", r.grace)
		if err := killGroup(cmd); err != nil {
			r.logger.Error("failed to kill process group", "error", err)
		}
		<-waitErr
	}

	if n := killSurvivors(tree); n > 0 {
		r.logger.Warn("killed descendants that outlived the engine", "count", n)
	}
}

func timeoutMessage(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("Reconciliation timed out after %d seconds (%d minutes)", secs, secs/60)
}

func classifyStartError(err error) *Failure {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return failf(protocol.CodePythonNotFound, err, "Python interpreter not found: %v", err)
	}
	return failf(protocol.CodeExecution, err, "%v", err)
}

// combineOutput joins the streams the way the result extractor expects,
// normalising newlines and replacing invalid UTF-8.
func combineOutput(stdout, stderr []byte) string {
	combined := normalizeNewlines(string(stdout)) + "\n" + normalizeNewlines(string(stderr))
	return strings.ToValidUTF8(combined, "\uFFFD")
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
