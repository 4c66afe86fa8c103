package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bankrecon/recon-host/internal/config"
	"github.com/bankrecon/recon-host/internal/dispatch"
	"github.com/bankrecon/recon-host/internal/doctor"
	"github.com/bankrecon/recon-host/internal/host"
	"github.com/bankrecon/recon-host/internal/log"
	"github.com/bankrecon/recon-host/internal/runner"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// exitError carries a specific exit code out of a cobra RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code. stdout is only
// ever written by subcommands; in host mode it carries protocol frames.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// The browser, not a user, launches the host on Windows.
	cobra.MousetrapHelpText = ""

	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "recon-host",
		Short: "Native messaging host that runs bank reconciliations",
		Long: `recon-host is launched by the browser for each message from the
BankRecon extension. It reads one request from stdin, runs it, and writes
one response to stdout.

Without a subcommand it runs in host mode. Arguments the browser appends
(the caller origin, --parent-window) are ignored.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			UnknownFlags: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := runHost(cmd.Context(), configPath, stdin, stdout, stderr); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: $"+config.EnvConfigPath+" or config.json next to the executable)")

	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newDoctorCmd(&configPath),
		newConfigCmd(&configPath),
		newManifestCmd(),
		newVersionCmd(),
	)
	return root
}

// runHost performs one native-messaging exchange.
func runHost(ctx context.Context, configPath string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg := config.Load(config.DiscoverPath(configPath))

	logOut, closeLog := openLogOutput(cfg.LogFile, stderr)
	defer closeLog()
	log.Setup(cfg.LogLevel, logOut)

	logger := log.WithInvocation(host.NewInvocationID())
	logger.Info("recon-host starting",
		"version", currentVersionInfo().Version,
		"pid", os.Getpid(),
		"config", cfg.Source.Path,
		"config_hash", config.ShortHash(cfg.Source.Hash),
	)
	if cfg.Source.Warning != "" {
		logger.Warn("using default configuration", "reason", cfg.Source.Warning)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := runner.New(cfg, runner.WithLogger(logger.With("component", "runner")))
	doc := doctor.New(cfg, currentVersionInfo().Version)
	d := dispatch.New(rec, doc, dispatch.WithLogger(logger.With("component", "dispatch")))

	code := host.New(d, host.WithLogger(logger.With("component", "host"))).Serve(ctx, stdin, stdout)
	logger.Info("recon-host exiting", "exit_code", code)
	return code
}

// openLogOutput opens log_file for appending, falling back to stderr.
func openLogOutput(path string, stderr io.Writer) (io.Writer, func()) {
	if path == "" {
		return stderr, func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(stderr, "recon-host: cannot open log file %s: %v; logging to stderr\n", path, err)
		return stderr, func() {}
	}
	return f, func() { _ = f.Close() }
}
