// Package doctor reports on the host's environment: the ping snapshot sent
// to the extension and the validation report behind the doctor command.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/bankrecon/recon-host/internal/config"
	"github.com/bankrecon/recon-host/internal/lock"
	"github.com/bankrecon/recon-host/internal/protocol"
)

// platformTimeout bounds the host info lookup so ping stays fast.
const platformTimeout = 2 * time.Second

// minTimeoutSeconds is the shortest deadline that is not reported as suspicious.
const minTimeoutSeconds = 60

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Checks is the diagnostic block of a ping response. PythonVersion stays
// empty because ping never starts the interpreter.
type Checks struct {
	ConfigFile       bool   `json:"configFile"`
	ConfigPath       string `json:"configPath"`
	ConfigError      string `json:"configError,omitempty"`
	ConfigHash       string `json:"configHash,omitempty"`
	BankReconDir     bool   `json:"bankReconDir"`
	BankReconDirPath string `json:"bankReconDirPath"`
	RunAllScript     bool   `json:"runAllScript"`
	RunAllScriptPath string `json:"runAllScriptPath"`
	Interpreter      string `json:"interpreter"`
	InterpreterPath  string `json:"interpreterPath,omitempty"`
	InterpreterFound bool   `json:"interpreterFound"`
	RuntimeVersion   string `json:"runtimeVersion"`
	PythonVersion    string `json:"pythonVersion"`
	TimeoutSeconds   int    `json:"timeoutSeconds"`
	Platform         string `json:"platform"`
}

// Doctor inspects the environment described by a loaded config.
type Doctor struct {
	cfg         *config.Config
	version     string
	now         func() time.Time
	lookPath    func(string) (string, error)
	platform    func(context.Context) string
	checkLockFS func(string) error
}

// New creates a Doctor for cfg. version is reported verbatim by ping.
func New(cfg *config.Config, version string) *Doctor {
	return &Doctor{
		cfg:         cfg,
		version:     version,
		now:         time.Now,
		lookPath:    exec.LookPath,
		platform:    platformString,
		checkLockFS: lock.CheckLocalFilesystem,
	}
}

// Checks gathers the current state of every configured path. Only the
// filesystem and PATH are consulted; nothing is executed.
func (d *Doctor) Checks(ctx context.Context) Checks {
	c := Checks{
		ConfigFile:       d.cfg.Source.Exists,
		ConfigPath:       absPath(d.cfg.Source.Path),
		ConfigError:      d.cfg.Source.Warning,
		ConfigHash:       config.ShortHash(d.cfg.Source.Hash),
		BankReconDir:     isDir(d.cfg.BankReconDir),
		BankReconDirPath: absPath(d.cfg.BankReconDir),
		RunAllScript:     isFile(d.cfg.ScriptPath),
		RunAllScriptPath: absPath(d.cfg.ScriptPath),
		Interpreter:      d.cfg.Python,
		RuntimeVersion:   fmt.Sprintf("recon-host %s (%s)", d.version, runtime.Version()),
		TimeoutSeconds:   d.cfg.TimeoutSeconds,
		Platform:         d.platform(ctx),
	}
	if p, err := d.lookPath(d.cfg.Python); err == nil {
		c.InterpreterFound = true
		c.InterpreterPath = absPath(p)
	}
	return c
}

// Snapshot builds the ping response. It always reports success; missing
// paths show up in checks.
func (d *Doctor) Snapshot(ctx context.Context) protocol.Response {
	return protocol.Response{
		"success":   true,
		"message":   "Native host is available",
		"version":   d.version,
		"timestamp": protocol.Timestamp(d.now()),
		"checks":    d.Checks(ctx),
	}
}

// Validate turns the checks into errors and warnings. A config that would
// make run_reconciliation fail is invalid.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}
	c := d.Checks(ctx)

	d.validateConfigFile(r, c)
	d.validatePaths(r, c)
	d.validateInterpreter(r, c)
	d.warnSuspiciousTimeout(r)
	d.warnLockFile(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateConfigFile reports a config file that exists but was ignored.
func (d *Doctor) validateConfigFile(r *Result, c Checks) {
	switch {
	case c.ConfigError == "":
	case c.ConfigFile:
		d.addError(r, "config", "", c.ConfigError)
	default:
		d.addWarning(r, "config", "", c.ConfigError)
	}
}

func (d *Doctor) validatePaths(r *Result, c Checks) {
	if !c.BankReconDir {
		d.addError(r, "paths", "bankrecon_dir",
			fmt.Sprintf("BankRecon directory not found: %s", c.BankReconDirPath))
		// The script lives under the directory; one error is enough.
		return
	}
	if !c.RunAllScript {
		d.addError(r, "paths", "run_all_script",
			fmt.Sprintf("%s not found at %s", filepath.Base(c.RunAllScriptPath), c.RunAllScriptPath))
	}
}

func (d *Doctor) validateInterpreter(r *Result, c Checks) {
	if !c.InterpreterFound {
		d.addError(r, "interpreter", "python",
			fmt.Sprintf("Python interpreter not found: %q", c.Interpreter))
	}
}

func (d *Doctor) warnSuspiciousTimeout(r *Result) {
	if d.cfg.TimeoutSeconds < minTimeoutSeconds {
		d.addWarning(r, "timeout", "timeout_seconds",
			fmt.Sprintf("timeout_seconds is %d; reconciliations usually need several minutes", d.cfg.TimeoutSeconds))
	}
}

// warnLockFile warns when the run lock cannot be created where configured.
func (d *Doctor) warnLockFile(r *Result) {
	if !d.cfg.LockingEnabled() {
		d.addWarning(r, "lock", "lock_file", "run lock disabled; concurrent reconciliations are possible")
		return
	}
	if !isDir(filepath.Dir(d.cfg.LockFile)) {
		d.addWarning(r, "lock", "lock_file",
			fmt.Sprintf("lock file directory does not exist: %s", filepath.Dir(d.cfg.LockFile)))
	}
	if err := d.checkLockFS(d.cfg.LockFile); errors.Is(err, lock.ErrNetworkFilesystem) {
		d.addWarning(r, "lock", "lock_file", err.Error())
	}
}

func platformString(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, platformTimeout)
	defer cancel()

	fallback := runtime.GOOS + "/" + runtime.GOARCH
	info, err := host.InfoWithContext(ctx)
	if err != nil || info.Platform == "" {
		return fallback
	}
	return fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, fallback)
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func isDir(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func isFile(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
