package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is looked up next to the executable when no path is given.
	DefaultFileName = "config.json"

	// DefaultTimeoutSeconds bounds one reconciliation run (30 minutes).
	DefaultTimeoutSeconds = 1800

	// LockDisabled as lock_file turns the run lock off.
	LockDisabled = "-"

	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "RECON_HOST_CONFIG"

	// EnvLogLevel overrides log_level from the file.
	EnvLogLevel = "RECON_HOST_LOG_LEVEL"
)

// DefaultRunAllScript is the engine entry point relative to bankrecon_dir.
var DefaultRunAllScript = filepath.Join("BankRecon_Python_Engine", "run_all.py")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DefaultBankReconDir is the reconciliation root used without a config file.
func DefaultBankReconDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "Recon Project", "Matching Files", "BNP")
}

// DefaultPython is the interpreter used to launch run_all.
func DefaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{
		BankReconDir:   DefaultBankReconDir(),
		RunAllScript:   DefaultRunAllScript,
		Python:         DefaultPython(),
		TimeoutSeconds: DefaultTimeoutSeconds,
		LogLevel:       "INFO",
		LockFile:       filepath.Join(os.TempDir(), "recon-host.lock"),
	}
	cfg.ScriptPath = resolveScript(cfg.BankReconDir, cfg.RunAllScript)
	return cfg
}

// DiscoverPath picks the config file location.
// Priority order: explicit path, $RECON_HOST_CONFIG, config.json next to the executable.
func DiscoverPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), DefaultFileName)
}

// Load reads the optional config file at path over the defaults.
// It never fails: a missing or broken file yields the defaults and a
// warning in Source.Warning, which the ping report surfaces.
func Load(path string) *Config {
	cfg := Defaults()

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	name := filepath.Base(absPath)
	cfg.Source.Path = absPath

	data, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.Source.Warning = fmt.Sprintf("%s not found, using defaults", name)
		} else {
			cfg.Source.Warning = fmt.Sprintf("config load error: %v", err)
		}
		applyEnv(cfg)
		return cfg
	}

	cfg.Source.Exists = true
	cfg.Source.Hash = HashBytes(data)

	overlay := *cfg
	if err := decode(data, &overlay); err != nil {
		cfg.Source.Warning = fmt.Sprintf("%s parse error: %v", name, err)
		applyEnv(cfg)
		return cfg
	}

	cfg = &overlay
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg
}

// decode parses the file as YAML, which covers JSON documents too. JSON
// indented with tabs is not valid YAML, so it gets a second, strict JSON pass.
func decode(data []byte, into *Config) error {
	data = bytes.TrimPrefix(data, utf8BOM)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("file is empty")
	}

	yamlErr := yaml.Unmarshal(data, into)
	if yamlErr == nil {
		return nil
	}
	if trimmed[0] != '{' {
		return yamlErr
	}

	var fc struct {
		BankReconDir   *string `json:"bankrecon_dir"`
		RunAllScript   *string `json:"run_all_script"`
		Python         *string `json:"python"`
		TimeoutSeconds *int    `json:"timeout_seconds"`
		LogLevel       *string `json:"log_level"`
		LogFile        *string `json:"log_file"`
		LockFile       *string `json:"lock_file"`
	}
	if err := json.Unmarshal(trimmed, &fc); err != nil {
		return err
	}
	setString(&into.BankReconDir, fc.BankReconDir)
	setString(&into.RunAllScript, fc.RunAllScript)
	setString(&into.Python, fc.Python)
	setString(&into.LogLevel, fc.LogLevel)
	setString(&into.LogFile, fc.LogFile)
	setString(&into.LockFile, fc.LockFile)
	if fc.TimeoutSeconds != nil {
		into.TimeoutSeconds = *fc.TimeoutSeconds
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// applyDefaults fills fields the file blanked out and resolves the script path.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.BankReconDir) == "" {
		cfg.BankReconDir = DefaultBankReconDir()
	}
	if strings.TrimSpace(cfg.RunAllScript) == "" {
		cfg.RunAllScript = DefaultRunAllScript
	}
	if strings.TrimSpace(cfg.Python) == "" {
		cfg.Python = DefaultPython()
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	cfg.ScriptPath = resolveScript(cfg.BankReconDir, cfg.RunAllScript)
}

func applyEnv(cfg *Config) {
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
}

// resolveScript joins script onto dir unless script is already absolute.
func resolveScript(dir, script string) string {
	script = filepath.FromSlash(script)
	if filepath.IsAbs(script) {
		return filepath.Clean(script)
	}
	return filepath.Join(dir, script)
}
