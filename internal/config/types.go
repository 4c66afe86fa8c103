package config

import "time"

// Config is the host configuration. It is loaded once at startup and never
// mutated afterwards; components receive it by pointer and only read it.
type Config struct {
	BankReconDir   string `yaml:"bankrecon_dir"`
	RunAllScript   string `yaml:"run_all_script"`
	Python         string `yaml:"python"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	LockFile       string `yaml:"lock_file"`

	// ScriptPath is RunAllScript resolved against BankReconDir.
	ScriptPath string `yaml:"-"`

	// Source describes where the values came from.
	Source Source `yaml:"-"`
}

// Source records the outcome of reading the optional config file.
type Source struct {
	Path   string
	Exists bool
	// Hash is the BLAKE3 digest of the file bytes, empty when unread.
	Hash string
	// Warning is set whenever defaults had to be used; it is never fatal.
	Warning string
}

// Timeout returns the wall-clock deadline for one reconciliation run.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LockingEnabled reports whether runs take the cross-process lock.
func (c *Config) LockingEnabled() bool {
	return c.LockFile != "" && c.LockFile != LockDisabled
}
