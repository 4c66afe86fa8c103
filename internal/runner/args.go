package runner

import "github.com/bankrecon/recon-host/internal/protocol"

// switches lists boolean options in the order run_all expects their flags.
var switches = []struct {
	flag string
	on   func(protocol.Options) bool
}{
	{"--skip-cashbook", func(o protocol.Options) bool { return bool(o.SkipCashbook) }},
	{"--skip-hsbc-distribution", func(o protocol.Options) bool { return bool(o.SkipDistribution) }},
	{"--skip-bnp-distribution", func(o protocol.Options) bool { return bool(o.SkipBnpDistribution) }},
	{"--force-reconsolidate", func(o protocol.Options) bool { return bool(o.ForceReconsolidate) }},
}

// BuildArgs returns the full argv for one run, interpreter first.
// Unset options contribute nothing; month and entity are flag/value pairs.
func BuildArgs(python, script, bank string, opts protocol.Options) []string {
	args := []string{python, script, "--bank", bank}

	for _, s := range switches {
		if s.on(opts) {
			args = append(args, s.flag)
		}
	}

	if opts.Month != "" {
		args = append(args, "--month", string(opts.Month))
	}
	if opts.Entity != "" {
		args = append(args, "--entity", string(opts.Entity))
	}

	return args
}
