package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bankrecon/recon-host/internal/config"
	"github.com/bankrecon/recon-host/internal/doctor"
)

func newDoctorCmd(configPath *string) *cobra.Command {
	var strict, jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, paths and interpreter",
		Long: `Checks that a run_reconciliation request could start: the BankRecon
directory, the run_all script and the Python interpreter.

Exit codes: 0 valid, 1 invalid, 2 warnings with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(config.DiscoverPath(*configPath))
			result := doctor.New(cfg, currentVersionInfo().Version).Validate(cmd.Context())

			out := cmd.OutOrStdout()
			if jsonOut {
				s, err := doctor.FormatJSON(result)
				if err != nil {
					return fmt.Errorf("JSON format error: %w", err)
				}
				fmt.Fprintln(out, s)
			} else {
				fmt.Fprintf(out, "config: %s\n", cfg.Source.Path)
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			if !result.Valid {
				return &exitError{code: 1}
			}
			if strict && len(result.Warnings) > 0 {
				return &exitError{code: 2}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON")
	return cmd
}
