package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bankrecon/recon-host/internal/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the host configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), config.DiscoverPath(*configPath))
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the effective value of a setting",
			Long:  "Keys: " + strings.Join(config.Keys, ", "),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.Load(config.DiscoverPath(*configPath))
				v, err := cfg.GetPath(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Write a setting to the config file",
			Long:  "Keys: " + strings.Join(config.Keys, ", "),
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := config.DiscoverPath(*configPath)
				if err := config.SetValue(path, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", args[0], args[1], path)
				return nil
			},
		},
	)
	return cmd
}
