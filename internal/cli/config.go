package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrEthical07/civiclens"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "config prints defaults merged with --config and CIVICLENS_* variables. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			return civiclens.WriteConfig(cmd.OutOrStdout(), cfg)
		},
	}
}
