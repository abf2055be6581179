package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackendsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List index names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			for _, name := range cfg.Registry(logger).Names() {
				marker := " "
				if name == cfg.Index {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}
