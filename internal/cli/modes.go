package cli

import (
	"fmt"

	"github.com/sparcflow/sparcflow/internal/sparc"
	"github.com/spf13/cobra"
)

func newModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List execution modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, m := range sparc.Modes() {
				fmt.Fprintf(out, "%-30s %s\n", m, sparc.Persona(m))
			}
			return nil
		},
	}
}
