package cli

import (
	"fmt"
	"time"

	"github.com/sparcflow/sparcflow/internal/resultlog"
	"github.com/spf13/cobra"
)

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <results-file>",
		Short: "Summarize a results log per execution mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := resultlog.ReadAll(args[0])
			if err != nil {
				return err
			}

			s := resultlog.Summarize(records)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-30s %6s %6s %9s %10s\n", "MODE", "TASKS", "FAILED", "ARTIFACTS", "MEAN")
			for _, m := range s.Modes {
				fmt.Fprintf(out, "%-30s %6d %6d %9d %10s\n", m.Mode, m.Total, m.Failed, m.Artifacts, m.MeanDuration.Round(time.Millisecond))
			}
			fmt.Fprintf(out, "%-30s %6d %6d %9d\n", "TOTAL", s.Total, s.Failed, s.Artifacts)

			a.logger.Debug("report generated", "path", args[0], "records", len(records))
			return nil
		},
	}
}
