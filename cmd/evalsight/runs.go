package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/evalsight-go/internal/runstore"
)

func newRunsCmd() *cobra.Command {
	var (
		storePath string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "runs <test-suite-id>",
		Short: "List recent local runs of a test suite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := runstore.Open(storePath)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.RunsForSuite(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tRESULTS\tERRORS")
			for _, run := range runs {
				results, err := st.ResultsForRun(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				errRecords, err := st.ErrorsForRun(cmd.Context(), run.ID)
				if err != nil {
					return err
				}

				duration := "-"
				if run.EndedAt != nil {
					duration = run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
					run.ID,
					run.StartedAt.Format(time.RFC3339),
					duration,
					len(results),
					len(errRecords),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&storePath, "store", defaultStorePath, "path to the local run store")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}
