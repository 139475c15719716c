package main

import (
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/evalsight-go/internal/collector"
	"github.com/stellarlinkco/evalsight-go/internal/runstore"
)

const defaultStorePath = ".evalsight/runs.db"

func newServeCmd() *cobra.Command {
	var (
		addr      string
		storePath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the local collector for test suite runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := runstore.Open(storePath)
			if err != nil {
				return err
			}
			defer st.Close()

			srv, err := collector.NewServer(st)
			if err != nil {
				return err
			}
			return srv.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", collector.DefaultAddress, "listen address")
	cmd.Flags().StringVar(&storePath, "store", defaultStorePath, "path to the local run store")
	return cmd
}
