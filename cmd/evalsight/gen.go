package main

import (
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/evalsight-go/internal/codegen"
)

func newGenCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate typed prompt accessors from deployed prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return codegen.Run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", codegen.DefaultConfigPath, "path to generation config")
	return cmd
}
