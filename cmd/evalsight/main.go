// Command evalsight is the companion CLI: it generates typed prompt
// accessors and hosts the local collector that test suite runs report
// to.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "evalsight",
		Short:         "Evalsight developer tools",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newGenCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newRunsCmd())
	return root
}
