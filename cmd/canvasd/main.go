// Command canvasd runs the research canvas agent.
//
//	canvasd serve            start the HTTP server
//	canvasd chat             talk to the agent in the terminal
//	canvasd graph            print the step graph
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "canvasd",
		Short:        "Research canvas agent for planning marketing campaigns",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")

	root.AddCommand(serveCmd(&cfgPath), chatCmd(&cfgPath), graphCmd())
	return root
}
