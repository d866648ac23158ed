package main

import (
	"fmt"

	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/graph"
	"github.com/smallnest/researchcanvas/models"
	"github.com/spf13/cobra"
)

func graphCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the step graph as Mermaid, DOT or ASCII",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := canvas.New(canvas.Options{Models: models.NewFactory(models.Credentials{})})
			if err != nil {
				return err
			}
			exporter := graph.NewExporter(agent.Graph())

			var out string
			switch format {
			case "mermaid":
				out = exporter.DrawMermaidWithOptions(graph.MermaidOptions{
					Direction:  "TD",
					Interrupts: []string{canvas.NodeDelete},
				})
			case "dot":
				out = exporter.DrawDOT()
			case "ascii":
				out = exporter.DrawASCII()
			default:
				return fmt.Errorf("unknown format %q (expected mermaid, dot or ascii)", format)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "output format: mermaid, dot or ascii")
	return cmd
}
