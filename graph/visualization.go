package graph

import (
	"fmt"
	"slices"
	"strings"
)

// Exporter renders a graph's topology.
type Exporter[S any] struct {
	graph *StateGraph[S]
}

// NewExporter creates a new graph exporter for the given graph
func NewExporter[S any](graph *StateGraph[S]) *Exporter[S] {
	return &Exporter[S]{graph: graph}
}

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string

	// Interrupts lists nodes drawn as human-approval steps.
	Interrupts []string
}

type exportEdge struct {
	from, to string
	dynamic  bool
}

// edges returns static edges followed by command destinations, in node order.
func (ge *Exporter[S]) edges() []exportEdge {
	var out []exportEdge
	for _, e := range ge.graph.edges {
		out = append(out, exportEdge{from: e.From, to: e.To})
	}
	for _, name := range ge.graph.order {
		for _, dest := range ge.graph.nodes[name].Destinations {
			out = append(out, exportEdge{from: name, to: dest, dynamic: true})
		}
	}
	return out
}

func (ge *Exporter[S]) referencesEnd() bool {
	return slices.ContainsFunc(ge.edges(), func(e exportEdge) bool { return e.to == END })
}

// DrawMermaid generates a Mermaid diagram representation of the graph
func (ge *Exporter[S]) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// DrawMermaidWithOptions generates a Mermaid diagram with custom options
func (ge *Exporter[S]) DrawMermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	if ge.graph.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString("    style START fill:#90EE90\n")
	}

	for _, name := range ge.graph.order {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", name, name)
	}

	if ge.referencesEnd() {
		sb.WriteString("    END([\"END\"])\n")
		sb.WriteString("    style END fill:#FFB6C1\n")
	}

	if ge.graph.entryPoint != "" {
		fmt.Fprintf(&sb, "    START --> %s\n", ge.graph.entryPoint)
	}

	for _, e := range ge.edges() {
		if e.dynamic {
			fmt.Fprintf(&sb, "    %s -.-> %s\n", e.from, e.to)
		} else {
			fmt.Fprintf(&sb, "    %s --> %s\n", e.from, e.to)
		}
	}

	for _, name := range ge.graph.order {
		if _, ok := ge.graph.conditionalEdges[name]; ok {
			fmt.Fprintf(&sb, "    %s -.-> %s_condition((?))\n", name, name)
			fmt.Fprintf(&sb, "    style %s_condition fill:#FFFFE0,stroke:#333,stroke-dasharray: 5 5\n", name)
		}
	}

	if ge.graph.entryPoint != "" {
		fmt.Fprintf(&sb, "    style %s fill:#87CEEB\n", ge.graph.entryPoint)
	}
	for _, name := range opts.Interrupts {
		fmt.Fprintf(&sb, "    style %s fill:#FFD580,stroke:#333,stroke-width:2px\n", name)
	}

	return sb.String()
}

// DrawDOT generates a DOT (Graphviz) representation of the graph
func (ge *Exporter[S]) DrawDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TD;\n")
	sb.WriteString("    node [shape=box];\n")

	if ge.graph.entryPoint != "" {
		sb.WriteString("    START [label=\"START\", shape=ellipse, style=filled, fillcolor=lightgreen];\n")
		fmt.Fprintf(&sb, "    %s [style=filled, fillcolor=lightblue];\n", ge.graph.entryPoint)
	}
	if ge.referencesEnd() {
		sb.WriteString("    END [label=\"END\", shape=ellipse, style=filled, fillcolor=lightpink];\n")
	}

	if ge.graph.entryPoint != "" {
		fmt.Fprintf(&sb, "    START -> %s;\n", ge.graph.entryPoint)
	}
	for _, e := range ge.edges() {
		if e.dynamic {
			fmt.Fprintf(&sb, "    %s -> %s [style=dashed];\n", e.from, e.to)
		} else {
			fmt.Fprintf(&sb, "    %s -> %s;\n", e.from, e.to)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// DrawASCII lists every node with its possible successors.
func (ge *Exporter[S]) DrawASCII() string {
	if ge.graph.entryPoint == "" {
		return "No entry point set\n"
	}

	successors := make(map[string][]string)
	for _, e := range ge.edges() {
		successors[e.from] = append(successors[e.from], e.to)
	}

	var sb strings.Builder
	sb.WriteString("Graph Execution Flow:\n")
	fmt.Fprintf(&sb, "START -> %s\n", ge.graph.entryPoint)
	for _, name := range ge.graph.order {
		next := successors[name]
		if _, ok := ge.graph.conditionalEdges[name]; ok {
			next = append(next, "(conditional)")
		}
		fmt.Fprintf(&sb, "%s -> %s\n", name, strings.Join(next, " | "))
	}
	return sb.String()
}
