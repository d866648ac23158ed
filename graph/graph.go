package graph

import (
	"errors"
	"fmt"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrRecursionLimit is returned when a single invocation runs more steps than allowed.
	ErrRecursionLimit = errors.New("recursion limit reached")

	// ErrNotInterrupted is returned when resuming a thread that is not suspended.
	ErrNotInterrupted = errors.New("thread is not interrupted")
)

// DefaultRecursionLimit bounds the number of steps of one invocation.
const DefaultRecursionLimit = 50

// GraphInterrupt is returned when execution is interrupted by configuration.
type GraphInterrupt struct {
	// Node that caused the interruption
	Node string
	// State at the time of interruption
	State any
	// NextNodes that would have been executed if not interrupted
	NextNodes []string
}

func (e *GraphInterrupt) Error() string {
	return fmt.Sprintf("graph interrupted at node %s", e.Node)
}

// IsInterrupt reports whether err is (or wraps) a GraphInterrupt.
func IsInterrupt(err error) bool {
	var gi *GraphInterrupt
	return errors.As(err, &gi)
}

// Edge represents an edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}
