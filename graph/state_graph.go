package graph

import (
	"context"
	"fmt"
	"slices"
)

// StateGraph represents a generic state-based graph with compile-time type safety.
// The type parameter S represents the state type, which is typically a struct.
//
// Example usage:
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("increment", "Increment counter", func(ctx context.Context, state MyState) (MyState, error) {
//	    state.Count++
//	    return state, nil
//	})
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]TypedNode[S]

	// order keeps insertion order for stable exports
	order []string

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges contains a map between "From" node, while "To" node is derived based on the condition
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string
}

// Command lets a node update the state and choose the next node in one return.
// An empty Goto falls back to the node's static or conditional edges.
type Command[S any] struct {
	Update S
	Goto   string
}

// NodeFunc is a node returning the updated state.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// CommandFunc is a node that routes itself.
type CommandFunc[S any] func(ctx context.Context, state S) (*Command[S], error)

// TypedNode represents a typed node in the graph.
type TypedNode[S any] struct {
	Name        string
	Description string
	Function    CommandFunc[S]

	// Destinations lists the nodes a command node may route to.
	Destinations []string
}

// NewStateGraph creates a new instance of StateGraph with type safety.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]TypedNode[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
	}
}

func (g *StateGraph[S]) addNode(node TypedNode[S]) {
	if _, exists := g.nodes[node.Name]; !exists {
		g.order = append(g.order, node.Name)
	}
	g.nodes[node.Name] = node
}

// AddNode adds a node whose next step is decided by its outgoing edges.
func (g *StateGraph[S]) AddNode(name string, description string, fn NodeFunc[S]) {
	g.addNode(TypedNode[S]{
		Name:        name,
		Description: description,
		Function: func(ctx context.Context, state S) (*Command[S], error) {
			next, err := fn(ctx, state)
			if err != nil {
				return nil, err
			}
			return &Command[S]{Update: next}, nil
		},
	})
}

// AddCommandNode adds a node that returns a Command. destinations documents
// where the node may route and is used by the exporters.
func (g *StateGraph[S]) AddCommandNode(name string, description string, fn CommandFunc[S], destinations ...string) {
	g.addNode(TypedNode[S]{
		Name:         name,
		Description:  description,
		Function:     fn,
		Destinations: destinations,
	})
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Nodes returns the node names in insertion order.
func (g *StateGraph[S]) Nodes() []string {
	return append([]string(nil), g.order...)
}

// StateRunnable represents a compiled state graph that can be invoked with type safety.
type StateRunnable[S any] struct {
	graph     *StateGraph[S]
	listeners []NodeListener[S]
}

// Compile validates the graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}
	for _, edge := range g.edges {
		if _, ok := g.nodes[edge.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, edge.From)
		}
		if _, ok := g.nodes[edge.To]; !ok && edge.To != END {
			return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, edge.To)
		}
	}
	for _, node := range g.nodes {
		for _, dest := range node.Destinations {
			if _, ok := g.nodes[dest]; !ok && dest != END {
				return nil, fmt.Errorf("%w: destination %s of %s", ErrNodeNotFound, dest, node.Name)
			}
		}
	}

	return &StateRunnable[S]{graph: g}, nil
}

// Graph returns the graph this runnable was compiled from.
func (r *StateRunnable[S]) Graph() *StateGraph[S] {
	return r.graph
}

// AddListener registers a listener notified for every node of every invocation.
// Listeners must be safe for concurrent use.
func (r *StateRunnable[S]) AddListener(listener NodeListener[S]) {
	r.listeners = append(r.listeners, listener)
}

// Invoke executes the compiled state graph with the given input state.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the compiled state graph with the given input state and config.
// When a configured interrupt fires, the returned state is the state at the
// interruption and the error is a *GraphInterrupt.
func (r *StateRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	return r.run(ctx, initialState, config, nil)
}

// stepFunc observes each completed step together with the node that runs next.
type stepFunc[S any] func(ctx context.Context, node string, state S, next string) error

func (r *StateRunnable[S]) run(ctx context.Context, state S, config *Config, onStep stepFunc[S]) (S, error) {
	current := r.graph.entryPoint
	resuming := false
	if config != nil && len(config.ResumeFrom) > 0 {
		current = config.ResumeFrom[0]
		resuming = true
	}

	limit := DefaultRecursionLimit
	if config != nil {
		ctx = WithConfig(ctx, config)
		if config.RecursionLimit > 0 {
			limit = config.RecursionLimit
		}
	}

	for steps := 0; current != END; steps++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		// A resumed run does not stop again before the node it resumes at.
		if !(resuming && steps == 0) && config != nil && slices.Contains(config.InterruptBefore, current) {
			r.notify(ctx, NodeEventInterrupt, current, state, nil)
			return state, &GraphInterrupt{Node: current, State: state, NextNodes: []string{current}}
		}

		if steps >= limit {
			return state, fmt.Errorf("%w: %d steps without reaching %s", ErrRecursionLimit, limit, END)
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		r.notify(ctx, NodeEventStart, current, state, nil)

		cmd, err := node.Function(ctx, state)
		if err != nil {
			r.notify(ctx, NodeEventError, current, state, err)
			return state, fmt.Errorf("error in node %s: %w", current, err)
		}
		if cmd == nil {
			err := fmt.Errorf("node %s returned no command", current)
			r.notify(ctx, NodeEventError, current, state, err)
			return state, err
		}
		state = cmd.Update

		next, err := r.nextNode(ctx, current, state, cmd.Goto)
		if err != nil {
			r.notify(ctx, NodeEventError, current, state, err)
			return state, err
		}

		r.notify(ctx, NodeEventComplete, current, state, nil)

		if onStep != nil {
			if err := onStep(ctx, current, state, next); err != nil {
				return state, err
			}
		}

		if next != END && config != nil && slices.Contains(config.InterruptAfter, current) {
			r.notify(ctx, NodeEventInterrupt, current, state, nil)
			return state, &GraphInterrupt{Node: current, State: state, NextNodes: []string{next}}
		}

		current = next
	}

	return state, nil
}

// nextNode resolves routing: Command.Goto, then conditional edge, then static edge.
func (r *StateRunnable[S]) nextNode(ctx context.Context, current string, state S, gotoNode string) (string, error) {
	if gotoNode != "" {
		if _, ok := r.graph.nodes[gotoNode]; !ok && gotoNode != END {
			return "", fmt.Errorf("%w: %s (goto from %s)", ErrNodeNotFound, gotoNode, current)
		}
		return gotoNode, nil
	}

	if condition, ok := r.graph.conditionalEdges[current]; ok {
		next := condition(ctx, state)
		if next == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", current)
		}
		return next, nil
	}

	for _, edge := range r.graph.edges {
		if edge.From == current {
			return edge.To, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, current)
}

func (r *StateRunnable[S]) notify(ctx context.Context, event NodeEvent, node string, state S, err error) {
	for _, l := range r.listeners {
		l.OnNodeEvent(ctx, event, node, state, err)
	}
}
