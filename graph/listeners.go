package graph

import "context"

// NodeEvent is the kind of step notification a listener receives.
type NodeEvent string

const (
	NodeEventStart     NodeEvent = "start"
	NodeEventComplete  NodeEvent = "complete"
	NodeEventError     NodeEvent = "error"
	NodeEventInterrupt NodeEvent = "interrupt" // paused before or after the node
)

// NodeListener observes the steps of a run. It is called synchronously on
// the run's goroutine, so it must not block.
type NodeListener[S any] interface {
	OnNodeEvent(ctx context.Context, event NodeEvent, node string, state S, err error)
}

// NodeListenerFunc adapts a function to NodeListener.
type NodeListenerFunc[S any] func(ctx context.Context, event NodeEvent, node string, state S, err error)

func (f NodeListenerFunc[S]) OnNodeEvent(ctx context.Context, event NodeEvent, node string, state S, err error) {
	f(ctx, event, node, state, err)
}
