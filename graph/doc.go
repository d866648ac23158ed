// Package graph is a small typed state machine engine.
//
// A StateGraph[S] holds named nodes over a state type S. Nodes either return
// the new state and follow their static or conditional edges, or return a
// Command that carries the new state together with the name of the next node.
// Execution is sequential: exactly one node runs per step until END.
//
// # Interrupts and checkpoints
//
// Config.InterruptBefore and Config.InterruptAfter pause a run around the
// named nodes and return a *GraphInterrupt. CheckpointableRunnable persists
// the state and the pending node after every step in a store.CheckpointStore,
// keyed by thread id, so a paused thread continues later with Resume:
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("draft", "Draft a change", draft)
//	g.AddNode("apply", "Apply the change", apply)
//	g.SetEntryPoint("draft")
//	g.AddEdge("draft", "apply")
//	g.AddEdge("apply", graph.END)
//
//	runnable, _ := g.Compile()
//	cr := graph.NewCheckpointableRunnable(runnable, graph.CheckpointConfig{
//		Store:          memory.NewMemoryCheckpointStore(),
//		InterruptAfter: []string{"draft"},
//	})
//
//	_, err := cr.Invoke(ctx, "thread-1", MyState{}, nil) // stops after draft
//	if graph.IsInterrupt(err) {
//		state, err = cr.Resume(ctx, "thread-1", approve, nil)
//	}
//
// # Visualization
//
// Exporter renders the topology as Mermaid, DOT or plain text. Command
// destinations declared with AddCommandNode are drawn as dashed edges.
package graph
