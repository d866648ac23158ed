// Package canvas implements the research canvas agent: a campaign planning
// assistant that chats with a language model, keeps a list of reference
// resources and a campaign brief, and maintains the user's campaigns.
//
// A turn runs the step graph built by Agent.Graph:
//
//	download -> chat_node
//	chat_node -> chat_node | search_node | delete_node | END
//	search_node -> download
//	delete_node -> perform_delete_node -> chat_node
//
// chat_node calls the model with the tool catalog and acts on the first tool
// call it returns. Each call is decoded into an Effect and applied by a type
// switch. Requests to remove resources pause the run after delete_node until
// the user confirms, so a turn either ends or is left interrupted in its
// checkpoint.
//
// Runner ties the graph to a checkpoint store and serializes turns per thread:
//
//	agent, _ := canvas.New(canvas.Options{Models: factory, Searcher: brave})
//	runner, _ := canvas.NewRunner(agent, memory.NewMemoryCheckpointStore())
//	res, err := runner.Run(ctx, canvas.Turn{
//		ThreadID: "thread-1",
//		Messages: []canvas.Message{canvas.HumanMessage("Plan a summer sale")},
//	})
//	if res.Interrupted {
//		res, err = runner.Resume(ctx, "thread-1", res.Pending.ID, "YES")
//	}
package canvas
