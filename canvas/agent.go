package canvas

import (
	"context"
	"errors"
	"time"

	"github.com/smallnest/researchcanvas/graph"
	"github.com/smallnest/researchcanvas/models"
	"github.com/smallnest/researchcanvas/store"
	"github.com/smallnest/researchcanvas/tool"
)

// Step names.
const (
	NodeDownload      = "download"
	NodeChat          = "chat_node"
	NodeSearch        = "search_node"
	NodeDelete        = "delete_node"
	NodePerformDelete = "perform_delete_node"
)

// ConfigToolChoice is the graph.Config key holding the caller's tool_choice.
const ConfigToolChoice = "tool_choice"

// DefaultMaxToolRounds bounds consecutive tool calls answered without a new
// user message.
const DefaultMaxToolRounds = 10

// Fetcher downloads resource text, returning tool.FetchError on failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) string
}

// Replicator copies a newly created campaign to the external campaign service.
// It must not block and must not fail the turn.
type Replicator interface {
	Replicate(c Campaign)
}

type noopReplicator struct{}

func (noopReplicator) Replicate(Campaign) {}

// Options configures an Agent.
type Options struct {
	// Models builds the chat model for the resolved provider. Required.
	Models models.ModelFactory

	// EnvModel is the MODEL environment default used by provider resolution.
	EnvModel string

	Fetcher    Fetcher
	Searcher   tool.Searcher
	Replicator Replicator
	Cache      *ContentCache

	// MaxToolRounds defaults to DefaultMaxToolRounds.
	MaxToolRounds int

	// OnToolCall is invoked with the name of every dispatched tool call.
	OnToolCall func(name string)

	// Now defaults to time.Now.
	Now func() time.Time
}

// Agent implements the steps of the canvas conversation.
type Agent struct {
	models        models.ModelFactory
	envModel      string
	fetcher       Fetcher
	searcher      tool.Searcher
	replicator    Replicator
	cache         *ContentCache
	maxToolRounds int
	onToolCall    func(string)
	now           func() time.Time
}

// New creates an Agent.
func New(opts Options) (*Agent, error) {
	if opts.Models == nil {
		return nil, errors.New("canvas: model factory is required")
	}

	a := &Agent{
		models:        opts.Models,
		envModel:      opts.EnvModel,
		fetcher:       opts.Fetcher,
		searcher:      opts.Searcher,
		replicator:    opts.Replicator,
		cache:         opts.Cache,
		maxToolRounds: opts.MaxToolRounds,
		onToolCall:    opts.OnToolCall,
		now:           opts.Now,
	}
	if a.fetcher == nil {
		a.fetcher = tool.NewResourceFetcher(tool.DefaultFetchTimeout)
	}
	if a.replicator == nil {
		a.replicator = noopReplicator{}
	}
	if a.cache == nil {
		a.cache = NewContentCache()
	}
	if a.maxToolRounds <= 0 {
		a.maxToolRounds = DefaultMaxToolRounds
	}
	if a.onToolCall == nil {
		a.onToolCall = func(string) {}
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// isolated gives each step its own copy of the state so that slices are
// never shared with the caller or an earlier checkpoint.
func isolated(fn graph.NodeFunc[AgentState]) graph.NodeFunc[AgentState] {
	return func(ctx context.Context, state AgentState) (AgentState, error) {
		return fn(ctx, state.Clone())
	}
}

// Graph builds the step graph:
//
//	download -> chat_node
//	chat_node -> chat_node | search_node | delete_node | END
//	search_node -> download
//	delete_node -> perform_delete_node -> chat_node
func (a *Agent) Graph() *graph.StateGraph[AgentState] {
	g := graph.NewStateGraph[AgentState]()

	g.AddNode(NodeDownload, "Download resource content", isolated(a.download))
	g.AddCommandNode(NodeChat, "Chat with the model and dispatch its tool call",
		func(ctx context.Context, state AgentState) (*graph.Command[AgentState], error) {
			return a.chat(ctx, state.Clone())
		},
		NodeChat, NodeSearch, NodeDelete, graph.END)
	g.AddNode(NodeSearch, "Search the web for resources", isolated(a.search))
	g.AddNode(NodeDelete, "Wait for resource deletion confirmation", isolated(a.confirmDelete))
	g.AddNode(NodePerformDelete, "Delete confirmed resources", isolated(a.performDelete))

	g.SetEntryPoint(NodeDownload)
	g.AddEdge(NodeDownload, NodeChat)
	g.AddEdge(NodeSearch, NodeDownload)
	g.AddEdge(NodeDelete, NodePerformDelete)
	g.AddEdge(NodePerformDelete, NodeChat)

	return g
}

// Compile compiles the step graph with checkpointing into cs. The run pauses
// after delete_node until resumed.
func (a *Agent) Compile(cs store.CheckpointStore) (*graph.CheckpointableRunnable[AgentState], error) {
	runnable, err := a.Graph().Compile()
	if err != nil {
		return nil, err
	}
	return graph.NewCheckpointableRunnable(runnable, graph.CheckpointConfig{
		Store:          cs,
		InterruptAfter: []string{NodeDelete},
	}), nil
}

// toolChoice returns the tool_choice of the running invocation.
func toolChoice(ctx context.Context) string {
	v, _ := graph.GetConfig(ctx).Get(ConfigToolChoice)
	s, _ := v.(string)
	return s
}
