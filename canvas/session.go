package canvas

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smallnest/researchcanvas/graph"
	"github.com/smallnest/researchcanvas/log"
	"github.com/smallnest/researchcanvas/models"
	"github.com/smallnest/researchcanvas/store"
)

// Turn is one inbound chat request.
type Turn struct {
	ThreadID string

	// Messages is the history sent by the client. Messages it already sent
	// on earlier turns are recognised and not appended twice.
	Messages []Message

	// Provider is the provider bound to the requesting agent.
	Provider models.Provider

	// Model overrides the provider stored in the conversation when set.
	Model string

	// ToolChoice is "none" to disable tools for this turn.
	ToolChoice string
}

// Result is the outcome of a turn.
type Result struct {
	State AgentState

	// Interrupted is set when the run paused for a resource deletion
	// confirmation; Pending is the call awaiting it.
	Interrupted bool
	Pending     *ToolCall

	// Reply is the last assistant message.
	Reply Message
}

// Runner executes turns against checkpointed threads. Turns on the same
// thread are serialized; different threads run concurrently.
type Runner struct {
	agent    *Agent
	runnable *graph.CheckpointableRunnable[AgentState]
	locks    *threadLocks
}

// NewRunner compiles agent against cs.
func NewRunner(agent *Agent, cs store.CheckpointStore) (*Runner, error) {
	runnable, err := agent.Compile(cs)
	if err != nil {
		return nil, err
	}
	return &Runner{
		agent:    agent,
		runnable: runnable,
		locks:    newThreadLocks(),
	}, nil
}

// Graph returns the step graph.
func (r *Runner) Graph() *graph.StateGraph[AgentState] {
	return r.runnable.Runnable().Graph()
}

// AddListener observes every step of every turn.
func (r *Runner) AddListener(l graph.NodeListener[AgentState]) {
	r.runnable.Runnable().AddListener(l)
}

// Run executes a turn. A new thread is seeded with the request messages; an
// existing thread gets the new messages appended and either starts a fresh
// run or, when it is paused, is resumed with them.
func (r *Runner) Run(ctx context.Context, turn Turn) (*Result, error) {
	// A model override is stored in the thread, so it is checked before
	// anything is checkpointed.
	if turn.Model != "" {
		if _, err := models.Parse(turn.Model); err != nil {
			return nil, err
		}
	}

	unlock := r.locks.lock(turn.ThreadID)
	defer unlock()

	ctx = models.WithProvider(ctx, turn.Provider)
	cfg := graph.WithThreadID(turn.ThreadID)
	cfg.Configurable[ConfigToolChoice] = turn.ToolChoice

	snapshot, err := r.runnable.GetState(ctx, turn.ThreadID)
	if err != nil && !errors.Is(err, store.ErrCheckpointNotFound) {
		return nil, err
	}

	var state AgentState
	var runErr error
	switch {
	case snapshot == nil:
		log.Debug("thread %s: new conversation", turn.ThreadID)
		state, runErr = r.runnable.Invoke(ctx, turn.ThreadID, r.seed(AgentState{}, turn, turn.Messages), cfg)

	case snapshot.Interrupted():
		log.Debug("thread %s: resuming at %v", turn.ThreadID, snapshot.Next)
		state, runErr = r.runnable.Resume(ctx, turn.ThreadID, func(s AgentState) AgentState {
			return r.seed(s, turn, answerPending(s, newMessages(s.Messages, turn.Messages)))
		}, cfg)

	default:
		log.Debug("thread %s: continuing conversation", turn.ThreadID)
		prev := snapshot.Values
		state, runErr = r.runnable.Invoke(ctx, turn.ThreadID, r.seed(prev, turn, newMessages(prev.Messages, turn.Messages)), cfg)
	}

	return r.result(state, runErr)
}

// Resume answers the pending call of a paused thread with content. The
// provider bound to ctx with models.WithProvider, if any, is used for the
// rest of the run.
func (r *Runner) Resume(ctx context.Context, threadID, toolCallID, content string) (*Result, error) {
	unlock := r.locks.lock(threadID)
	defer unlock()

	cfg := graph.WithThreadID(threadID)
	state, err := r.runnable.Resume(ctx, threadID, func(s AgentState) AgentState {
		s = s.Clone()
		if call, ok := s.PendingToolCall(); ok {
			if toolCallID == "" {
				toolCallID = call.ID
			}
			s.Messages = append(s.Messages, Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, Name: call.Name})
		}
		return s
	}, cfg)
	return r.result(state, err)
}

// State returns the latest snapshot of a thread.
func (r *Runner) State(ctx context.Context, threadID string) (*graph.StateSnapshot[AgentState], error) {
	return r.runnable.GetState(ctx, threadID)
}

// History returns every snapshot of a thread.
func (r *Runner) History(ctx context.Context, threadID string) ([]*graph.StateSnapshot[AgentState], error) {
	return r.runnable.History(ctx, threadID)
}

// Update edits the state of a thread outside a turn, for example when the
// user edits the brief in the UI. A paused thread stays paused.
func (r *Runner) Update(ctx context.Context, threadID string, fn func(AgentState) AgentState) (*graph.StateSnapshot[AgentState], error) {
	unlock := r.locks.lock(threadID)
	defer unlock()
	return r.runnable.UpdateState(ctx, threadID, "user", func(s AgentState) AgentState {
		return fn(s.Clone())
	})
}

// Delete forgets a thread.
func (r *Runner) Delete(ctx context.Context, threadID string) error {
	unlock := r.locks.lock(threadID)
	defer unlock()
	return r.runnable.Clear(ctx, threadID)
}

func (r *Runner) seed(s AgentState, turn Turn, incoming []Message) AgentState {
	s = s.Clone()
	s.Messages = append(s.Messages, incoming...)
	if turn.Model != "" {
		s.Model = turn.Model
	}
	return s
}

func (r *Runner) result(state AgentState, err error) (*Result, error) {
	res := &Result{State: state.Normalize()}

	var interrupt *graph.GraphInterrupt
	switch {
	case errors.As(err, &interrupt):
		res.Interrupted = true
		if call, ok := state.PendingToolCall(); ok {
			res.Pending = &call
		}
	case err != nil:
		return nil, fmt.Errorf("turn failed: %w", err)
	}

	if ai, ok := state.LastAIMessage(); ok {
		res.Reply = ai
	}
	return res, nil
}

// newMessages returns the part of incoming that history does not end with.
// Clients resend the whole conversation, so the longest suffix of history
// that is a prefix of incoming is skipped. When nothing overlaps, only the
// messages after the last assistant message of incoming are new. A client
// that resends only its own earlier turns has them matched against the
// user messages of history; at least one message is always kept, so a
// repeated single message is still appended.
func newMessages(history, incoming []Message) []Message {
	for k := min(len(history), len(incoming)); k > 0; k-- {
		if sameMessages(history[len(history)-k:], incoming[:k]) {
			return incoming[k:]
		}
	}
	if len(history) == 0 {
		return incoming
	}
	for i := len(incoming) - 1; i >= 0; i-- {
		if incoming[i].Role == RoleAI {
			return incoming[i+1:]
		}
	}

	var humans []Message
	for _, m := range history {
		if m.Role == RoleHuman {
			humans = append(humans, m)
		}
	}
	for k := min(len(humans), len(incoming)-1); k > 0; k-- {
		if allHuman(incoming[:k]) && sameMessages(humans[len(humans)-k:], incoming[:k]) {
			return incoming[k:]
		}
	}
	return incoming
}

func allHuman(msgs []Message) bool {
	for _, m := range msgs {
		if m.Role != RoleHuman {
			return false
		}
	}
	return true
}

func sameMessages(a, b []Message) bool {
	for i := range a {
		if a[i].Role != b[i].Role || a[i].Content != b[i].Content {
			return false
		}
	}
	return true
}

// answerPending binds a tool result without a known call id to the pending
// call of s, so a client that does not echo ids can still confirm.
func answerPending(s AgentState, incoming []Message) []Message {
	call, ok := s.PendingToolCall()
	if !ok {
		return incoming
	}
	out := append([]Message(nil), incoming...)
	for i := range out {
		if out[i].Role != RoleTool {
			continue
		}
		if out[i].ToolCallID == "" || out[i].ToolCallID == "unknown" || !hasToolCall(s.Messages, out[i].ToolCallID) {
			out[i].ToolCallID = call.ID
			out[i].Name = call.Name
		}
		break
	}
	return out
}

func hasToolCall(history []Message, id string) bool {
	for _, m := range history {
		for _, tc := range m.ToolCalls {
			if tc.ID == id {
				return true
			}
		}
	}
	return false
}

// threadLocks is a reference-counted mutex per thread id.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

func (t *threadLocks) lock(id string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &threadLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}
