package canvas

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/researchcanvas/graph"
	"github.com/smallnest/researchcanvas/models"
	"github.com/smallnest/researchcanvas/store"
	"github.com/smallnest/researchcanvas/store/memory"
	"github.com/smallnest/researchcanvas/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newTestRunner(t *testing.T, llm *MockLLM, opts ...func(*Options)) *Runner {
	t.Helper()
	a, _ := newTestAgent(t, llm, opts...)
	r, err := NewRunner(a, memory.NewMemoryCheckpointStore())
	require.NoError(t, err)
	return r
}

func withResources(t *testing.T, r *Runner, threadID string, resources ...Resource) {
	t.Helper()
	_, err := r.Update(context.Background(), threadID, func(s AgentState) AgentState {
		s.Resources = append(s.Resources, resources...)
		return s
	})
	require.NoError(t, err)
}

func TestRunCreatesCampaign(t *testing.T) {
	llm := &MockLLM{responses: []llms.ContentResponse{
		toolResponse("call-1", ToolCreateCampaign, `{"title":"Summer Sale"}`),
		textResponse("Your Summer Sale campaign is ready."),
		textResponse("You're welcome!"),
	}}
	replicator := &recordingReplicator{}
	r := newTestRunner(t, llm, func(o *Options) { o.Replicator = replicator })
	ctx := context.Background()

	res, err := r.Run(ctx, Turn{
		ThreadID: "t1",
		Messages: []Message{HumanMessage("Create a campaign called Summer Sale")},
		Provider: models.OpenAI,
	})
	require.NoError(t, err)

	assert.False(t, res.Interrupted)
	assert.Equal(t, "Your Summer Sale campaign is ready.", res.Reply.Content)
	require.Len(t, res.State.Campaigns, 1)
	assert.Equal(t, "Summer Sale", res.State.Campaigns[0].Title)
	assert.Equal(t, StatusDraft, res.State.Campaigns[0].Status)
	require.Len(t, res.State.Messages, 4)
	assert.Equal(t, "New campaign 'Summer Sale' created successfully.", res.State.Messages[2].Content)
	assert.Len(t, replicator.campaigns, 1)

	// The client resends the whole conversation with a new message.
	history := append(append([]Message(nil), res.State.Messages...), HumanMessage("thanks"))
	res, err = r.Run(ctx, Turn{ThreadID: "t1", Messages: history, Provider: models.OpenAI})
	require.NoError(t, err)

	require.Len(t, res.State.Messages, 6)
	assert.Equal(t, "thanks", res.State.Messages[4].Content)
	assert.Equal(t, "You're welcome!", res.Reply.Content)
	assert.Len(t, res.State.Campaigns, 1)

	snap, err := r.State(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, snap.Interrupted())
	assert.Len(t, snap.Values.Messages, len(res.State.Messages))
}

func deleteFlow(t *testing.T) (*Runner, *Result) {
	t.Helper()
	llm := &MockLLM{responses: []llms.ContentResponse{
		toolResponse("del-1", ToolDeleteResources, `{"urls":["https://a"]}`),
		textResponse("Done."),
	}}
	fetcher := &mapFetcher{pages: map[string]string{"https://a": "A text", "https://b": "B text"}}
	r := newTestRunner(t, llm, func(o *Options) { o.Fetcher = fetcher })
	withResources(t, r, "t1",
		Resource{URL: "https://a", Title: "A"},
		Resource{URL: "https://b", Title: "B"},
	)

	res, err := r.Run(context.Background(), Turn{
		ThreadID: "t1",
		Messages: []Message{HumanMessage("remove resource A")},
	})
	require.NoError(t, err)
	require.True(t, res.Interrupted)
	require.NotNil(t, res.Pending)
	assert.Equal(t, "del-1", res.Pending.ID)
	assert.Equal(t, ToolDeleteResources, res.Pending.Name)
	assert.Len(t, res.State.Resources, 2)

	snap, err := r.State(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{NodePerformDelete}, snap.Next)

	return r, res
}

func TestDeleteResourcesConfirmed(t *testing.T) {
	r, _ := deleteFlow(t)

	res, err := r.Resume(context.Background(), "t1", "del-1", "YES")
	require.NoError(t, err)

	assert.False(t, res.Interrupted)
	assert.Equal(t, []Resource{{URL: "https://b", Title: "B"}}, res.State.Resources)
	assert.Equal(t, "Done.", res.Reply.Content)
}

func TestDeleteResourcesDeclined(t *testing.T) {
	r, _ := deleteFlow(t)

	res, err := r.Resume(context.Background(), "t1", "", "no")
	require.NoError(t, err)

	assert.Len(t, res.State.Resources, 2)
	msgs := res.State.Messages
	answer := msgs[len(msgs)-2]
	assert.Equal(t, RoleTool, answer.Role)
	assert.Equal(t, "del-1", answer.ToolCallID)
	assert.Equal(t, "no", answer.Content)
}

func TestDeleteConfirmedThroughRun(t *testing.T) {
	r, first := deleteFlow(t)

	history := append(append([]Message(nil), first.State.Messages...),
		Message{Role: RoleTool, Content: "YES", ToolCallID: "unknown"})
	res, err := r.Run(context.Background(), Turn{ThreadID: "t1", Messages: history})
	require.NoError(t, err)

	assert.Equal(t, []Resource{{URL: "https://b", Title: "B"}}, res.State.Resources)
}

func TestDeleteCancelledByNewMessage(t *testing.T) {
	r, _ := deleteFlow(t)

	res, err := r.Run(context.Background(), Turn{
		ThreadID: "t1",
		Messages: []Message{HumanMessage("never mind")},
	})
	require.NoError(t, err)

	assert.Len(t, res.State.Resources, 2)
	msgs := res.State.Messages
	var callIdx int
	for i, m := range msgs {
		if len(m.ToolCalls) > 0 && m.ToolCalls[0].ID == "del-1" {
			callIdx = i
		}
	}
	require.Greater(t, len(msgs), callIdx+2)
	assert.Equal(t, ToolMessage(ToolCall{ID: "del-1", Name: ToolDeleteResources}, msgDeletionCancelled), msgs[callIdx+1])
	assert.Equal(t, "never mind", msgs[callIdx+2].Content)
}

func TestResumeWithoutInterrupt(t *testing.T) {
	r := newTestRunner(t, &MockLLM{responses: []llms.ContentResponse{textResponse("hi")}})
	_, err := r.Run(context.Background(), Turn{ThreadID: "t1", Messages: []Message{HumanMessage("hello")}})
	require.NoError(t, err)

	_, err = r.Resume(context.Background(), "t1", "", "YES")
	assert.ErrorIs(t, err, graph.ErrNotInterrupted)
}

func TestRunSearch(t *testing.T) {
	llm := &MockLLM{responses: []llms.ContentResponse{
		toolResponse("s1", ToolSearch, `{"queries":["sunscreen trends","beach ads"]}`),
		toolResponse("x1", ToolExtractResources,
			`{"resources":[{"url":"https://a","title":"Sunscreen 2024","description":"Trends"}]}`),
		textResponse("I found a useful article."),
	}}
	searcher := &fakeSearcher{results: map[string][]tool.SearchResult{
		"sunscreen trends": {{Title: "Sunscreen 2024", URL: "https://a", Description: "Trends"}},
	}}
	fetcher := &mapFetcher{pages: map[string]string{"https://a": "article body"}}
	r := newTestRunner(t, llm, func(o *Options) {
		o.Searcher = searcher
		o.Fetcher = fetcher
	})

	res, err := r.Run(context.Background(), Turn{ThreadID: "t1", Messages: []Message{HumanMessage("research sunscreen")}})
	require.NoError(t, err)

	assert.Equal(t, []string{"sunscreen trends", "beach ads"}, searcher.queries)
	assert.Equal(t, []Resource{{URL: "https://a", Title: "Sunscreen 2024", Description: "Trends"}}, res.State.Resources)
	assert.Equal(t, []Log{{Message: "Downloading https://a", Done: true}}, res.State.Logs)
	assert.Equal(t, []string{"https://a"}, fetcher.fetched)

	var toolResult Message
	for _, m := range res.State.Messages {
		if m.ToolCallID == "s1" {
			toolResult = m
		}
	}
	assert.Contains(t, toolResult.Content, "[Sunscreen 2024](https://a): Trends")

	extract := llm.call(1)
	require.Len(t, extract.options.Tools, 1)
	assert.Equal(t, ToolExtractResources, extract.options.Tools[0].Function.Name)
	assert.Contains(t, llm.call(2).systemText(), "article body")
	assert.Equal(t, "I found a useful article.", res.Reply.Content)
}

func TestRunSearchWithoutResults(t *testing.T) {
	llm := &MockLLM{responses: []llms.ContentResponse{
		toolResponse("s1", ToolSearch, `{"queries":["nothing"]}`),
		textResponse("Nothing found."),
	}}
	r := newTestRunner(t, llm, func(o *Options) { o.Searcher = &fakeSearcher{} })

	res, err := r.Run(context.Background(), Turn{ThreadID: "t1", Messages: []Message{HumanMessage("search")}})
	require.NoError(t, err)

	assert.Empty(t, res.State.Resources)
	assert.Equal(t, msgNoSearchResults, res.State.Messages[2].Content)
	assert.Equal(t, 2, llm.callCount())
}

func TestRunInvalidProvider(t *testing.T) {
	llm := &MockLLM{}
	r := newTestRunner(t, llm)

	_, err := r.Run(context.Background(), Turn{
		ThreadID: "t1",
		Messages: []Message{HumanMessage("hi")},
		Model:    "bogus",
	})
	assert.ErrorIs(t, err, models.ErrInvalidProvider)
	assert.Equal(t, 0, llm.callCount())

	// Nothing was stored, so the thread still works without the override.
	_, err = r.State(context.Background(), "t1")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)

	res, err := r.Run(context.Background(), Turn{
		ThreadID: "t1",
		Messages: []Message{HumanMessage("hi")},
	})
	require.NoError(t, err)
	assert.Empty(t, res.State.Model)
	assert.Equal(t, 1, llm.callCount())
}

func TestRunToolChoiceNone(t *testing.T) {
	llm := &MockLLM{responses: []llms.ContentResponse{textResponse("plain")}}
	r := newTestRunner(t, llm)

	_, err := r.Run(context.Background(), Turn{ThreadID: "t1", Messages: []Message{HumanMessage("hi")}, ToolChoice: "none"})
	require.NoError(t, err)
	assert.Empty(t, llm.call(0).options.Tools)
}

func TestUpdateAndDelete(t *testing.T) {
	r := newTestRunner(t, &MockLLM{})
	ctx := context.Background()

	snap, err := r.Update(ctx, "t1", func(s AgentState) AgentState {
		s.CampaignBrief = "edited in the UI"
		return s
	})
	require.NoError(t, err)
	assert.Equal(t, "edited in the UI", snap.Values.CampaignBrief)
	assert.Equal(t, "user", snap.NodeName)

	history, err := r.History(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.NoError(t, r.Delete(ctx, "t1"))
	_, err = r.State(ctx, "t1")
	assert.Error(t, err)
}

func TestNewMessages(t *testing.T) {
	h1, a1, h2 := HumanMessage("one"), AIMessage("reply"), HumanMessage("two")

	tests := []struct {
		name     string
		history  []Message
		incoming []Message
		want     []Message
	}{
		{"EmptyHistory", nil, []Message{h1}, []Message{h1}},
		{"FullResend", []Message{h1, a1}, []Message{h1, a1, h2}, []Message{h2}},
		{"OnlyNew", []Message{h1, a1}, []Message{h2}, []Message{h2}},
		{"Duplicate", []Message{h1, a1}, []Message{h1, a1}, []Message{}},
		{"TrimmedHistory", []Message{h1, a1, h2, a1}, []Message{a1, HumanMessage("three")}, []Message{HumanMessage("three")}},
		{"ResentUserTurns", []Message{h1, a1}, []Message{h1, h2}, []Message{h2}},
		{"ResentUserWindow", []Message{h1, a1, h2, a1}, []Message{h2, HumanMessage("three")}, []Message{HumanMessage("three")}},
		{"RepeatedMessage", []Message{h1, a1}, []Message{h1}, []Message{h1}},
		{"ToolAnswer", []Message{h1, a1}, []Message{{Role: RoleTool, Content: "YES"}}, []Message{{Role: RoleTool, Content: "YES"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newMessages(tt.history, tt.incoming))
		})
	}
}

func TestThreadLocksSerializeSameThread(t *testing.T) {
	locks := newThreadLocks()
	var mu sync.Mutex
	active, peak := 0, 0

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("same")
			defer unlock()

			mu.Lock()
			active++
			peak = max(peak, active)
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}

func TestThreadLocksIndependentThreads(t *testing.T) {
	locks := newThreadLocks()
	unlockA := locks.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another thread blocked")
	}
}
