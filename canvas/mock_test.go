package canvas

import (
	"context"
	"errors"
	"sync"

	"github.com/smallnest/researchcanvas/models"
	"github.com/smallnest/researchcanvas/tool"
	"github.com/tmc/langchaingo/llms"
)

// MockLLM implements llms.Model for testing. It returns the scripted
// responses in order and records every request.
type MockLLM struct {
	mu        sync.Mutex
	responses []llms.ContentResponse
	err       error
	calls     []mockCall
}

type mockCall struct {
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *MockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.calls = append(m.calls, mockCall{messages: messages, options: opts})

	if m.err != nil {
		return nil, m.err
	}
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		return &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: "No more responses"}},
		}, nil
	}
	resp := m.responses[idx]
	return &resp, nil
}

func (m *MockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func (m *MockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockLLM) call(i int) mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

func textResponse(content string) llms.ContentResponse {
	return llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}
}

func toolResponse(id, name, args string) llms.ContentResponse {
	return llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           id,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

// systemText returns the system prompt of a recorded request.
func (c mockCall) systemText() string {
	if len(c.messages) == 0 || c.messages[0].Role != llms.ChatMessageTypeSystem {
		return ""
	}
	if tp, ok := c.messages[0].Parts[0].(llms.TextContent); ok {
		return tp.Text
	}
	return ""
}

// recordingFactory serves one model and remembers the requested providers.
type recordingFactory struct {
	mu        sync.Mutex
	model     llms.Model
	providers []models.Provider
}

func (f *recordingFactory) Model(_ context.Context, p models.Provider) (llms.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers = append(f.providers, p)
	return f.model, nil
}

type mapFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *mapFetcher) Fetch(_ context.Context, url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if content, ok := f.pages[url]; ok {
		return content
	}
	return tool.FetchError
}

type fakeSearcher struct {
	results map[string][]tool.SearchResult
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, query string) ([]tool.SearchResult, error) {
	s.queries = append(s.queries, query)
	res, ok := s.results[query]
	if !ok {
		return nil, errors.New("search backend down")
	}
	return res, nil
}

type recordingReplicator struct {
	mu        sync.Mutex
	campaigns []Campaign
}

func (r *recordingReplicator) Replicate(c Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns = append(r.campaigns, c)
}
