package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/models"
	"github.com/smallnest/researchcanvas/store/memory"
	"github.com/smallnest/researchcanvas/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedLLM returns canned responses in order.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []llms.ContentResponse
	calls     int
}

func (m *scriptedLLM) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	m.calls++
	if idx >= len(m.responses) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "No more responses"}}}, nil
	}
	resp := m.responses[idx]
	return &resp, nil
}

func (m *scriptedLLM) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}

func text(content string) llms.ContentResponse {
	return llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}
}

func toolCall(id, name, args string) llms.ContentResponse {
	return llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{ID: id, Type: "function", FunctionCall: &llms.FunctionCall{Name: name, Arguments: args}}},
	}}}
}

type staticFetcher map[string]string

func (f staticFetcher) Fetch(_ context.Context, url string) string {
	if content, ok := f[url]; ok {
		return content
	}
	return tool.FetchError
}

type testServer struct {
	*Server
	metrics *Metrics
	runner  *canvas.Runner
}

func newTestServer(t *testing.T, responses ...llms.ContentResponse) *testServer {
	t.Helper()
	metrics := NewMetrics()
	agent, err := canvas.New(canvas.Options{
		Models:     models.Static{M: &scriptedLLM{responses: responses}},
		Fetcher:    staticFetcher{"https://a": "A text", "https://b": "B text"},
		OnToolCall: metrics.ToolCall,
	})
	require.NoError(t, err)
	runner, err := canvas.NewRunner(agent, memory.NewMemoryCheckpointStore())
	require.NoError(t, err)

	srv, err := New(Options{Runner: runner, Metrics: metrics})
	require.NoError(t, err)
	return &testServer{Server: srv, metrics: metrics, runner: runner}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeCompletion(t *testing.T, rec *httptest.ResponseRecorder) openai.ChatCompletionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCopilotKitCreatesCampaign(t *testing.T) {
	ts := newTestServer(t,
		toolCall("call-1", canvas.ToolCreateCampaign, `{"title":"Summer Sale"}`),
		text("Your Summer Sale campaign is ready."),
	)

	rec := ts.do(t, http.MethodPost, "/copilotkit",
		`{"messages":[{"role":"user","content":"Create a campaign called Summer Sale"}],"agent":"research_agent","thread_id":"t1"}`)
	resp := decodeCompletion(t, rec)

	assert.Equal(t, "t1", rec.Header().Get(HeaderThreadID))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "response-research_agent", resp.ID)
	assert.Equal(t, openai.FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, "Your Summer Sale campaign is ready.", resp.Choices[0].Message.Content)

	rec = ts.do(t, http.MethodGet, "/threads/t1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state ThreadState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Len(t, state.Values.Campaigns, 1)
	assert.Equal(t, "Summer Sale", state.Values.Campaigns[0].Title)
	assert.Equal(t, canvas.StatusDraft, state.Values.Campaigns[0].Status)
	assert.False(t, state.Interrupted)
}

func TestCopilotKitToolResultAck(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/copilotkit", `{"tool_call_id":"abc","content":"three results"}`)
	resp := decodeCompletion(t, rec)

	assert.Equal(t, "response-abc", resp.ID)
	assert.Equal(t, "Here are the search results:\n\nthree results\n\nLet me summarize this information for you.", resp.Choices[0].Message.Content)
	assert.Equal(t, openai.FinishReasonStop, resp.Choices[0].FinishReason)

	rec = ts.do(t, http.MethodPost, "/copilotkit", `{"tool_call_id":"abc"}`)
	resp = decodeCompletion(t, rec)
	assert.Contains(t, resp.Choices[0].Message.Content, "No result provided")
}

func TestCopilotKitBadRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/copilotkit", `{"messages":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid JSON")

	rec = ts.do(t, http.MethodPost, "/copilotkit", `{"messages":[{"role":"function","content":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No valid messages received"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/copilotkit", `{"messages":[{"role":"user","content":"hi"}],"provider":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid model")
}

func TestCopilotKitInvalidProviderKeepsThreadUsable(t *testing.T) {
	ts := newTestServer(t, text("hello"))

	rec := ts.do(t, http.MethodPost, "/copilotkit", `{"thread_id":"t1","provider":"bogus","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/threads/t1/state", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/copilotkit", `{"thread_id":"t1","messages":[{"role":"user","content":"hi"}]}`)
	resp := decodeCompletion(t, rec)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
}

func TestCopilotKitThreadIDFromHeader(t *testing.T) {
	ts := newTestServer(t, text("hello"))

	rec := ts.do(t, http.MethodPost, "/copilotkit", `{"messages":[{"role":"user","content":"hi"}]}`, HeaderThreadID, "from-header")
	decodeCompletion(t, rec)
	assert.Equal(t, "from-header", rec.Header().Get(HeaderThreadID))

	rec = ts.do(t, http.MethodPost, "/copilotkit", `{"messages":[{"role":"user","content":"hi"}]}`)
	decodeCompletion(t, rec)
	assert.NotEmpty(t, rec.Header().Get(HeaderThreadID))
}

func TestCopilotKitDeleteFlow(t *testing.T) {
	ts := newTestServer(t,
		toolCall("del-1", canvas.ToolDeleteResources, `{"urls":["https://a"]}`),
		text("Resource removed."),
	)
	rec := ts.do(t, http.MethodPut, "/threads/t1/state",
		`{"resources":[{"url":"https://a","title":"A"},{"url":"https://b","title":"B"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/copilotkit",
		`{"messages":[{"role":"user","content":"remove A"}],"thread_id":"t1"}`)
	resp := decodeCompletion(t, rec)

	require.Equal(t, openai.FinishReasonToolCalls, resp.Choices[0].FinishReason)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	call := resp.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "del-1", call.ID)
	assert.Equal(t, canvas.ToolDeleteResources, call.Function.Name)

	rec = ts.do(t, http.MethodGet, "/threads/t1/state", "")
	var state ThreadState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Interrupted)
	assert.Equal(t, []string{canvas.NodePerformDelete}, state.Next)

	rec = ts.do(t, http.MethodPost, "/copilotkit",
		`{"messages":[{"role":"user","content":"remove A"},{"role":"assistant","content":"","tool_calls":[{"id":"del-1","type":"function","function":{"name":"DeleteResources","arguments":"{\"urls\":[\"https://a\"]}"}}]},{"role":"tool","tool_call_id":"del-1","content":"YES"}],"thread_id":"t1"}`)
	resp = decodeCompletion(t, rec)
	assert.Equal(t, "Resource removed.", resp.Choices[0].Message.Content)

	rec = ts.do(t, http.MethodGet, "/threads/t1/state", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, []canvas.Resource{{URL: "https://b", Title: "B"}}, state.Values.Resources)
	assert.False(t, state.Interrupted)
}

func TestResumeEndpoint(t *testing.T) {
	ts := newTestServer(t,
		toolCall("del-1", canvas.ToolDeleteResources, `{"urls":["https://a"]}`),
		text("Kept everything."),
	)
	ts.do(t, http.MethodPut, "/threads/t1/state", `{"resources":[{"url":"https://a","title":"A"}]}`)
	ts.do(t, http.MethodPost, "/copilotkit", `{"messages":[{"role":"user","content":"remove A"}],"thread_id":"t1"}`)

	rec := ts.do(t, http.MethodPost, "/threads/t1/resume", `{"content":"NO"}`)
	resp := decodeCompletion(t, rec)
	assert.Equal(t, "Kept everything.", resp.Choices[0].Message.Content)

	rec = ts.do(t, http.MethodPost, "/threads/t1/resume", `{"content":"YES"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/threads/unknown/resume", `{"content":"YES"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThreadStateEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/threads/none/state", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"thread not found"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/threads/t1/state", `{"campaign_brief":"Sell sunscreen","model":"anthropic"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var state ThreadState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "Sell sunscreen", state.Values.CampaignBrief)
	assert.Equal(t, "anthropic", state.Values.Model)

	rec = ts.do(t, http.MethodPut, "/threads/t1/state", `{"model":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/threads/t1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []ThreadState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 1)

	rec = ts.do(t, http.MethodDelete, "/threads/t1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/threads/t1/state", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportEndpoint(t *testing.T) {
	ts := newTestServer(t)
	report := "# Summer Sale\n\nVisit [our shop](https://shop.example).\n\n<script>alert(1)</script>"
	body, err := json.Marshal(StateUpdate{Report: &report})
	require.NoError(t, err)
	ts.do(t, http.MethodPut, "/threads/t1/state", string(body))

	rec := ts.do(t, http.MethodGet, "/threads/t1/report", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/threads/t1/report?format=html", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "Summer Sale")
	assert.Contains(t, html, `href="https://shop.example"`)
	assert.NotContains(t, html, "<script>")

	rec = ts.do(t, http.MethodGet, "/threads/t1/report?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "flowchart TD"))
	for _, node := range []string{canvas.NodeDownload, canvas.NodeChat, canvas.NodeSearch, canvas.NodeDelete, canvas.NodePerformDelete} {
		assert.Contains(t, body, node)
	}

	rec = ts.do(t, http.MethodGet, "/graph?format=dot", "")
	assert.Contains(t, rec.Body.String(), "digraph G {")

	rec = ts.do(t, http.MethodGet, "/graph?format=svg", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t,
		toolCall("w1", canvas.ToolWriteCampaignBrief, `{"campaign_brief":"b"}`),
		text("done"),
	)
	ts.do(t, http.MethodPost, "/copilotkit", `{"messages":[{"role":"user","content":"brief"}],"thread_id":"t1"}`)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `canvas_tool_calls_total{tool="WriteCampaignBrief"} 1`)
	assert.Contains(t, body, `canvas_graph_steps_total{node="chat_node"} 2`)
	assert.Contains(t, body, `canvas_http_requests_total{method="POST",path="/copilotkit",status="200"} 1`)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/copilotkit", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestConvertMessages(t *testing.T) {
	in := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "sys"},
		{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: "part one"},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "https://img"}},
			{Type: openai.ChatMessagePartTypeText, Text: "part two"},
		}},
		{Role: openai.ChatMessageRoleAssistant, ToolCalls: []openai.ToolCall{{
			ID: "c1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "Search", Arguments: `{}`},
		}}},
		{Role: openai.ChatMessageRoleTool, Content: "result"},
		{Role: "developer", Content: "dropped"},
	}

	out := convertMessages(in)
	require.Len(t, out, 4)
	assert.Equal(t, canvas.SystemMessage("sys"), out[0])
	assert.Equal(t, canvas.HumanMessage("part one\npart two"), out[1])
	assert.Equal(t, []canvas.ToolCall{{ID: "c1", Name: "Search", Arguments: `{}`}}, out[2].ToolCalls)
	assert.Equal(t, "unknown", out[3].ToolCallID)
}

func TestToolChoiceString(t *testing.T) {
	assert.Equal(t, "none", toolChoiceString("none"))
	assert.Equal(t, "Search", toolChoiceString(map[string]any{"type": "function", "function": map[string]any{"name": "Search"}}))
	assert.Equal(t, "", toolChoiceString(nil))
}
