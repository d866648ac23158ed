package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sashabaranov/go-openai"
	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/log"
	"github.com/smallnest/researchcanvas/models"
)

// HeaderThreadID carries the conversation thread id on requests and responses.
const HeaderThreadID = "X-Thread-ID"

// DefaultAgent is the agent name assumed when a request names none.
const DefaultAgent = models.ResearchAgent

// CopilotRequest is the body of POST /copilotkit.
type CopilotRequest struct {
	Messages   []openai.ChatCompletionMessage `json:"messages"`
	Agent      string                         `json:"agent,omitempty"`
	Tools      []openai.Tool                  `json:"tools,omitempty"`
	ToolChoice any                            `json:"tool_choice,omitempty"`
	ThreadID   string                         `json:"thread_id,omitempty"`

	// Provider overrides the model provider stored in the conversation.
	Provider string `json:"provider,omitempty"`

	// ToolCallID and Content are set when the client posts a bare tool result.
	ToolCallID *string `json:"tool_call_id,omitempty"`
	Content    *string `json:"content,omitempty"`
}

func (s *Server) copilotKit(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	var req CopilotRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid JSON: " + err.Error()})
	}

	if req.ToolCallID != nil {
		return c.JSON(http.StatusOK, s.toolResultAck(*req.ToolCallID, req.Content))
	}

	messages := convertMessages(req.Messages)
	if len(messages) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No valid messages received"})
	}

	agent := req.Agent
	if agent == "" {
		agent = DefaultAgent
	}
	provider := models.ForAgent(agent, s.defaultProvider)

	threadID := req.ThreadID
	if threadID == "" {
		threadID = c.Request().Header.Get(HeaderThreadID)
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}
	c.Response().Header().Set(HeaderThreadID, threadID)

	log.Debug("copilotkit: agent %s, provider %s, thread %s, %d messages", agent, provider, threadID, len(messages))

	res, err := s.runner.Run(c.Request().Context(), canvas.Turn{
		ThreadID:   threadID,
		Messages:   messages,
		Provider:   provider,
		Model:      req.Provider,
		ToolChoice: toolChoiceString(req.ToolChoice),
	})
	if err != nil {
		return turnError(err)
	}

	model := string(provider)
	if res.State.Model != "" {
		model = res.State.Model
	}
	return c.JSON(http.StatusOK, s.completion("response-"+agent, model, res))
}

// toolResultAck answers a bare tool result without running the agent.
func (s *Server) toolResultAck(toolCallID string, content *string) openai.ChatCompletionResponse {
	result := "No result provided"
	if content != nil {
		result = *content
	}
	return openai.ChatCompletionResponse{
		ID:      "response-" + toolCallID,
		Object:  "chat.completion",
		Created: s.now().Unix(),
		Model:   models.GoogleModel,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: fmt.Sprintf("Here are the search results:\n\n%s\n\nLet me summarize this information for you.", result),
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{},
	}
}

// completion renders a turn result. An interrupted turn answers with the
// call that awaits confirmation.
func (s *Server) completion(id, model string, res *canvas.Result) openai.ChatCompletionResponse {
	msg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: res.Reply.Content,
	}
	finish := openai.FinishReasonStop

	if res.Interrupted && res.Pending != nil {
		msg.ToolCalls = []openai.ToolCall{toOpenAIToolCall(*res.Pending)}
		finish = openai.FinishReasonToolCalls
	}

	return openai.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: s.now().Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: openai.Usage{},
	}
}

// turnError maps a failed turn to an HTTP error.
func turnError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidProvider):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

// toolChoiceString reduces a tool_choice value to "none", "auto",
// "required" or the name of a forced function.
func toolChoiceString(v any) string {
	switch tc := v.(type) {
	case string:
		return tc
	case map[string]any:
		if fn, ok := tc["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				return name
			}
		}
	}
	return ""
}

// convertMessages maps client messages to conversation messages. Messages
// with other roles are dropped.
func convertMessages(in []openai.ChatCompletionMessage) []canvas.Message {
	out := make([]canvas.Message, 0, len(in))
	for _, m := range in {
		content := messageText(m)
		switch m.Role {
		case openai.ChatMessageRoleUser:
			out = append(out, canvas.HumanMessage(content))
		case openai.ChatMessageRoleSystem:
			out = append(out, canvas.SystemMessage(content))
		case openai.ChatMessageRoleAssistant:
			msg := canvas.AIMessage(content)
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, canvas.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			out = append(out, msg)
		case openai.ChatMessageRoleTool:
			id := m.ToolCallID
			if id == "" {
				id = "unknown"
			}
			out = append(out, canvas.Message{Role: canvas.RoleTool, Content: content, ToolCallID: id, Name: m.Name})
		default:
			log.Debug("dropping message with role %q", m.Role)
		}
	}
	return out
}

func messageText(m openai.ChatCompletionMessage) string {
	if m.Content != "" || len(m.MultiContent) == 0 {
		return m.Content
	}
	var parts []string
	for _, p := range m.MultiContent {
		if p.Type == openai.ChatMessagePartTypeText {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func toOpenAIToolCall(tc canvas.ToolCall) openai.ToolCall {
	return openai.ToolCall{
		ID:   tc.ID,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      tc.Name,
			Arguments: tc.Arguments,
		},
	}
}
