package canvas

import (
	"github.com/smallnest/researchcanvas/log"
	"github.com/tmc/langchaingo/llms"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// HumanMessage returns a user message.
func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// AIMessage returns an assistant message without tool calls.
func AIMessage(content string) Message {
	return Message{Role: RoleAI, Content: content}
}

// SystemMessage returns a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ToolMessage returns the result of call.
func ToolMessage(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

// Resource is a reference document. Identity is the URL.
type Resource struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Campaign statuses.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusScheduled = "scheduled"
)

// Campaign is a marketing campaign in the user's workspace.
type Campaign struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Brief     string `json:"brief"`
	CreatedAt string `json:"createdAt"`
}

// Log records an action taken by the agent.
type Log struct {
	Message string `json:"message"`
	Done    bool   `json:"done"`
}

// AgentState is the conversation state carried through the step graph and
// checkpointed between turns.
type AgentState struct {
	Messages      []Message  `json:"messages"`
	Model         string     `json:"model"`
	CampaignBrief string     `json:"campaign_brief"`
	Report        string     `json:"report"`
	Resources     []Resource `json:"resources"`
	Logs          []Log      `json:"logs"`
	Campaigns     []Campaign `json:"campaigns"`
}

// Normalize replaces nil collections with empty ones.
func (s AgentState) Normalize() AgentState {
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.Resources == nil {
		s.Resources = []Resource{}
	}
	if s.Logs == nil {
		s.Logs = []Log{}
	}
	if s.Campaigns == nil {
		s.Campaigns = []Campaign{}
	}
	return s
}

// Clone returns a deep copy of the state.
func (s AgentState) Clone() AgentState {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		out.Messages[i] = m
	}
	out.Resources = append([]Resource(nil), s.Resources...)
	out.Logs = append([]Log(nil), s.Logs...)
	out.Campaigns = append([]Campaign(nil), s.Campaigns...)
	return out.Normalize()
}

// LastAIMessage returns the most recent assistant message.
func (s AgentState) LastAIMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAI {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// PendingToolCall returns the tool call of the last assistant message when
// no tool result answers it yet.
func (s AgentState) PendingToolCall() (ToolCall, bool) {
	idx := -1
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAI {
			idx = i
			break
		}
	}
	if idx < 0 || len(s.Messages[idx].ToolCalls) == 0 {
		return ToolCall{}, false
	}
	call := s.Messages[idx].ToolCalls[0]
	for _, m := range s.Messages[idx+1:] {
		if m.Role == RoleTool && m.ToolCallID == call.ID {
			return ToolCall{}, false
		}
	}
	return call, true
}

// HasResource reports whether a resource with url is present.
func (s AgentState) HasResource(url string) bool {
	for _, r := range s.Resources {
		if r.URL == url {
			return true
		}
	}
	return false
}

// toModelMessages converts the history into langchaingo messages. Tool
// results that do not answer an earlier tool call are dropped since every
// provider rejects them.
func toModelMessages(history []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history))
	issued := make(map[string]bool)

	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleHuman:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAI:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" || len(m.ToolCalls) == 0 {
				msg.Parts = append(msg.Parts, llms.TextPart(m.Content))
			}
			for _, tc := range m.ToolCalls {
				issued[tc.ID] = true
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, msg)
		case RoleTool:
			if !issued[m.ToolCallID] {
				log.Debug("dropping tool result %q without a matching tool call", m.ToolCallID)
				continue
			}
			delete(issued, m.ToolCallID)
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: m.ToolCallID,
						Name:       m.Name,
						Content:    m.Content,
					},
				},
			})
		}
	}
	return out
}
