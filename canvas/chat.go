package canvas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/researchcanvas/graph"
	"github.com/smallnest/researchcanvas/log"
	"github.com/smallnest/researchcanvas/models"
	"github.com/tmc/langchaingo/llms"
)

// Tool results written by the dispatcher.
const (
	msgDraftWritten     = "Campaign draft written."
	msgBriefWritten     = "Campaign brief written."
	msgCampaignCreated  = "New campaign '%s' created successfully."
	msgCampaignDeleted  = "Campaign '%s' deleted successfully."
	msgCannotDelete     = "Cannot delete campaign. Either the campaign was not found or the confirmation title doesn't match."
	msgUnknownTool      = "Unknown tool"
	msgInvalidArguments = "Invalid arguments"
	msgTooManyRounds    = "I've made several updates in a row. Let me know how you'd like to continue."
)

// chat asks the model for the next move and applies the first tool call it makes.
func (a *Agent) chat(ctx context.Context, state AgentState) (*graph.Command[AgentState], error) {
	if toolRoundsSinceHuman(state.Messages) >= a.maxToolRounds {
		log.Warn("tool call limit of %d reached, ending turn", a.maxToolRounds)
		state.Messages = append(state.Messages, AIMessage(msgTooManyRounds))
		return &graph.Command[AgentState]{Update: state, Goto: graph.END}, nil
	}

	resources := a.annotate(ctx, state.Resources)

	provider, err := models.Resolve(state.Model, string(models.ProviderFromContext(ctx)), a.envModel)
	if err != nil {
		return nil, err
	}
	model, err := a.models.Model(ctx, provider)
	if err != nil {
		return nil, err
	}

	messages := append([]llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt(state, resources)),
	}, toModelMessages(state.Messages)...)

	opts := []llms.CallOption{llms.WithTemperature(0)}
	if choice := toolChoice(ctx); choice != "none" {
		opts = append(opts, llms.WithTools(Catalog()))
	}

	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("model %s failed: %w", provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model %s returned no choices", provider)
	}
	choice := resp.Choices[0]

	ai := AIMessage(choice.Content)
	call, ok := firstToolCall(choice.ToolCalls)
	if !ok {
		state.Messages = append(state.Messages, ai)
		return &graph.Command[AgentState]{Update: state, Goto: graph.END}, nil
	}
	if len(choice.ToolCalls) > 1 {
		log.Debug("model returned %d tool calls, acting on %s only", len(choice.ToolCalls), call.Name)
	}

	ai.ToolCalls = []ToolCall{call}
	state.Messages = append(state.Messages, ai)
	a.onToolCall(call.Name)

	return a.dispatch(state, call)
}

func firstToolCall(calls []llms.ToolCall) (ToolCall, bool) {
	if len(calls) == 0 || calls[0].FunctionCall == nil {
		return ToolCall{}, false
	}
	tc := calls[0]
	id := tc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return ToolCall{ID: id, Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments}, true
}

// toolRoundsSinceHuman counts assistant tool calls after the last user message.
func toolRoundsSinceHuman(history []Message) int {
	rounds := 0
	for i := len(history) - 1; i >= 0; i-- {
		switch {
		case history[i].Role == RoleHuman:
			return rounds
		case history[i].Role == RoleAI && len(history[i].ToolCalls) > 0:
			rounds++
		}
	}
	return rounds
}

// dispatch applies the effect of call. The assistant message carrying call is
// already the last message of state.
func (a *Agent) dispatch(state AgentState, call ToolCall) (*graph.Command[AgentState], error) {
	reply := func(content string) (*graph.Command[AgentState], error) {
		state.Messages = append(state.Messages, ToolMessage(call, content))
		return &graph.Command[AgentState]{Update: state, Goto: NodeChat}, nil
	}

	effect, err := ParseToolCall(call)
	if err != nil {
		log.Warn("tool call %s rejected: %v", call.Name, err)
		if errors.Is(err, ErrUnknownTool) {
			return reply(msgUnknownTool)
		}
		return reply(msgInvalidArguments + strings.TrimPrefix(err.Error(), ErrInvalidArguments.Error()))
	}

	switch e := effect.(type) {
	case WriteCampaign:
		state.Report = e.Report
		return reply(msgDraftWritten)

	case WriteCampaignBrief:
		state.CampaignBrief = e.CampaignBrief
		return reply(msgBriefWritten)

	case CreateCampaign:
		c := Campaign{
			ID:        uuid.NewString(),
			Title:     e.Title,
			Status:    e.Status,
			Brief:     state.CampaignBrief,
			CreatedAt: a.now().UTC().Format(time.RFC3339),
		}
		state.Campaigns = append(state.Campaigns, c)
		a.replicator.Replicate(c)
		log.Info("campaign %s (%q) created", c.ID, c.Title)
		return reply(fmt.Sprintf(msgCampaignCreated, e.Title))

	case DeleteCampaign:
		kept, ok := removeCampaign(state.Campaigns, e.CampaignID, e.ConfirmationTitle)
		if !ok {
			return reply(msgCannotDelete)
		}
		state.Campaigns = kept
		log.Info("campaign %s deleted", e.CampaignID)
		return reply(fmt.Sprintf(msgCampaignDeleted, e.ConfirmationTitle))

	case Search:
		return &graph.Command[AgentState]{Update: state, Goto: NodeSearch}, nil

	case DeleteResources:
		return &graph.Command[AgentState]{Update: state, Goto: NodeDelete}, nil

	case CreateNewCampaign, JustBrowsing, DefineTargetAudience, SelectAgeRange,
		SetCampaignGoals, SelectMarketingChannels, SetCampaignBudget:
		return reply(acknowledgement(e))

	default:
		return nil, fmt.Errorf("unhandled tool effect %T", effect)
	}
}

// removeCampaign deletes the campaign with id when its title equals
// confirmation exactly.
func removeCampaign(campaigns []Campaign, id, confirmation string) ([]Campaign, bool) {
	for i, c := range campaigns {
		if c.ID != id {
			continue
		}
		if c.Title != confirmation {
			return campaigns, false
		}
		out := make([]Campaign, 0, len(campaigns)-1)
		out = append(out, campaigns[:i]...)
		return append(out, campaigns[i+1:]...), true
	}
	return campaigns, false
}
