package canvas

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/smallnest/researchcanvas/log"
)

const msgDeletionCancelled = "Resource deletion cancelled."

// confirmDelete marks the point where the run pauses for the user to confirm
// a DeleteResources call.
func (a *Agent) confirmDelete(_ context.Context, state AgentState) (AgentState, error) {
	return state, nil
}

// performDelete applies the confirmation delivered on resume. A tool result
// of YES removes the requested URLs; any other answer keeps them. When the
// user answered without a tool result, a cancellation result is inserted
// right after the call.
func (a *Agent) performDelete(_ context.Context, state AgentState) (AgentState, error) {
	idx := -1
	for i := len(state.Messages) - 1; i >= 0; i-- {
		m := state.Messages[i]
		if m.Role == RoleAI && len(m.ToolCalls) > 0 && m.ToolCalls[0].Name == ToolDeleteResources {
			idx = i
			break
		}
	}
	if idx < 0 {
		log.Warn("deletion step reached without a %s call", ToolDeleteResources)
		return state, nil
	}
	call := state.Messages[idx].ToolCalls[0]

	var answer *Message
	for i := idx + 1; i < len(state.Messages); i++ {
		if m := state.Messages[i]; m.Role == RoleTool && m.ToolCallID == call.ID {
			answer = &state.Messages[i]
			break
		}
	}

	if answer == nil {
		msgs := make([]Message, 0, len(state.Messages)+1)
		msgs = append(msgs, state.Messages[:idx+1]...)
		msgs = append(msgs, ToolMessage(call, msgDeletionCancelled))
		state.Messages = append(msgs, state.Messages[idx+1:]...)
		return state, nil
	}

	if !strings.EqualFold(strings.TrimSpace(answer.Content), "YES") {
		log.Info("resource deletion declined")
		return state, nil
	}

	var args DeleteResources
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		log.Warn("invalid %s arguments: %v", ToolDeleteResources, err)
		return state, nil
	}

	remove := make(map[string]bool, len(args.URLs))
	for _, u := range args.URLs {
		remove[u] = true
	}
	kept := make([]Resource, 0, len(state.Resources))
	for _, r := range state.Resources {
		if !remove[r.URL] {
			kept = append(kept, r)
		}
	}
	log.Info("deleted %d resources", len(state.Resources)-len(kept))
	state.Resources = kept

	return state, nil
}
