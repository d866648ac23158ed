package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallnest/researchcanvas/log"
	"github.com/smallnest/researchcanvas/models"
	"github.com/smallnest/researchcanvas/tool"
	"github.com/tmc/langchaingo/llms"
)

const (
	msgSearchUnavailable = "Search is not available: no search backend is configured."
	msgNoSearchResults   = "The search returned no results."
	msgResourcesAdded    = "Added the following resources:\n%s"

	maxExtractedResources = 5
)

const extractPrompt = `You need to extract the 3-5 most relevant resources from the following search results.
Pick resources that help with the user's marketing campaign and give each a good title and a short description.
Call the ExtractResources tool with your selection.`

// search runs the queries of the pending Search call and adds the best
// results to the resources.
func (a *Agent) search(ctx context.Context, state AgentState) (AgentState, error) {
	call, ok := state.PendingToolCall()
	if !ok || call.Name != ToolSearch {
		log.Warn("search step reached without a pending %s call", ToolSearch)
		return state, nil
	}
	effect, err := ParseToolCall(call)
	if err != nil {
		state.Messages = append(state.Messages, ToolMessage(call, msgInvalidArguments))
		return state, nil
	}
	queries := effect.(Search).Queries

	if a.searcher == nil {
		state.Messages = append(state.Messages, ToolMessage(call, msgSearchUnavailable))
		return state, nil
	}

	offset := len(state.Logs)
	for _, q := range queries {
		state.Logs = append(state.Logs, Log{Message: fmt.Sprintf("Search for %s", q)})
	}

	var results []tool.SearchResult
	seen := make(map[string]bool)
	for i, q := range queries {
		res, err := a.searcher.Search(ctx, q)
		if err != nil {
			log.Warn("search %q failed: %v", q, err)
		}
		for _, r := range res {
			if !seen[r.URL] {
				seen[r.URL] = true
				results = append(results, r)
			}
		}
		state.Logs[offset+i].Done = true
	}

	state.Logs = []Log{}

	if len(results) == 0 {
		state.Messages = append(state.Messages, ToolMessage(call, msgNoSearchResults))
		return state, nil
	}

	picked, err := a.extractResources(ctx, state, results)
	if err != nil {
		return state, err
	}

	var added []Resource
	for _, r := range picked {
		if r.URL == "" || state.HasResource(r.URL) {
			continue
		}
		state.Resources = append(state.Resources, r)
		added = append(added, r)
	}

	var list strings.Builder
	for _, r := range added {
		fmt.Fprintf(&list, "- [%s](%s): %s\n", r.Title, r.URL, r.Description)
	}
	if len(added) == 0 {
		list.WriteString("(none, all results were already in the resource list)\n")
	}
	state.Messages = append(state.Messages, ToolMessage(call, fmt.Sprintf(msgResourcesAdded, list.String())))

	return state, nil
}

// extractResources asks the model to choose the most relevant results. When
// the model does not call ExtractResources the top results are used as is.
func (a *Agent) extractResources(ctx context.Context, state AgentState, results []tool.SearchResult) ([]Resource, error) {
	provider, err := models.Resolve(state.Model, string(models.ProviderFromContext(ctx)), a.envModel)
	if err != nil {
		return nil, err
	}
	model, err := a.models.Model(ctx, provider)
	if err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, extractPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, tool.FormatResults(results)),
	}
	resp, err := model.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithTools([]llms.Tool{extractResourcesTool()}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: ToolExtractResources},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("model %s failed: %w", provider, err)
	}

	if len(resp.Choices) > 0 {
		for _, tc := range resp.Choices[0].ToolCalls {
			if tc.FunctionCall == nil || tc.FunctionCall.Name != ToolExtractResources {
				continue
			}
			var args struct {
				Resources []Resource `json:"resources"`
			}
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				log.Warn("invalid %s arguments: %v", ToolExtractResources, err)
				break
			}
			if len(args.Resources) > maxExtractedResources {
				args.Resources = args.Resources[:maxExtractedResources]
			}
			return args.Resources, nil
		}
	}

	log.Debug("model did not extract resources, keeping the top results")
	out := make([]Resource, 0, maxExtractedResources)
	for _, r := range results[:min(len(results), maxExtractedResources)] {
		out = append(out, Resource{URL: r.URL, Title: r.Title, Description: r.Description})
	}
	return out, nil
}
