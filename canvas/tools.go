package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Tool names offered to the model.
const (
	ToolSearch                  = "Search"
	ToolWriteCampaign           = "WriteCampaign"
	ToolWriteCampaignBrief      = "WriteCampaignBrief"
	ToolCreateCampaign          = "CreateCampaign"
	ToolDeleteCampaign          = "DeleteCampaign"
	ToolDeleteResources         = "DeleteResources"
	ToolCreateNewCampaign       = "CreateNewCampaign"
	ToolJustBrowsing            = "JustBrowsing"
	ToolDefineTargetAudience    = "DefineTargetAudience"
	ToolSelectAgeRange          = "SelectAgeRange"
	ToolSetCampaignGoals        = "SetCampaignGoals"
	ToolSelectMarketingChannels = "SelectMarketingChannels"
	ToolSetCampaignBudget       = "SetCampaignBudget"

	// ToolExtractResources is only offered by the search step.
	ToolExtractResources = "ExtractResources"
)

var (
	// ErrUnknownTool is returned for a tool name outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when tool arguments cannot be decoded or are incomplete.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Effect is the typed payload of one catalog tool call. The set of
// implementations is closed; dispatch switches over the concrete types.
type Effect interface {
	ToolName() string
	effect()
}

type Search struct {
	Queries []string `json:"queries"`
}

type WriteCampaign struct {
	Report string `json:"report"`
}

type WriteCampaignBrief struct {
	CampaignBrief string `json:"campaign_brief"`
}

type CreateCampaign struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

type DeleteCampaign struct {
	CampaignID        string `json:"campaign_id"`
	ConfirmationTitle string `json:"confirmation_title"`
}

type DeleteResources struct {
	URLs []string `json:"urls"`
}

type CreateNewCampaign struct{}

type JustBrowsing struct{}

type DefineTargetAudience struct {
	Audience string `json:"audience"`
}

type SelectAgeRange struct {
	AgeRange string `json:"age_range"`
}

type SetCampaignGoals struct {
	Goals []string `json:"goals"`
}

type SelectMarketingChannels struct {
	Channels []string `json:"channels"`
}

type SetCampaignBudget struct {
	Budget string `json:"budget"`
}

func (Search) ToolName() string                  { return ToolSearch }
func (WriteCampaign) ToolName() string           { return ToolWriteCampaign }
func (WriteCampaignBrief) ToolName() string      { return ToolWriteCampaignBrief }
func (CreateCampaign) ToolName() string          { return ToolCreateCampaign }
func (DeleteCampaign) ToolName() string          { return ToolDeleteCampaign }
func (DeleteResources) ToolName() string         { return ToolDeleteResources }
func (CreateNewCampaign) ToolName() string       { return ToolCreateNewCampaign }
func (JustBrowsing) ToolName() string            { return ToolJustBrowsing }
func (DefineTargetAudience) ToolName() string    { return ToolDefineTargetAudience }
func (SelectAgeRange) ToolName() string          { return ToolSelectAgeRange }
func (SetCampaignGoals) ToolName() string        { return ToolSetCampaignGoals }
func (SelectMarketingChannels) ToolName() string { return ToolSelectMarketingChannels }
func (SetCampaignBudget) ToolName() string       { return ToolSetCampaignBudget }

func (Search) effect()                  {}
func (WriteCampaign) effect()           {}
func (WriteCampaignBrief) effect()      {}
func (CreateCampaign) effect()          {}
func (DeleteCampaign) effect()          {}
func (DeleteResources) effect()         {}
func (CreateNewCampaign) effect()       {}
func (JustBrowsing) effect()            {}
func (DefineTargetAudience) effect()    {}
func (SelectAgeRange) effect()          {}
func (SetCampaignGoals) effect()        {}
func (SelectMarketingChannels) effect() {}
func (SetCampaignBudget) effect()       {}

// acknowledgement returns the tool result for effects that only record the
// user's choice in the conversation.
func acknowledgement(e Effect) string {
	switch e := e.(type) {
	case CreateNewCampaign:
		return "The user wants to create a new campaign. Ask for the campaign title."
	case JustBrowsing:
		return "The user is just browsing. No campaign will be created."
	case DefineTargetAudience:
		return fmt.Sprintf("Target audience set to: %s.", e.Audience)
	case SelectAgeRange:
		return fmt.Sprintf("Age range set to: %s.", e.AgeRange)
	case SetCampaignGoals:
		return fmt.Sprintf("Campaign goals set: %s.", strings.Join(e.Goals, ", "))
	case SelectMarketingChannels:
		return fmt.Sprintf("Marketing channels selected: %s.", strings.Join(e.Channels, ", "))
	case SetCampaignBudget:
		return fmt.Sprintf("Campaign budget set to: %s.", e.Budget)
	default:
		return "Acknowledged."
	}
}

var campaignStatuses = []string{StatusDraft, StatusActive, StatusCompleted, StatusScheduled}

// ParseToolCall decodes call into its Effect.
func ParseToolCall(call ToolCall) (Effect, error) {
	switch call.Name {
	case ToolSearch:
		e, err := decodeArgs[Search](call)
		if err == nil && len(nonEmpty(e.Queries)) == 0 {
			err = fmt.Errorf("%w: queries is required", ErrInvalidArguments)
		}
		e.Queries = nonEmpty(e.Queries)
		return e, err
	case ToolWriteCampaign:
		return decodeArgs[WriteCampaign](call)
	case ToolWriteCampaignBrief:
		return decodeArgs[WriteCampaignBrief](call)
	case ToolCreateCampaign:
		e, err := decodeArgs[CreateCampaign](call)
		if err != nil {
			return e, err
		}
		e.Title = strings.TrimSpace(e.Title)
		if e.Title == "" {
			return e, fmt.Errorf("%w: title is required", ErrInvalidArguments)
		}
		if e.Status == "" {
			e.Status = StatusDraft
		}
		if !slices.Contains(campaignStatuses, e.Status) {
			return e, fmt.Errorf("%w: status must be one of %s", ErrInvalidArguments, strings.Join(campaignStatuses, ", "))
		}
		return e, nil
	case ToolDeleteCampaign:
		e, err := decodeArgs[DeleteCampaign](call)
		if err == nil && e.CampaignID == "" {
			err = fmt.Errorf("%w: campaign_id is required", ErrInvalidArguments)
		}
		return e, err
	case ToolDeleteResources:
		e, err := decodeArgs[DeleteResources](call)
		if err == nil && len(nonEmpty(e.URLs)) == 0 {
			err = fmt.Errorf("%w: urls is required", ErrInvalidArguments)
		}
		e.URLs = nonEmpty(e.URLs)
		return e, err
	case ToolCreateNewCampaign:
		return decodeArgs[CreateNewCampaign](call)
	case ToolJustBrowsing:
		return decodeArgs[JustBrowsing](call)
	case ToolDefineTargetAudience:
		return decodeArgs[DefineTargetAudience](call)
	case ToolSelectAgeRange:
		return decodeArgs[SelectAgeRange](call)
	case ToolSetCampaignGoals:
		return decodeArgs[SetCampaignGoals](call)
	case ToolSelectMarketingChannels:
		return decodeArgs[SelectMarketingChannels](call)
	case ToolSetCampaignBudget:
		return decodeArgs[SetCampaignBudget](call)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
}

func decodeArgs[T Effect](call ToolCall) (T, error) {
	var v T
	args := strings.TrimSpace(call.Arguments)
	if args == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return v, fmt.Errorf("%w for %s: %v", ErrInvalidArguments, call.Name, err)
	}
	return v, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func function(name, description string, properties map[string]any, required ...string) llms.Tool {
	if required == nil {
		required = []string{}
	}
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func stringListProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

// Catalog returns the tools offered by the chat step.
func Catalog() []llms.Tool {
	return []llms.Tool{
		function(ToolSearch,
			"A list of one or more search queries to find good resources to support the marketing campaign.",
			map[string]any{"queries": stringListProp("Search queries")}, "queries"),
		function(ToolWriteCampaign,
			"Write the marketing campaign draft.",
			map[string]any{"report": stringProp("The full campaign draft in markdown")}, "report"),
		function(ToolWriteCampaignBrief,
			"Write the marketing campaign brief.",
			map[string]any{"campaign_brief": stringProp("The campaign brief")}, "campaign_brief"),
		function(ToolCreateCampaign,
			"Create a new marketing campaign with given title and status.",
			map[string]any{
				"title": stringProp("Campaign title"),
				"status": map[string]any{
					"type":        "string",
					"enum":        campaignStatuses,
					"description": "Campaign status, draft when omitted",
				},
			}, "title"),
		function(ToolDeleteCampaign,
			"Delete a marketing campaign. Requires the campaign ID and confirmation of the campaign title for verification.",
			map[string]any{
				"campaign_id":        stringProp("ID of the campaign to delete"),
				"confirmation_title": stringProp("The campaign title exactly as typed by the user"),
			}, "campaign_id", "confirmation_title"),
		function(ToolDeleteResources,
			"Delete the URLs from the resources.",
			map[string]any{"urls": stringListProp("URLs of the resources to delete")}, "urls"),
		function(ToolCreateNewCampaign,
			"Record that the user chose to create a new campaign.",
			map[string]any{}),
		function(ToolJustBrowsing,
			"Record that the user is just browsing and does not want a campaign now.",
			map[string]any{}),
		function(ToolDefineTargetAudience,
			"Record the target audience of the campaign.",
			map[string]any{"audience": stringProp("Who the campaign targets")}, "audience"),
		function(ToolSelectAgeRange,
			"Record the age range of the target audience.",
			map[string]any{"age_range": stringProp("Age range, for example 18-34")}, "age_range"),
		function(ToolSetCampaignGoals,
			"Record the goals of the campaign.",
			map[string]any{"goals": stringListProp("Campaign goals")}, "goals"),
		function(ToolSelectMarketingChannels,
			"Record the marketing channels of the campaign.",
			map[string]any{"channels": stringListProp("Marketing channels")}, "channels"),
		function(ToolSetCampaignBudget,
			"Record the campaign budget.",
			map[string]any{"budget": stringProp("Budget with currency, for example $5,000")}, "budget"),
	}
}

// extractResourcesTool lets the model pick resources from search results.
func extractResourcesTool() llms.Tool {
	return function(ToolExtractResources,
		"Extract the 3-5 most relevant resources from a search result.",
		map[string]any{
			"resources": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"url":         stringProp("The URL of the resource"),
						"title":       stringProp("A good title for the resource"),
						"description": stringProp("A short description of the resource"),
					},
					"required": []string{"url", "title", "description"},
				},
				"description": "The list of resources",
			},
		}, "resources")
}
