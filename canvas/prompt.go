package canvas

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// annotatedResource is a resource with its downloaded text.
type annotatedResource struct {
	Resource
	Content string
}

// maxResourceChars bounds how much of each resource is placed in the prompt.
const maxResourceChars = 4000

const behaviour = `You are a marketing campaign assistant. You help the user create effective marketing campaigns.

Your primary job is to help users create and manage marketing campaigns.

When users start a conversation, ask them if they want to create a new marketing campaign to boost sales.
Offer two clear choices:
1. Yes, create a new campaign
2. No, just browsing
Record the answer with the CreateNewCampaign or JustBrowsing tool.

If they choose to create a campaign, ask them for a campaign title and use the CreateCampaign tool to add
the campaign to their workspace.

After creating a campaign, guide them through the key decisions one at a time and record each answer with
its tool:
- Who is the target audience? (DefineTargetAudience)
- Which age range? (SelectAgeRange)
- What are the campaign goals? (SetCampaignGoals)
- Which marketing channels? (SelectMarketingChannels)
- What is the budget? (SetCampaignBudget)

If a user asks to delete a campaign:
1. Ask them to confirm by typing the exact campaign title
2. Only proceed with deletion if they correctly type the campaign title
3. Use the DeleteCampaign tool with the campaign ID and confirmation title

Use the Search tool to find resources when the user asks for research or inspiration, and the
DeleteResources tool when the user wants to remove resources.

Do not recite the resources, instead use them as inspiration and reference for your campaign ideas.

When asked about creating a campaign brief, use the WriteCampaignBrief tool.
When asked about creating a campaign draft, use the WriteCampaign tool.
Never EVER respond with the draft directly, only use the appropriate tool.`

// systemPrompt renders the instructions and the current workspace.
func systemPrompt(state AgentState, resources []annotatedResource) string {
	var sb strings.Builder

	sb.WriteString(behaviour)

	sb.WriteString("\n\nCurrent campaigns:\n")
	if len(state.Campaigns) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, c := range state.Campaigns {
		fmt.Fprintf(&sb, "- id: %s, title: %q, status: %s, created: %s\n", c.ID, c.Title, c.Status, c.CreatedAt)
	}

	sb.WriteString("\nThis is the current campaign brief:\n")
	sb.WriteString(orNone(state.CampaignBrief))

	sb.WriteString("\n\nThis is the campaign draft:\n")
	sb.WriteString(orNone(state.Report))

	sb.WriteString("\n\nHere are the references & inspiration that you have available:\n")
	if len(resources) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, r := range resources {
		content := truncate(r.Content, maxResourceChars)
		fmt.Fprintf(&sb, "\n[%s](%s)\n%s\n%s\n", r.Title, r.URL, r.Description, content)
	}

	return sb.String()
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(empty)"
	}
	return s
}
