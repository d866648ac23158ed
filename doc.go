// Package researchcanvas is the backend of a research canvas agent that
// helps plan marketing campaigns.
//
// The agent is a checkpointed step graph. Each chat turn downloads the
// resources the user attached, asks the selected chat model for the next
// move and applies the single tool call it returns: editing the campaign
// brief or draft, managing the list of campaigns, searching the web or
// removing resources after the user confirms.
//
// # Packages
//
//   - graph: generic state graph with command routing, interrupts and checkpoints
//   - store: checkpoint stores (memory, redis, postgres, sqlite)
//   - models: provider selection and chat model construction
//   - tool: resource fetching, HTML sanitizing and Brave web search
//   - canvas: agent state, tool dispatch and the conversation runner
//   - campaign: best-effort replication of created campaigns
//   - config: viper-backed configuration
//   - server: CopilotKit-compatible HTTP API with thread and metrics endpoints
//   - cmd/canvasd: serve, chat and graph commands
//
// # Quick Start
//
//	export OPENAI_API_KEY=sk-...
//	go run ./cmd/canvasd serve
//
//	curl -s localhost:8000/copilotkit -d '{
//	  "messages": [{"role": "user", "content": "Plan a summer sale"}]
//	}'
package researchcanvas
