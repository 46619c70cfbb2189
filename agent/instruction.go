package agent

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are {{.agent_name}}, a helpful AI assistant."

// templateData exposes agent identity to the system prompt template.
// Per-run keys (thread_id, depth, metadata) are added by the flow.
func (a *Agent) templateData() map[string]any {
	subs := make([]string, 0, len(a.subAgents))
	lines := make([]string, 0, len(a.subAgents))
	for _, s := range a.subAgents {
		subs = append(subs, s.Name())
		lines = append(lines, fmt.Sprintf("- %s: %s", s.Name(), s.Description()))
	}

	return map[string]any{
		"agent_name":      a.name,
		"description":     a.opts.Description,
		"sub_agents":      strings.Join(lines, "\n"),
		"sub_agent_names": subs,
	}
}
