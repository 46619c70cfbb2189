package flow

import (
	"fmt"
	"maps"

	"github.com/hupe1980/meshgate/core"
	internalutil "github.com/hupe1980/meshgate/internal/util"
	"github.com/hupe1980/meshgate/model"
	"github.com/hupe1980/meshgate/tool"
)

// InstructionsProcessor renders the system prompt template.
type InstructionsProcessor struct {
	template string
	data     map[string]any
}

// NewInstructionsProcessor creates a processor rendering template with data.
// Each run additionally exposes thread_id, depth and the run metadata.
func NewInstructionsProcessor(template string, data map[string]any) *InstructionsProcessor {
	return &InstructionsProcessor{template: template, data: maps.Clone(data)}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets req.Instructions.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, _ *Conversation) error {
	data := make(map[string]any, len(p.data)+3)
	maps.Copy(data, p.data)
	data["thread_id"] = runCtx.ThreadID()
	data["depth"] = runCtx.Config.Depth
	data["metadata"] = runCtx.Config.Metadata

	instructions, err := internalutil.RenderTemplate(p.template, data)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", runCtx.AgentName, "length", len(instructions))

	req.Instructions = instructions

	return nil
}

// ContentsProcessor assembles history and pending contents.
type ContentsProcessor struct {
	maxHistory int
}

// NewContentsProcessor creates a contents processor keeping at most
// maxHistory persisted contents (0 keeps everything).
func NewContentsProcessor(maxHistory int) *ContentsProcessor {
	return &ContentsProcessor{maxHistory: maxHistory}
}

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets req.Contents.
func (p *ContentsProcessor) ProcessRequest(_ *core.RunContext, req *model.Request, conv *Conversation) error {
	history := trimHistory(conv.History, p.maxHistory)

	contents := make([]core.Content, 0, len(history)+len(conv.Pending))
	contents = append(contents, history...)
	contents = append(contents, conv.Pending...)

	req.Contents = contents

	return nil
}

// trimHistory keeps the newest limit contents and drops leading entries until
// the window starts at a user turn, so no tool response is cut from its call.
func trimHistory(history []core.Content, limit int) []core.Content {
	if limit <= 0 || len(history) <= limit {
		return history
	}

	window := history[len(history)-limit:]
	for len(window) > 0 && window[0].Role != core.RoleUser {
		window = window[1:]
	}

	return window
}

// ToolsProcessor advertises tools in declaration order.
type ToolsProcessor struct {
	tools []tool.Tool
}

// NewToolsProcessor creates a tools processor.
func NewToolsProcessor(tools []tool.Tool) *ToolsProcessor {
	return &ToolsProcessor{tools: tools}
}

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets req.Tools.
func (p *ToolsProcessor) ProcessRequest(_ *core.RunContext, req *model.Request, _ *Conversation) error {
	if len(p.tools) == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, len(p.tools))
	for _, t := range p.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	req.Tools = defs

	return nil
}
