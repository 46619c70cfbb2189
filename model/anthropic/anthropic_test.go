package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_ToolResultFollowsToolUse(t *testing.T) {
	m := NewModelFromClient(nil)

	contents := []core.Content{
		core.NewTextContent(core.RoleSystem, "system prompt"),
		core.NewTextContent(core.RoleUser, "book a flight"),
		{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID: "toolu_1", Name: "send_message", Arguments: `{"recipient":"travel","message":"book"}`,
		}}}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID: "toolu_1", Name: "send_message", Response: "done",
		}}}},
	}

	messages := m.buildMessages(contents)
	require.Len(t, messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, messages[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, messages[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, messages[2].Role)

	system := m.extractSystemMessage(contents)
	require.Len(t, system, 1)
	assert.Equal(t, "system prompt", system[0].Text)
}

func TestBuildParams_InstructionsFallback(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.MaxTokens = 512 })

	params := m.buildParams(model.Request{
		Instructions: "be brief",
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        "current_time",
				Description: "Returns the current date and time",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"timezone": map[string]any{"type": "string"}},
					"required":   []any{"timezone"},
				},
			},
		}},
	})

	require.Len(t, params.System, 1)
	assert.Equal(t, "be brief", params.System[0].Text)
	assert.Equal(t, int64(512), params.MaxTokens)
	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.Tools[0].OfTool)
	assert.Equal(t, "current_time", params.Tools[0].OfTool.Name)
	assert.Equal(t, []string{"timezone"}, params.Tools[0].OfTool.InputSchema.Required)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "claude-3-5-haiku-latest" })
	assert.Equal(t, "anthropic", m.Info().Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", m.Info().Name)
}
