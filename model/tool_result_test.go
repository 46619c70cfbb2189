package model

import (
	"testing"

	"github.com/hupe1980/meshgate/core"
	"github.com/stretchr/testify/assert"
)

func TestToolResultText(t *testing.T) {
	tests := []struct {
		name string
		in   core.FunctionResponse
		want string
	}{
		{name: "string", in: core.FunctionResponse{Response: "Successfully relayed message to calendar_agent. Response: ok"}, want: "Successfully relayed message to calendar_agent. Response: ok"},
		{name: "map", in: core.FunctionResponse{Response: map[string]any{"time": "2025-03-14 09:30:00 UTC"}}, want: `{"time":"2025-03-14 09:30:00 UTC"}`},
		{name: "error", in: core.FunctionResponse{Error: "tool error [NOT_FOUND] in x: missing"}, want: `{"error":"tool error [NOT_FOUND] in x: missing"}`},
		{name: "nil", in: core.FunctionResponse{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToolResultText(tt.in))
		})
	}
}
