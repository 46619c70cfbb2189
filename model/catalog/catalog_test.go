package catalog

import (
	"testing"

	"github.com/hupe1980/meshgate/model"
	"github.com/hupe1980/meshgate/model/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		provider string
		name     string
		wantErr  bool
	}{
		{in: "openai/gpt-4o-mini", provider: "openai", name: "gpt-4o-mini"},
		{in: "Anthropic/claude-3-5-haiku-latest", provider: "anthropic", name: "claude-3-5-haiku-latest"},
		{in: "gpt-4o", provider: "openai", name: "gpt-4o"},
		{in: "mock/echo", provider: "mock", name: "echo"},
		{in: "cohere/command", wantErr: true},
		{in: "openai/", wantErr: true},
		{in: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			provider, name, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, provider)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestResolve_Providers(t *testing.T) {
	m, err := Resolve("mock/echo", 0)
	require.NoError(t, err)
	assert.IsType(t, &model.MockModel{}, m)

	m, err = Resolve("openai/gpt-4o-mini", 0.3, func(o *Options) { o.OpenAIAPIKey = "sk-test" })
	require.NoError(t, err)
	assert.Equal(t, model.Info{Name: "gpt-4o-mini", Provider: "openai", SupportsTools: true}, m.Info())

	m, err = Resolve("anthropic/claude-3-5-haiku-latest", 0.3, func(o *Options) { o.AnthropicAPIKey = "test" })
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)
}

func TestResolve_BreakerWrapping(t *testing.T) {
	m, err := Resolve("openai/gpt-4o", 0, func(o *Options) {
		o.OpenAIAPIKey = "sk-test"
		o.Breaker = true
	})
	require.NoError(t, err)
	assert.IsType(t, &breaker.Model{}, m)
	assert.Equal(t, "gpt-4o", m.Info().Name)
}

func TestNewResolver(t *testing.T) {
	resolve := NewResolver()
	m, err := resolve("mock/planner", 0.1)
	require.NoError(t, err)
	assert.Equal(t, "planner", m.Info().Name)

	_, err = resolve("nope/x", 0)
	assert.Error(t, err)
}
