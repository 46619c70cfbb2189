package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
memory:
  driver: none
runtime:
  default_model: mock/echo
main_agent: personal_assistant
agents:
  - name: personal_assistant
    description: Routes requests
    sub_agents: [calendar_agent, notes_agent]
  - name: calendar_agent
    description: Manages the calendar
  - name: notes_agent
    description: Keeps notes
    mock: true
`

func writeConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "meshgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestAgentsCommand(t *testing.T) {
	out, err := run(t, "agents", "--config", writeConfig(t))
	require.NoError(t, err)

	assert.Contains(t, out, "* personal_assistant [mock/echo] Routes requests")
	assert.Contains(t, out, "send_message -> calendar_agent, notes_agent")
	assert.Contains(t, out, "  calendar_agent [mock/echo] Manages the calendar")
	assert.Contains(t, out, "  notes_agent [mock]")
}

func TestAskCommand(t *testing.T) {
	out, err := run(t, "ask", "--config", writeConfig(t), "hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello there\n", out)
}

func TestAskCommand_Stream(t *testing.T) {
	out, err := run(t, "ask", "--stream", "--config", writeConfig(t), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello\n", out)
}

func TestAskCommand_RequiresMessage(t *testing.T) {
	_, err := run(t, "ask", "--config", writeConfig(t))
	require.Error(t, err)
}

func TestAgentsCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("main_agent: ghost\nagents:\n  - name: other\n"), 0o600))

	_, err := run(t, "agents", "--config", path)
	require.Error(t, err)
}
