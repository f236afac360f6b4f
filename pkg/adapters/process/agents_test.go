package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/council/pkg/adapters/process"
	"github.com/aretw0/council/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(t *testing.T, name, script string) process.AgentConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("agent scripts need a POSIX shell")
	}
	return process.AgentConfig{Name: name, Command: "sh", Args: []string{"-c", script}}
}

func TestAgents_SendAndAwait(t *testing.T) {
	agents := process.NewAgents(map[string]process.AgentConfig{
		"plain":  shell(t, "plain", `echo "hello from $COUNCIL_AGENT in $COUNCIL_SESSION_ID"`),
		"json":   shell(t, "json", `cat >/dev/null; echo '{"kind":"critique","target":"plain","content":"too vague","agent":"spoofed"}'`),
		"stdin":  shell(t, "stdin", `cat`),
		"broken": shell(t, "broken", `echo "model unavailable" >&2; exit 3`),
		"silent": shell(t, "silent", `true`),
	})
	ctx := context.Background()
	prompt := domain.Prompt{SessionID: "c-1", Topic: "retries"}

	msg, err := agents.SendAndAwait(ctx, "plain", prompt, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.Message{Agent: "plain", Kind: domain.MessageProposal, Content: "hello from plain in c-1"}, msg)

	msg, err = agents.SendAndAwait(ctx, "json", prompt, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "json", msg.Agent, "the process cannot speak for another agent")
	assert.Equal(t, domain.MessageCritique, msg.Kind)
	assert.Equal(t, "plain", msg.Target)

	msg, err = agents.SendAndAwait(ctx, "stdin", prompt, time.Second)
	require.NoError(t, err)
	assert.Contains(t, msg.Content, `"topic":"retries"`, "the prompt arrives on stdin")

	_, err = agents.SendAndAwait(ctx, "broken", prompt, time.Second)
	assert.ErrorContains(t, err, "model unavailable")

	_, err = agents.SendAndAwait(ctx, "silent", prompt, time.Second)
	assert.ErrorContains(t, err, "replied with nothing")

	_, err = agents.SendAndAwait(ctx, "hacker_script", prompt, time.Second)
	assert.ErrorIs(t, err, process.ErrNotRegistered)
}

func TestAgents_Timeout(t *testing.T) {
	agents := process.NewAgents(map[string]process.AgentConfig{
		"slow": shell(t, "slow", `exec sleep 5`),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := agents.SendAndAwait(ctx, "slow", domain.Prompt{SessionID: "c-1"}, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAgents_Join(t *testing.T) {
	agents := process.NewAgents(map[string]process.AgentConfig{
		"ok":      shell(t, "ok", "true"),
		"missing": {Name: "missing", Command: "definitely-not-a-council-agent"},
	})
	ctx := context.Background()

	assert.NoError(t, agents.Join(ctx, "ok", "c-1", time.Second))
	assert.Error(t, agents.Join(ctx, "missing", "c-1", time.Second))
	assert.ErrorIs(t, agents.Join(ctx, "nobody", "c-1", time.Second), process.ErrNotRegistered)
	assert.Equal(t, []string{"missing", "ok"}, agents.Names())
}

func TestLoadAgents(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	agents, err := process.LoadAgents(write("agents.yaml", `
agents:
  - name: reviewer
    command: python3
    args: [reviewer.py]
    env:
      MODEL: small
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"reviewer.py"}, agents["reviewer"].Args)
	assert.Equal(t, "small", agents["reviewer"].Environment["MODEL"])

	agents, err = process.LoadAgents(write("agents.json", `{"agents":[{"name":"a","command":"echo"}]}`))
	require.NoError(t, err)
	assert.Contains(t, agents, "a")

	_, err = process.LoadAgents(write("dup.yaml", "agents:\n  - {name: a, command: x}\n  - {name: a, command: y}\n"))
	assert.ErrorContains(t, err, "declared twice")

	_, err = process.LoadAgents(write("bad.yaml", "agents:\n  - {name: a}\n"))
	assert.ErrorContains(t, err, "command")

	_, err = process.LoadAgents(filepath.Join(dir, "none.yaml"))
	assert.Error(t, err)
}
