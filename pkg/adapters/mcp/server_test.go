package mcp_test

import (
	"context"
	"encoding/json"
	"iter"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/council/internal/sanitize"
	"github.com/aretw0/council/pkg/adapters/local"
	councilmcp "github.com/aretw0/council/pkg/adapters/mcp"
	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCouncils is a testify mock of the session manager.
type MockCouncils struct {
	mock.Mock
}

func (m *MockCouncils) CreateSession(ctx context.Context, participants []string, cfg domain.SessionConfig) (string, error) {
	args := m.Called(ctx, participants, cfg)
	return args.String(0), args.Error(1)
}

func (m *MockCouncils) SubmitEvent(ctx context.Context, id string, ev domain.Event) (domain.Status, error) {
	args := m.Called(ctx, id, ev)
	return args.Get(0).(domain.Status), args.Error(1)
}

func (m *MockCouncils) GetSnapshot(ctx context.Context, id string) (*domain.CouncilSession, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*domain.CouncilSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCouncils) CancelSession(ctx context.Context, id, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *MockCouncils) ListActive() iter.Seq[domain.Summary] {
	return slices.Values(m.Called().Get(0).([]domain.Summary))
}

func callTool(t *testing.T, srv *councilmcp.Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := srv.MCPServer().GetTool(name)
	require.NotNil(t, tool, "tool %s not registered", name)
	result, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return tc.Text
}

func TestServer_Tools(t *testing.T) {
	councils := new(MockCouncils)
	srv := councilmcp.NewServer(councils)

	names := make([]string, 0)
	for name := range srv.MCPServer().ListTools() {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"create_council", "get_council", "submit_message", "cancel_council", "list_councils"}, names)
}

func TestServer_CreateCouncil(t *testing.T) {
	councils := new(MockCouncils)
	srv := councilmcp.NewServer(councils)

	snapshot := &domain.CouncilSession{ID: "c-1", Status: domain.StatusPending, Topic: "latency"}
	councils.On("CreateSession", mock.Anything, []string{"a", "b"}, domain.SessionConfig{Topic: "latency", SkipEvidence: true}).
		Return("c-1", nil)
	councils.On("GetSnapshot", mock.Anything, "c-1").Return(snapshot, nil)

	result := callTool(t, srv, "create_council", map[string]any{
		"participants":  []any{"a", "b"},
		"topic":         "latency",
		"skip_evidence": true,
	})
	assert.False(t, result.IsError)
	assert.Equal(t, snapshot, result.StructuredContent)

	var decoded domain.CouncilSession
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &decoded))
	assert.Equal(t, "c-1", decoded.ID)
	councils.AssertExpectations(t)
}

func TestServer_ErrorsBecomeToolErrors(t *testing.T) {
	councils := new(MockCouncils)
	srv := councilmcp.NewServer(councils)

	councils.On("CreateSession", mock.Anything, []string{"a"}, mock.Anything).Return("", domain.ErrCapacityExceeded)
	councils.On("GetSnapshot", mock.Anything, "missing").Return(nil, domain.ErrSessionNotFound)
	councils.On("SubmitEvent", mock.Anything, "c-1", mock.Anything).Return(domain.StatusCompleted, domain.ErrTerminalSession)

	result := callTool(t, srv, "create_council", map[string]any{"participants": []any{"a"}})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "capacity")

	result = callTool(t, srv, "get_council", map[string]any{"id": "missing"})
	assert.True(t, result.IsError)

	result = callTool(t, srv, "get_council", map[string]any{})
	assert.True(t, result.IsError, "id is required")

	result = callTool(t, srv, "submit_message", map[string]any{"id": "c-1", "agent": "a", "content": "late"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "terminal")

	result = callTool(t, srv, "submit_message", map[string]any{"id": "c-1", "content": "anonymous"})
	assert.True(t, result.IsError)

	result = callTool(t, srv, "submit_message", map[string]any{
		"id": "c-1", "agent": "a", "content": strings.Repeat("x", sanitize.DefaultMaxContentSize+1),
	})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "maximum allowed size")
	councils.AssertNumberOfCalls(t, "SubmitEvent", 1)
}

func TestServer_SubmitMessage(t *testing.T) {
	councils := new(MockCouncils)
	srv := councilmcp.NewServer(councils)

	councils.On("SubmitEvent", mock.Anything, "c-1", mock.MatchedBy(func(ev domain.Event) bool {
		return ev.Type == domain.EventAgentMessage && ev.Agent == "a" && ev.Message.Final &&
			ev.Message.Kind == domain.MessageCritique && ev.Message.Content == "too [1mslow"
	})).Return(domain.StatusSynthesizing, nil)

	result := callTool(t, srv, "submit_message", map[string]any{
		"id": "c-1", "agent": "a", "kind": "critique", "content": "too \x1b[1mslow", "target": "b", "final": true,
	})
	assert.False(t, result.IsError)
	assert.Equal(t, councilmcp.StatusResult{ID: "c-1", Status: domain.StatusSynthesizing}, result.StructuredContent)
	councils.AssertExpectations(t)
}

func TestServer_ListAndResources(t *testing.T) {
	councils := new(MockCouncils)
	srv := councilmcp.NewServer(councils)

	active := []domain.Summary{{ID: "c-1"}, {ID: "c-2"}, {ID: "c-3"}}
	councils.On("ListActive").Return(active)
	councils.On("GetSnapshot", mock.Anything, "c-2").Return(&domain.CouncilSession{ID: "c-2", Status: domain.StatusGathering}, nil)

	result := callTool(t, srv, "list_councils", map[string]any{"limit": 2})
	require.False(t, result.IsError)
	list := result.StructuredContent.(councilmcp.ListResult)
	assert.Len(t, list.Councils, 2)

	msg := srv.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"council://active"}}`))
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `c-3`)

	msg = srv.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"council://councils/c-2"}}`))
	data, err = json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gathering`)
}

func TestServer_WithManager(t *testing.T) {
	lim := domain.DefaultLimits()
	lim.AgentTimeout = time.Hour
	lim.CouncilTimeout = 2 * time.Hour
	mgr, err := session.NewManager(lim, local.DefaultRoster(), local.NewEvidence(), local.NewSynthesizer(domain.SynthesisBest))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	srv := councilmcp.NewServer(mgr)

	result := callTool(t, srv, "create_council", map[string]any{
		"participants":  []any{"architect", "critic"},
		"topic":         "flaky deploys",
		"skip_evidence": true,
	})
	require.False(t, result.IsError, text(t, result))
	id := result.StructuredContent.(*domain.CouncilSession).ID

	require.Eventually(t, func() bool {
		snapshot, err := mgr.GetSnapshot(context.Background(), id)
		return err == nil && snapshot.Status == domain.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	result = callTool(t, srv, "cancel_council", map[string]any{"id": id})
	require.False(t, result.IsError, "cancelling a finished council is a no-op")
	assert.Equal(t, domain.StatusCompleted, result.StructuredContent.(councilmcp.StatusResult).Status)

	result = callTool(t, srv, "get_council", map[string]any{"id": id})
	snapshot := result.StructuredContent.(*domain.CouncilSession)
	require.NotNil(t, snapshot.Result)
	assert.Equal(t, domain.SynthesisBest, snapshot.Result.Mode)
}
