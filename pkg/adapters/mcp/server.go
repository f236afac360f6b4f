package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/council"
	"github.com/aretw0/council/internal/logging"
	"github.com/aretw0/council/internal/sanitize"
	"github.com/aretw0/council/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	activeURI      = "council://active"
	councilURIBase = "council://councils/"
)

// Councils is the subset of the session manager exposed as MCP tools.
type Councils interface {
	CreateSession(ctx context.Context, participants []string, cfg domain.SessionConfig) (string, error)
	SubmitEvent(ctx context.Context, sessionID string, ev domain.Event) (domain.Status, error)
	GetSnapshot(ctx context.Context, sessionID string) (*domain.CouncilSession, error)
	CancelSession(ctx context.Context, sessionID, reason string) error
	ListActive() iter.Seq[domain.Summary]
}

// CreateCouncilInput is the argument set of create_council.
type CreateCouncilInput struct {
	Participants []string                 `json:"participants"`
	Topic        string                   `json:"topic,omitempty"`
	Evidence     []domain.EvidenceRequest `json:"evidence,omitempty"`
	SkipEvidence bool                     `json:"skip_evidence,omitempty"`
}

// CouncilInput addresses one council.
type CouncilInput struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// MessageInput is the argument set of submit_message.
type MessageInput struct {
	ID      string             `json:"id"`
	Agent   string             `json:"agent"`
	Kind    domain.MessageKind `json:"kind,omitempty"`
	Content string             `json:"content"`
	Target  string             `json:"target,omitempty"`
	Final   bool               `json:"final,omitempty"`
}

// ListInput is the argument set of list_councils.
type ListInput struct {
	Limit int `json:"limit,omitempty"`
}

// StatusResult reports the status after an event was applied.
type StatusResult struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
}

// ListResult wraps the active councils.
type ListResult struct {
	Councils []domain.Summary `json:"councils"`
}

// Server exposes the council manager as an MCP server.
type Server struct {
	councils  Councils
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(councils Councils, opts ...Option) *Server {
	s := &Server{
		councils: councils,
		logger:   logging.NewNop(),
		mcpServer: server.NewMCPServer("council-mcp", strings.TrimSpace(council.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop MCP server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("create_council",
		mcp.WithDescription("Create a council. Participants are asked to join; the council then gathers evidence, deliberates and synthesizes."),
		mcp.WithArray("participants", mcp.Required(), mcp.WithStringItems(), mcp.Description("Agent names, unique")),
		mcp.WithString("topic", mcp.Description("Question the council deliberates on")),
		mcp.WithBoolean("skip_evidence", mcp.Description("Go straight to deliberation")),
		mcp.WithOutputSchema[domain.CouncilSession](),
	), s.handleCreate)

	s.mcpServer.AddTool(mcp.NewTool("get_council",
		mcp.WithDescription("Get a snapshot of a council, including its transition log and result."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Council ID")),
		mcp.WithOutputSchema[domain.CouncilSession](),
	), s.handleGet)

	s.mcpServer.AddTool(mcp.NewTool("submit_message",
		mcp.WithDescription("Submit an agent message to a deliberating council."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Council ID")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Participant submitting the message")),
		mcp.WithString("content", mcp.Required()),
		mcp.WithString("kind", mcp.Enum("proposal", "critique", "note")),
		mcp.WithString("target", mcp.Description("Critiqued agent")),
		mcp.WithBoolean("final", mcp.Description("Last message of this agent")),
		mcp.WithOutputSchema[StatusResult](),
	), s.handleMessage)

	s.mcpServer.AddTool(mcp.NewTool("cancel_council",
		mcp.WithDescription("Cancel a council. Terminal councils are left unchanged."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Council ID")),
		mcp.WithString("reason"),
		mcp.WithOutputSchema[StatusResult](),
	), s.handleCancel)

	s.mcpServer.AddTool(mcp.NewTool("list_councils",
		mcp.WithDescription("List councils that have not finished, oldest first."),
		mcp.WithNumber("limit", mcp.Min(0)),
		mcp.WithOutputSchema[ListResult](),
	), s.handleList)
}

func (s *Server) handleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in CreateCouncilInput
	if err := request.BindArguments(&in); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid create_council arguments", err), nil
	}
	id, err := s.councils.CreateSession(ctx, in.Participants, domain.SessionConfig{
		Topic:        in.Topic,
		Evidence:     in.Evidence,
		SkipEvidence: in.SkipEvidence,
	})
	if err != nil {
		return mcp.NewToolResultErrorFromErr("create failed", err), nil
	}
	return s.snapshot(ctx, id)
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.snapshot(ctx, id)
}

func (s *Server) snapshot(ctx context.Context, id string) (*mcp.CallToolResult, error) {
	snapshot, err := s.councils.GetSnapshot(ctx, id)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("snapshot failed", err), nil
	}
	return structured(snapshot)
}

func (s *Server) handleMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in MessageInput
	if err := request.BindArguments(&in); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid submit_message arguments", err), nil
	}
	if in.ID == "" || in.Agent == "" {
		return mcp.NewToolResultError("id and agent are required"), nil
	}
	content, err := sanitize.Content(in.Content, 0)
	if err != nil {
		s.logger.Warn("MCP message rejected", "council_id", in.ID, "err", err, "size", len(in.Content))
		return mcp.NewToolResultErrorFromErr("content rejected", err), nil
	}
	status, err := s.councils.SubmitEvent(ctx, in.ID, domain.AgentMessage(domain.Message{
		Agent:   in.Agent,
		Kind:    in.Kind,
		Content: content,
		Target:  in.Target,
		Final:   in.Final,
	}))
	if err != nil {
		s.logger.Debug("MCP message rejected", "council_id", in.ID, "agent", in.Agent, "err", err)
		return mcp.NewToolResultErrorFromErr("message rejected", err), nil
	}
	return structured(StatusResult{ID: in.ID, Status: status})
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in CouncilInput
	if err := request.BindArguments(&in); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid cancel_council arguments", err), nil
	}
	// Cancelling a finished council reports its final status.
	if err := s.councils.CancelSession(ctx, in.ID, in.Reason); err != nil && !errors.Is(err, domain.ErrTerminalSession) {
		return mcp.NewToolResultErrorFromErr("cancel failed", err), nil
	}
	snapshot, err := s.councils.GetSnapshot(ctx, in.ID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("snapshot failed", err), nil
	}
	return structured(StatusResult{ID: in.ID, Status: snapshot.Status})
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in ListInput
	if err := request.BindArguments(&in); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid list_councils arguments", err), nil
	}
	return structured(ListResult{Councils: s.active(in.Limit)})
}

func (s *Server) active(limit int) []domain.Summary {
	councils := []domain.Summary{}
	for summary := range s.councils.ListActive() {
		if limit > 0 && len(councils) >= limit {
			break
		}
		councils = append(councils, summary)
	}
	return councils
}

// structured returns v as structured content with a JSON text fallback.
func structured(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultStructured(v, string(data)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(activeURI, "Active councils",
		mcp.WithResourceDescription("Councils that have not reached a terminal status"),
		mcp.WithMIMEType("application/json"),
	), s.readActive)

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(councilURIBase+"{id}", "Council",
		mcp.WithTemplateDescription("Snapshot of one council"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readCouncil)
}

func (s *Server) readActive(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(activeURI, ListResult{Councils: s.active(0)})
}

func (s *Server) readCouncil(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	id := strings.TrimPrefix(uri, councilURIBase)
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid council URI %q", uri)
	}
	snapshot, err := s.councils.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, snapshot)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
