package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/council"
	"github.com/aretw0/council/internal/logging"
	"github.com/aretw0/council/internal/sanitize"
	"github.com/aretw0/council/pkg/domain"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
)

//go:embed openapi.yaml
var rawSpec []byte

// Councils is the subset of the session manager the HTTP shell drives.
type Councils interface {
	CreateSession(ctx context.Context, participants []string, cfg domain.SessionConfig) (string, error)
	SubmitEvent(ctx context.Context, sessionID string, ev domain.Event) (domain.Status, error)
	GetSnapshot(ctx context.Context, sessionID string) (*domain.CouncilSession, error)
	CancelSession(ctx context.Context, sessionID, reason string) error
	ListActive() iter.Seq[domain.Summary]
}

// Server exposes the council lifecycle over HTTP.
type Server struct {
	Councils Councils
	Streams  *StreamManager

	logger  *slog.Logger
	origins []string
	metrics http.Handler
	spec    *openapi3.T
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins restricts CORS to origins. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares a StreamManager, so hooks registered elsewhere reach this server's clients.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewServer builds the Server and loads its embedded OpenAPI document.
func NewServer(councils Councils, opts ...Option) (*Server, error) {
	s := &Server{
		Councils: councils,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	spec, err := openapi3.NewLoader().LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := spec.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	s.spec = spec
	return s, nil
}

// NewHandler creates the HTTP handler for the council manager.
func NewHandler(councils Councils, opts ...Option) (http.Handler, error) {
	s, err := NewServer(councils, opts...)
	if err != nil {
		return nil, err
	}
	return s.Handler()
}

// Handler wires the routes.
func (s *Server) Handler() (http.Handler, error) {
	validate, err := s.validator()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/", s.GetInfo)
	r.Get("/health", s.GetHealth)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1/councils", func(r chi.Router) {
		r.Use(validate)
		r.Get("/", s.ListCouncils)
		r.Post("/", s.CreateCouncil)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetCouncil)
			r.Post("/events", s.SubmitEvent)
			r.Post("/messages", s.SubmitMessage)
			r.Post("/cancel", s.CancelCouncil)
			r.Get("/synthesis", s.GetSynthesis)
			r.Get("/stream", s.StreamCouncil)
		})
	})

	return s.enableCORS(r), nil
}

// Hooks returns lifecycle hooks that wake stream subscribers on every applied event.
func (s *Server) Hooks() domain.LifecycleHooks {
	return s.Streams.Hooks()
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.allowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowed(origin string) bool {
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET / request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if s.spec.Info != nil {
		apiVersion = s.spec.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "council-orchestrator",
		"version":     strings.TrimSpace(council.Version),
		"api_version": apiVersion,
	})
}

type createCouncilRequest struct {
	Participants []string                 `json:"participants"`
	Topic        string                   `json:"topic"`
	Context      map[string]any           `json:"context"`
	Evidence     []domain.EvidenceRequest `json:"evidence"`
	SkipEvidence bool                     `json:"skip_evidence"`
}

// CreateCouncil handles POST /api/v1/councils.
func (s *Server) CreateCouncil(w http.ResponseWriter, r *http.Request) {
	var body createCouncilRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	id, err := s.Councils.CreateSession(r.Context(), body.Participants, domain.SessionConfig{
		Topic:        body.Topic,
		Context:      body.Context,
		Evidence:     body.Evidence,
		SkipEvidence: body.SkipEvidence,
	})
	if err != nil {
		s.fail(w, "CreateCouncil", err)
		return
	}
	snapshot, err := s.Councils.GetSnapshot(r.Context(), id)
	if err != nil {
		s.fail(w, "CreateCouncil", err)
		return
	}
	w.Header().Set("Location", "/api/v1/councils/"+id)
	writeJSON(w, http.StatusCreated, snapshot)
}

// ListCouncils handles GET /api/v1/councils.
func (s *Server) ListCouncils(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid format for parameter limit: %w", err))
		return
	}

	councils := []domain.Summary{}
	for summary := range s.Councils.ListActive() {
		if limit != nil && len(councils) >= *limit {
			break
		}
		councils = append(councils, summary)
	}
	writeJSON(w, http.StatusOK, map[string]any{"councils": councils})
}

// GetCouncil handles GET /api/v1/councils/{id}.
func (s *Server) GetCouncil(w http.ResponseWriter, r *http.Request) {
	id, ok := councilID(w, r)
	if !ok {
		return
	}
	snapshot, err := s.Councils.GetSnapshot(r.Context(), id)
	if err != nil {
		s.fail(w, "GetCouncil", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// SubmitEvent handles POST /api/v1/councils/{id}/events.
func (s *Server) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := councilID(w, r)
	if !ok {
		return
	}
	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if ev.Message != nil {
		content, err := sanitize.Content(ev.Message.Content, 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ev.Message.Content = content
	}
	s.submit(w, r, id, ev)
}

// SubmitMessage handles POST /api/v1/councils/{id}/messages.
func (s *Server) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := councilID(w, r)
	if !ok {
		return
	}
	var msg domain.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	content, err := sanitize.Content(msg.Content, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg.Content = content
	s.submit(w, r, id, domain.AgentMessage(msg))
}

// CancelCouncil handles POST /api/v1/councils/{id}/cancel.
func (s *Server) CancelCouncil(w http.ResponseWriter, r *http.Request) {
	id, ok := councilID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	// The body is optional.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	s.submit(w, r, id, domain.Cancel(body.Reason))
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, id string, ev domain.Event) {
	status, err := s.Councils.SubmitEvent(r.Context(), id, ev)
	if err != nil {
		s.fail(w, "SubmitEvent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

// GetSynthesis handles GET /api/v1/councils/{id}/synthesis.
func (s *Server) GetSynthesis(w http.ResponseWriter, r *http.Request) {
	id, ok := councilID(w, r)
	if !ok {
		return
	}
	snapshot, err := s.Councils.GetSnapshot(r.Context(), id)
	if err != nil {
		s.fail(w, "GetSynthesis", err)
		return
	}
	if snapshot.Result == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("no synthesis: council is %s", snapshot.Status))
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Result)
}

// councilID binds the {id} path parameter.
func councilID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid format for parameter id: %w", err))
		return "", false
	}
	return id, true
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCapacityExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidParticipants):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrTerminalSession):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrManagerClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", status)
	}
	writeError(w, status, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
