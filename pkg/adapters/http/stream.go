package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/council/pkg/domain"
	"github.com/oapi-codegen/runtime"
)

// StreamManager handles active SSE connections.
// It only carries wake-up notifications; each subscriber diffs the council
// against what it already sent, so late joiners never miss a change.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Subscribers returns the number of open streams on a council.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			// A pending notification already covers this change: the subscriber
			// diffs against the latest snapshot when it catches up.
			sm.logger.Debug("SSE: client buffer full, coalescing", "council_id", sessionID)
		}
	}
}

// Hooks wakes subscribers after every applied event.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnApply: func(_ context.Context, id string, ev domain.Event, _ domain.Status) {
			sm.Broadcast(id, string(ev.Type))
		},
	}
}

// StreamCouncil handles GET /api/v1/councils/{id}/stream (SSE).
// It sends the full council as the first diff, then one diff per change, and
// ends the stream once a terminal status was sent.
func (s *Server) StreamCouncil(w http.ResponseWriter, r *http.Request) {
	id, ok := councilID(w, r)
	if !ok {
		return
	}
	var watch []string
	if err := runtime.BindQueryParameter("form", false, false, "watch", r.URL.Query(), &watch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid format for parameter watch: %w", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}

	// Subscribe before the first read so no change slips between the two.
	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	last, err := s.Councils.GetSnapshot(r.Context(), id)
	if err != nil {
		s.fail(w, "StreamCouncil", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	s.sendDiff(w, domain.Diff(nil, last), watch)
	flusher.Flush()
	if last.Status.IsTerminal() {
		fmt.Fprintf(w, "event: end\ndata: %s\n\n", last.Status)
		flusher.Flush()
		return
	}

	s.logger.Info("SSE: client subscribed", "council_id", id)
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "council_id", id)
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			next, err := s.Councils.GetSnapshot(r.Context(), id)
			if err != nil {
				s.logger.Debug("SSE: council gone", "council_id", id, "err", err)
				return
			}
			s.sendDiff(w, domain.Diff(last, next), watch)
			last = next
			if next.Status.IsTerminal() {
				fmt.Fprintf(w, "event: end\ndata: %s\n\n", next.Status)
				flusher.Flush()
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) sendDiff(w http.ResponseWriter, diff *domain.SessionDiff, watch []string) {
	if diff == nil || !watched(diff, watch) {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("SSE: diff encode failed", "err", err)
		return
	}
	fmt.Fprintf(w, "event: diff\ndata: %s\n\n", data)
}

// watched reports whether diff touches any of the fields a client asked for.
// An empty watch list means everything.
func watched(diff *domain.SessionDiff, watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	for _, field := range watch {
		switch field {
		case "status":
			if diff.Status != nil {
				return true
			}
		case "participants":
			if len(diff.Participants) > 0 {
				return true
			}
		case "messages":
			if len(diff.Messages) > 0 {
				return true
			}
		case "transitions":
			if len(diff.Transitions) > 0 {
				return true
			}
		case "evidence":
			if len(diff.Evidence) > 0 {
				return true
			}
		case "result":
			if diff.Result != nil {
				return true
			}
		}
	}
	return false
}
