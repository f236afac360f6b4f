package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

type joinRequest struct {
	SessionID string `json:"session_id"`
	TimeoutMS int64  `json:"timeout_ms"`
}

type joinResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type promptRequest struct {
	domain.Prompt
	TimeoutMS int64 `json:"timeout_ms"`
}

// Agents reaches agents through a registry:
//
//	POST {base}/agents/{name}/join    {"session_id", "timeout_ms"} -> {"accepted", "reason"}
//	POST {base}/agents/{name}/prompt  Prompt + "timeout_ms"       -> Message
type Agents struct {
	c *client
}

// NewAgents creates an agent adapter for the registry at baseURL.
func NewAgents(baseURL string, opts ...Option) (*Agents, error) {
	c, err := newClient(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Agents{c: c}, nil
}

func agentPath(agent, action string) string {
	return "/agents/" + url.PathEscape(agent) + "/" + action
}

// Join asks the registry to seat agent in the council.
func (a *Agents) Join(ctx context.Context, agent, sessionID string, timeout time.Duration) error {
	var resp joinResponse
	err := a.c.postJSON(ctx, agentPath(agent, "join"), joinRequest{
		SessionID: sessionID,
		TimeoutMS: timeoutMillis(timeout),
	}, &resp, sessionHeader(sessionID))
	if err != nil {
		return fmt.Errorf("join %s: %w", agent, err)
	}
	if !resp.Accepted {
		reason := resp.Reason
		if reason == "" {
			reason = "declined"
		}
		return fmt.Errorf("join %s: %s", agent, reason)
	}
	return nil
}

// SendAndAwait delivers prompt and waits for the agent's reply.
func (a *Agents) SendAndAwait(ctx context.Context, agent string, prompt domain.Prompt, timeout time.Duration) (domain.Message, error) {
	var msg domain.Message
	err := a.c.postJSON(ctx, agentPath(agent, "prompt"), promptRequest{
		Prompt:    prompt,
		TimeoutMS: timeoutMillis(timeout),
	}, &msg, sessionHeader(prompt.SessionID))
	if err != nil {
		return domain.Message{}, fmt.Errorf("prompt %s: %w", agent, err)
	}
	msg.Agent = agent
	return msg, nil
}

func sessionHeader(id string) http.Header {
	return http.Header{"X-Council-Id": []string{id}}
}
