package coral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a typed HTTP client for the Coral server's session/thread/message
// API. Every call is single-shot: no internal retry, the timeout comes from
// the injected http.Client and the caller's context. Retry policy belongs to
// the caller.
type Client struct {
	BaseURL       string
	ApplicationID string
	PrivacyKey    string
	HTTPClient    *http.Client
}

func NewClient(baseURL, applicationID, privacyKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL:       baseURL,
		ApplicationID: applicationID,
		PrivacyKey:    privacyKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// --- Wire types ---

// AgentSpec describes one agent in the session's agent graph. The shape is
// defined by the Coral server, so it is passed through untyped.
type AgentSpec map[string]interface{}

type AgentGraphRequest struct {
	Agents      []AgentSpec            `json:"agents"`
	Groups      [][]string             `json:"groups"`
	CustomTools map[string]interface{} `json:"customTools"`
}

type createSessionRequest struct {
	ApplicationID     string            `json:"applicationId"`
	SessionID         string            `json:"sessionId"`
	PrivacyKey        string            `json:"privacyKey"`
	AgentGraphRequest AgentGraphRequest `json:"agentGraphRequest"`
}

type Session struct {
	SessionID     string `json:"sessionId"`
	ApplicationID string `json:"applicationId"`
	PrivacyKey    string `json:"privacyKey"`
}

type createThreadRequest struct {
	ThreadName     string   `json:"threadName"`
	ParticipantIDs []string `json:"participantIds"`
}

type Thread struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

type sendMessageRequest struct {
	ThreadID string   `json:"threadId"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions"`
}

// Ack is whatever the server returns for an accepted message.
type Ack map[string]interface{}

// --- Operations ---

// CreateSession registers a new collaboration session with its agent graph.
func (c *Client) CreateSession(ctx context.Context, sessionID string, agents []AgentSpec, groups [][]string, customTools map[string]interface{}) (*Session, error) {
	if groups == nil {
		groups = [][]string{}
	}
	if customTools == nil {
		customTools = map[string]interface{}{}
	}
	payload := createSessionRequest{
		ApplicationID: c.ApplicationID,
		SessionID:     sessionID,
		PrivacyKey:    c.PrivacyKey,
		AgentGraphRequest: AgentGraphRequest{
			Agents:      agents,
			Groups:      groups,
			CustomTools: customTools,
		},
	}

	var session Session
	url := c.BaseURL + "/sessions"
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &session); err != nil {
		return nil, err
	}
	if session.SessionID == "" {
		session.SessionID = sessionID
	}
	return &session, nil
}

// CreateThread opens a debug thread acting as actingAgentID. The server
// rejects the request unless participantIDs contains the acting agent, so
// it is appended when missing.
func (c *Client) CreateThread(ctx context.Context, sessionID, actingAgentID, name string, participantIDs []string) (*Thread, error) {
	found := false
	for _, id := range participantIDs {
		if id == actingAgentID {
			found = true
			break
		}
	}
	if !found {
		participantIDs = append(participantIDs, actingAgentID)
	}

	payload := createThreadRequest{
		ThreadName:     name,
		ParticipantIDs: participantIDs,
	}

	var thread Thread
	url := fmt.Sprintf("%s/debug/thread/%s/%s/%s/%s",
		c.BaseURL, c.ApplicationID, c.PrivacyKey, sessionID, actingAgentID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// SendMessage posts a message into a thread. A non-empty actingAgentID
// selects the debug acting-as mode; otherwise the message is sent as the
// session itself. Mentions are passed through untouched: participant
// validation is the server's job.
func (c *Client) SendMessage(ctx context.Context, sessionID, threadID, content string, mentions []string, actingAgentID string) (Ack, error) {
	if mentions == nil {
		mentions = []string{}
	}
	payload := sendMessageRequest{
		ThreadID: threadID,
		Content:  content,
		Mentions: mentions,
	}

	var url string
	if actingAgentID != "" {
		url = fmt.Sprintf("%s/debug/thread/sendMessage/%s/%s/%s/%s",
			c.BaseURL, c.ApplicationID, c.PrivacyKey, sessionID, actingAgentID)
	} else {
		url = fmt.Sprintf("%s/message/%s/%s/%s",
			c.BaseURL, c.ApplicationID, c.PrivacyKey, sessionID)
	}

	var ack Ack
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &ack); err != nil {
		return nil, err
	}
	return ack, nil
}

// ListSessions fetches all sessions known to the server.
func (c *Client) ListSessions(ctx context.Context) ([]map[string]interface{}, error) {
	var sessions []map[string]interface{}
	if err := c.doJSON(ctx, http.MethodGet, c.BaseURL+"/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListAgents fetches all agents known to the server.
func (c *Client) ListAgents(ctx context.Context) ([]map[string]interface{}, error) {
	var agents []map[string]interface{}
	if err := c.doJSON(ctx, http.MethodGet, c.BaseURL+"/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// --- Internals ---

func (c *Client) doJSON(ctx context.Context, method, url string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewBuffer(payloadBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProtocolError{Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return &ProtocolError{Status: resp.StatusCode, Body: "malformed response: " + err.Error()}
		}
	}
	return nil
}
