package coral

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "app", "priv", 5*time.Second)
}

func TestCreateSession(t *testing.T) {
	var gotPath string
	var gotBody createSessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Session{SessionID: "sess-1", ApplicationID: "app"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	agents := []AgentSpec{
		{"id": "interface", "description": "orchestrator"},
	}
	session, err := c.CreateSession(context.Background(), "sess-1", agents, nil, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if gotPath != "/sessions" {
		t.Errorf("path = %q, want /sessions", gotPath)
	}
	if gotBody.ApplicationID != "app" || gotBody.PrivacyKey != "priv" {
		t.Errorf("credentials = %q/%q, want app/priv", gotBody.ApplicationID, gotBody.PrivacyKey)
	}
	if len(gotBody.AgentGraphRequest.Agents) != 1 {
		t.Errorf("agents = %d, want 1", len(gotBody.AgentGraphRequest.Agents))
	}
	if gotBody.AgentGraphRequest.Groups == nil || gotBody.AgentGraphRequest.CustomTools == nil {
		t.Error("nil groups/customTools not normalized to empty")
	}
	if session.SessionID != "sess-1" {
		t.Errorf("session id = %q, want sess-1", session.SessionID)
	}
}

func TestCreateThreadAppendsActingAgent(t *testing.T) {
	var gotPath string
	var gotBody createThreadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(Thread{ID: "thread-1", Name: gotBody.ThreadName})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	thread, err := c.CreateThread(context.Background(), "sess-1", "interface", "compliance-sess-1",
		[]string{"firecrawl", "repounderstanding"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	want := "/debug/thread/app/priv/sess-1/interface"
	if gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	found := false
	for _, id := range gotBody.ParticipantIDs {
		if id == "interface" {
			found = true
		}
	}
	if !found {
		t.Errorf("acting agent missing from participants: %v", gotBody.ParticipantIDs)
	}
	if thread.ID != "thread-1" {
		t.Errorf("thread id = %q, want thread-1", thread.ID)
	}
}

func TestSendMessageModes(t *testing.T) {
	tests := []struct {
		name          string
		actingAgentID string
		wantPath      string
	}{
		{"acting as agent", "interface", "/debug/thread/sendMessage/app/priv/sess-1/interface"},
		{"as session", "", "/message/app/priv/sess-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			var gotBody sendMessageRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				json.NewDecoder(r.Body).Decode(&gotBody)
				w.Write([]byte(`{"accepted":true}`))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			ack, err := c.SendMessage(context.Background(), "sess-1", "thread-1",
				"Analyze this repo", []string{"interface"}, tt.actingAgentID)
			if err != nil {
				t.Fatalf("SendMessage: %v", err)
			}

			if gotPath != tt.wantPath {
				t.Errorf("path = %q, want %q", gotPath, tt.wantPath)
			}
			if gotBody.ThreadID != "thread-1" || gotBody.Content != "Analyze this repo" {
				t.Errorf("body = %+v", gotBody)
			}
			if len(gotBody.Mentions) != 1 || gotBody.Mentions[0] != "interface" {
				t.Errorf("mentions = %v, want [interface]", gotBody.Mentions)
			}
			if ack["accepted"] != true {
				t.Errorf("ack = %v", ack)
			}
		})
	}
}

func TestSendMessageUnknownMentionPassesThrough(t *testing.T) {
	var gotBody sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// Participant validation is the server's job; the client must not filter.
	c := newTestClient(srv.URL)
	if _, err := c.SendMessage(context.Background(), "sess-1", "thread-1",
		"hi", []string{"unknown-agent"}, "interface"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(gotBody.Mentions) != 1 || gotBody.Mentions[0] != "unknown-agent" {
		t.Errorf("mentions = %v, want [unknown-agent]", gotBody.Mentions)
	}
}

func TestSendMessageNormalizesNilMentions(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.SendMessage(context.Background(), "sess-1", "thread-1", "hi", nil, ""); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if string(raw["mentions"]) != "[]" {
		t.Errorf("mentions wire value = %s, want []", raw["mentions"])
	}
}

func TestNon2xxReturnsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ListSessions(context.Background())
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("error = %v, want *ProtocolError", err)
	}
	if protoErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", protoErr.Status)
	}
	if protoErr.Retryable() {
		t.Error("404 classified as retryable")
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ListAgents(context.Background())
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("error = %v, want *ProtocolError", err)
	}
	if !protoErr.Retryable() {
		t.Error("500 not classified as retryable")
	}
}

func TestTransportErrorWrapsCause(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "app", "priv", 500*time.Millisecond)
	_, err := c.ListSessions(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if transportErr.Unwrap() == nil {
		t.Error("transport error has no cause")
	}
}
