package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/config"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/logger"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/coral"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/llm"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/llm/factory"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/llm/failover"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/llm/groq"
)

const systemPrompt = `You are the RegiSphere interface agent. You coordinate worker agents
(firecrawl, opendeepresearch, repounderstanding) to produce comprehensive
compliance assessment reports for software repositories. Answer with the
assessment content only.`

// Runner is the interface agent process: it keeps an SSE connection to the
// Coral server alive, drives the model through the failover gateway for each
// inbound mention, and relays answers back over the protocol client.
type Runner struct {
	gateway  *failover.Gateway
	coral    *coral.Client
	listener *coral.Listener
	agentID  string
	logger   logger.ILogger
}

// mentionEvent is the slice of a Coral SSE event the runner acts on.
type mentionEvent struct {
	SessionID string `json:"sessionId"`
	ThreadID  string `json:"threadId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
}

func NewRunner(cfg *config.Config, log logger.ILogger) (*Runner, error) {
	primary, err := factory.NewLLMProvider(
		cfg.Model.Provider,
		cfg.Model.Name,
		cfg.Model.BaseURL,
		cfg.Model.APIKey,
	)
	if err != nil {
		return nil, err
	}
	fallback := groq.NewGroqProvider("", cfg.Model.GroqAPIKey, cfg.Model.GroqModel)

	opts := []llm.Option{
		llm.WithTemperature(cfg.Model.Temperature),
		llm.WithMaxTokens(cfg.Model.MaxTokens),
	}
	gateway := failover.NewGateway(
		failover.NewProviderInvoker(primary, opts...),
		failover.NewProviderInvoker(fallback, opts...),
		int64(cfg.Model.MaxConcurrent),
		log,
	)

	coralClient := coral.NewClient(
		cfg.Coral.BaseURL,
		cfg.Coral.ApplicationID,
		cfg.Coral.PrivacyKey,
		cfg.Coral.RequestTimeout,
	)

	sseURL := buildSSEURL(cfg.Coral.SSEURL, cfg.Coral.AgentID)
	listener := coral.NewListener(sseURL, cfg.Coral.SSEMaxRetries, log)

	return &Runner{
		gateway:  gateway,
		coral:    coralClient,
		listener: listener,
		agentID:  cfg.Coral.AgentID,
		logger:   log,
	}, nil
}

func buildSSEURL(base, agentID string) string {
	params := url.Values{}
	params.Set("agentId", agentID)
	params.Set("agentDescription", "An agent that takes user input and interacts with other agents to fulfill requests")
	return base + "?" + params.Encode()
}

// Listen blocks reading the Coral event stream until the listener gives up.
// Listener termination is fatal for this process.
func (r *Runner) Listen(ctx context.Context) error {
	r.logger.Info("Agent", "Connecting to Coral Server", map[string]interface{}{
		"url": r.listener.URL,
	})
	return r.listener.Listen(ctx, func(payload string) error {
		return r.handleEvent(ctx, payload)
	})
}

func (r *Runner) handleEvent(ctx context.Context, payload string) error {
	answer, err := r.gateway.Invoke(ctx, systemPrompt+"\n\n"+payload)
	if err != nil {
		return err
	}

	var event mentionEvent
	if jerr := json.Unmarshal([]byte(payload), &event); jerr != nil || event.ThreadID == "" {
		// Not a thread mention; nothing to relay.
		r.logger.Info("Agent", "Processed event without thread context", map[string]interface{}{
			"answer_len": len(answer),
		})
		return nil
	}

	var mentions []string
	if event.SenderID != "" && event.SenderID != r.agentID {
		mentions = []string{event.SenderID}
	}
	if _, err := r.coral.SendMessage(ctx, event.SessionID, event.ThreadID, answer, mentions, r.agentID); err != nil {
		return fmt.Errorf("relay answer: %w", err)
	}
	return nil
}

// Chat answers one direct request from the backend's chat endpoint.
func (r *Runner) Chat(ctx context.Context, message string) (string, error) {
	return r.gateway.Invoke(ctx, systemPrompt+"\n\n"+message)
}
