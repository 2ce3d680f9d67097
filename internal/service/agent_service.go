package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/config"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/logger"

	"golang.org/x/sync/semaphore"
)

// IAgentService sends compliance-assessment requests to the Coral interface
// agent with throttling and backoff.
type IAgentService interface {
	Query(ctx context.Context, repoURL string) (string, error)
	Health(ctx context.Context) map[string]interface{}
}

type agentService struct {
	url         string
	client      *http.Client
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      logger.ILogger

	// sem caps parallel requests to the agent, shared process-wide
	sem *semaphore.Weighted

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

type agentChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
	Stream         bool    `json:"stream"`
}

func NewAgentService(cfg config.AgentConfig, log logger.ILogger) IAgentService {
	maxConcurrent := int64(cfg.MaxConcurrent)
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &agentService{
		url: cfg.URL(),
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		logger:      log,
		sem:         semaphore.NewWeighted(maxConcurrent),
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Query sends a repository URL to the interface agent for a comprehensive
// compliance assessment.
func (as *agentService) Query(ctx context.Context, repoURL string) (string, error) {
	prompt := fmt.Sprintf(`Here is a GitHub repository URL: %s

Generate a comprehensive compliance assessment report including:
- Repository overview
- Compliance analysis
- Risks & gaps
- Final summary.`, repoURL)

	payload := agentChatRequest{
		Message: fmt.Sprintf("Analyze this repo: %s\n\nPrompt: %s", repoURL, prompt),
		Stream:  false,
	}

	// Throttle concurrent calls
	if err := as.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer as.sem.Release(1)

	return as.sendWithBackoff(ctx, payload)
}

// sendWithBackoff POSTs to the agent with exponential backoff on 429/5xx or
// network errors. Any other status is terminal.
func (as *agentService) sendWithBackoff(ctx context.Context, payload agentChatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}

	delay := as.backoffBase
	var lastErr error
	for attempt := 1; attempt <= as.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, as.url, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create agent request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "RegiSphere-Backend/1.0")

		resp, err := as.client.Do(req)
		if err != nil {
			lastErr = err
			as.logger.Warn("AgentService", "Agent request failed", map[string]interface{}{
				"attempt": attempt,
				"retries": as.maxRetries,
				"error":   err.Error(),
			})
			if attempt < as.maxRetries {
				if serr := as.sleep(ctx, delay); serr != nil {
					return "", serr
				}
				delay = minDuration(delay*2, as.backoffMax)
				continue
			}
			return "", fmt.Errorf("agent unreachable after %d attempts: %w", as.maxRetries, lastErr)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", fmt.Errorf("read agent response: %w", readErr)
		}

		if resp.StatusCode == http.StatusOK {
			return extractAgentReply(respBody), nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("agent returned status %d: %s", resp.StatusCode, truncate(respBody, 120))
			as.logger.Warn("AgentService", "Agent over capacity, retrying", map[string]interface{}{
				"status":  resp.StatusCode,
				"attempt": attempt,
				"retries": as.maxRetries,
				"delay":   delay.String(),
			})
			if serr := as.sleep(ctx, delay); serr != nil {
				return "", serr
			}
			delay = minDuration(delay*2, as.backoffMax)
			continue
		}

		// Other error: don't retry
		return "", fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return "", fmt.Errorf("agent failed after %d attempts: %w", as.maxRetries, lastErr)
}

// Health reports whether the agent chat endpoint is reachable.
func (as *agentService) Health(ctx context.Context) map[string]interface{} {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, as.url, nil)
	if err != nil {
		return map[string]interface{}{"status": "error", "error": err.Error()}
	}
	resp, err := as.client.Do(req)
	if err != nil {
		return map[string]interface{}{"status": "unreachable", "error": err.Error()}
	}
	resp.Body.Close()
	return map[string]interface{}{"status": "reachable", "url": as.url}
}

// extractAgentReply pulls the answer out of whichever field the agent used.
func extractAgentReply(body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	for _, key := range []string{"response", "message", "content"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return string(body)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
