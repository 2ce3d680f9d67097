package coral

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/logger"
)

const ssePrefix = "data:"

// EventHandler consumes one event payload. A non-nil error triggers the
// listener's bounded per-event retry.
type EventHandler func(payload string) error

// Listener maintains a best-effort continuous read of the Coral SSE stream,
// reconnecting with exponential backoff on connection loss. The server has
// no resume cursor: events that occur while disconnected are lost.
type Listener struct {
	URL        string
	MaxRetries int

	client       *http.Client
	logger       logger.ILogger
	baseDelay    time.Duration
	eventRetries int
	eventWait    time.Duration

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewListener(url string, maxRetries int, log logger.ILogger) *Listener {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Listener{
		URL:        url,
		MaxRetries: maxRetries,
		// No client-level timeout: this is a long-lived stream. The context
		// carries cancellation.
		client:       &http.Client{},
		logger:       log,
		baseDelay:    2 * time.Second,
		eventRetries: 3,
		eventWait:    1 * time.Second,
		sleep:        sleepCtx,
	}
}

// Listen blocks reading the stream until the context is cancelled, the
// server closes the stream cleanly, a non-200 response is received
// (configuration/auth failure, never retried), or MaxRetries consecutive
// connection failures occur.
func (l *Listener) Listen(ctx context.Context, onEvent EventHandler) error {
	delay := l.baseDelay
	for attempt := 1; attempt <= l.MaxRetries; attempt++ {
		err := l.stream(ctx, onEvent)
		if err == nil {
			// Server ended the stream cleanly.
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			l.logger.Error("Listener", "Failed to connect SSE", map[string]interface{}{
				"url":    l.URL,
				"status": protoErr.Status,
			})
			return err
		}

		l.logger.Warn("Listener", "Connection error, retrying", map[string]interface{}{
			"url":     l.URL,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		if serr := l.sleep(ctx, delay); serr != nil {
			return serr
		}
		// Doubles per reconnect attempt, never reset.
		delay *= 2
	}

	l.logger.Error("Listener", "Max SSE connection retries reached, exiting listener", map[string]interface{}{
		"url": l.URL,
	})
	return fmt.Errorf("sse listener: max connection retries (%d) reached", l.MaxRetries)
}

func (l *Listener) stream(ctx context.Context, onEvent EventHandler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return &TransportError{Op: "create request", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := l.client.Do(req)
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProtocolError{Status: resp.StatusCode, Body: string(body)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
		l.deliver(ctx, onEvent, payload)
	}
	if err := scanner.Err(); err != nil {
		return &TransportError{Op: "stream read", Err: err}
	}
	return nil
}

// deliver calls onEvent with bounded retry. Exhausting the retries drops
// that event and moves on; event loss here is preferable to blocking the
// stream.
func (l *Listener) deliver(ctx context.Context, onEvent EventHandler, payload string) {
	l.logger.Info("Listener", "Received SSE event", map[string]interface{}{
		"payload": payload,
	})
	for i := 1; i <= l.eventRetries; i++ {
		err := onEvent(payload)
		if err == nil {
			return
		}
		l.logger.Warn("Listener", "Event handler error", map[string]interface{}{
			"attempt": i,
			"error":   err.Error(),
		})
		if i < l.eventRetries {
			if serr := l.sleep(ctx, l.eventWait); serr != nil {
				return
			}
		}
	}
	l.logger.Error("Listener", "Event dropped after retries", map[string]interface{}{
		"payload": payload,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
