package failover

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/internal/pkg/logger"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/llm"

	"golang.org/x/sync/semaphore"
)

// Invoker is one "run the agent" capability backed by a single provider.
// The gateway treats its output as opaque.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, input string) (string, error)
}

// Gateway executes one logical invocation against the primary provider and
// fails over to the fallback exactly once when the primary signals capacity
// exhaustion. Any other error propagates unchanged, as does a fallback
// failure. The semaphore is shared process-wide and bounds every attempt,
// primary and fallback alike.
type Gateway struct {
	primary  Invoker
	fallback Invoker
	sem      *semaphore.Weighted
	logger   logger.ILogger
}

func NewGateway(primary, fallback Invoker, maxConcurrent int64, log logger.ILogger) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Gateway{
		primary:  primary,
		fallback: fallback,
		sem:      semaphore.NewWeighted(maxConcurrent),
		logger:   log,
	}
}

func (g *Gateway) Invoke(ctx context.Context, input string) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	out, err := g.primary.Invoke(ctx, input)
	if err == nil {
		g.logger.Info("Failover", "Invocation succeeded", map[string]interface{}{
			"provider": g.primary.Name(),
		})
		return out, nil
	}

	if !IsCapacityExhausted(err) {
		g.logger.Error("Failover", "Invocation failed", map[string]interface{}{
			"provider": g.primary.Name(),
			"error":    err.Error(),
		})
		return "", err
	}

	g.logger.Warn("Failover", "Primary provider over capacity, switching to fallback", map[string]interface{}{
		"provider": g.primary.Name(),
		"fallback": g.fallback.Name(),
		"error":    err.Error(),
	})

	out, ferr := g.fallback.Invoke(ctx, input)
	if ferr != nil {
		g.logger.Error("Failover", "Fallback invocation failed", map[string]interface{}{
			"provider": g.fallback.Name(),
			"error":    ferr.Error(),
		})
		return "", ferr
	}

	g.logger.Info("Failover", "Invocation succeeded", map[string]interface{}{
		"provider": g.fallback.Name(),
	})
	return out, nil
}

// IsCapacityExhausted reports whether err means the provider cannot serve
// the request right now, as opposed to a permanent request error. Provider
// errors arrive in two shapes: a structured status on the provider client's
// *llm.APIError, or a generic error with the code embedded in its message
// (transport-level failures, vendor code 3505 has no structured signal at
// all). Both checks are required.
func IsCapacityExhausted(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "3505")
}

// ProviderInvoker adapts an llm.LLMProvider into an Invoker.
type ProviderInvoker struct {
	provider llm.LLMProvider
	opts     []llm.Option
}

func NewProviderInvoker(provider llm.LLMProvider, opts ...llm.Option) *ProviderInvoker {
	return &ProviderInvoker{provider: provider, opts: opts}
}

func (p *ProviderInvoker) Name() string {
	return p.provider.Name()
}

func (p *ProviderInvoker) Invoke(ctx context.Context, input string) (string, error) {
	return p.provider.Generate(ctx, input, p.opts...)
}
