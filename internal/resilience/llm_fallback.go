package resilience

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/MrWong99/oratio/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] over an ordered list of LLM backends,
// each with its own circuit breaker. Any backend may answer a given
// request, so the advertised capabilities are those every backend shares.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]

	mu     sync.Mutex
	served map[string]int64
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group:  NewFallbackGroup(primary, primaryName, cfg),
		served: make(map[string]int64),
	}
}

// AddFallback registers another backend, tried after those already added.
// All backends must be added before the first call.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Backends returns the backend names in try order.
func (f *LLMFallback) Backends() []string { return f.group.Names() }

// BreakerStates reports each backend's breaker state.
func (f *LLMFallback) BreakerStates() map[string]State { return f.group.States() }

// Served returns how many completions each backend has answered.
func (f *LLMFallback) Served() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.served)
}

// Complete sends req to the first healthy backend. A JSON-mode request is
// still sent to a backend without native JSON support; the prompt is
// expected to ask for JSON as well.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return executeNamed(ctx, f.group, func(name string, p llm.Provider) (*llm.CompletionResponse, error) {
		r := req
		if r.JSONMode && !p.Capabilities().SupportsJSONMode {
			r.JSONMode = false
		}
		resp, err := p.Complete(ctx, r)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.served[name]++
		f.mu.Unlock()
		if name != f.group.entries[0].name {
			slog.Debug("completion served by fallback", "provider", name)
		}
		return resp, nil
	})
}

// CountTokens delegates to the first healthy backend's estimator.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return ExecuteWithResult(context.Background(), f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities returns the capabilities common to all backends: the
// smallest context window and output limit, and JSON mode only when every
// backend supports it. Zero limits are treated as unknown and ignored.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.group.entries[0].value.Capabilities()
	for _, e := range f.group.entries[1:] {
		c := e.value.Capabilities()
		caps.ContextWindow = minKnown(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = minKnown(caps.MaxOutputTokens, c.MaxOutputTokens)
		caps.SupportsJSONMode = caps.SupportsJSONMode && c.SupportsJSONMode
	}
	return caps
}

func minKnown(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	}
	return min(a, b)
}
