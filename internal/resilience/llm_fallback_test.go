package resilience

import (
	"context"
	"errors"
	"maps"
	"slices"
	"testing"

	"github.com/MrWong99/oratio/pkg/provider/llm"
	llmmock "github.com/MrWong99/oratio/pkg/provider/llm/mock"
)

func newLLMFallback(primary, secondary *llmmock.Provider) *LLMFallback {
	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)
	return fb
}

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	jsonCaps := llm.ModelCapabilities{SupportsJSONMode: true}
	ok := func(s string) *llmmock.Provider {
		return &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: s}, ModelCapabilities: jsonCaps}
	}
	down := func() *llmmock.Provider {
		return &llmmock.Provider{CompleteErr: errors.New("down"), ModelCapabilities: jsonCaps}
	}

	tests := []struct {
		name               string
		primary, secondary *llmmock.Provider
		want               string
		wantErr            error
		wantServed         map[string]int64
	}{
		{"primary answers", ok(`{"from":"primary"}`), ok(`{"from":"secondary"}`), `{"from":"primary"}`, nil, map[string]int64{"primary": 1}},
		{"failover", down(), ok(`{"from":"secondary"}`), `{"from":"secondary"}`, nil, map[string]int64{"secondary": 1}},
		{"all fail", down(), down(), "", ErrAllFailed, map[string]int64{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fb := newLLMFallback(tc.primary, tc.secondary)
			resp, err := fb.Complete(context.Background(), llm.CompletionRequest{JSONMode: true})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if got := fb.Served(); !maps.Equal(got, tc.wantServed) {
				t.Errorf("Served() = %v, want %v", got, tc.wantServed)
			}
			if err != nil {
				return
			}
			if resp.Content != tc.want {
				t.Errorf("content = %q, want %q", resp.Content, tc.want)
			}
			if calls := tc.primary.Calls(); len(calls) != 1 || !calls[0].Req.JSONMode {
				t.Errorf("primary calls = %+v, want one JSON-mode request", calls)
			}
		})
	}
}

func TestLLMFallback_CountTokens(t *testing.T) {
	t.Parallel()

	fb := newLLMFallback(
		&llmmock.Provider{CountTokensErr: errors.New("count failed")},
		&llmmock.Provider{TokenCount: 42},
	)
	count, err := fb.CountTokens([]llm.Message{{Role: llm.RoleUser, Content: "test"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Fatalf("count = %d, want 42", count)
	}
}

func TestLLMFallback_JSONModeDowngrade(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("down"), ModelCapabilities: llm.ModelCapabilities{SupportsJSONMode: true}}
	plain := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"ok":true}`}}
	fb := newLLMFallback(primary, plain)

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{JSONMode: true}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if calls := primary.Calls(); len(calls) != 1 || !calls[0].Req.JSONMode {
		t.Errorf("primary should receive the JSON-mode request, got %+v", calls)
	}
	if calls := plain.Calls(); len(calls) != 1 || calls[0].Req.JSONMode {
		t.Errorf("backend without JSON support got JSONMode=true: %+v", calls)
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		primary, secondary llm.ModelCapabilities
		want               llm.ModelCapabilities
	}{
		{
			name:      "smallest window wins",
			primary:   llm.ModelCapabilities{ContextWindow: 128000, MaxOutputTokens: 16384, SupportsJSONMode: true},
			secondary: llm.ModelCapabilities{ContextWindow: 32000, MaxOutputTokens: 4096, SupportsJSONMode: true},
			want:      llm.ModelCapabilities{ContextWindow: 32000, MaxOutputTokens: 4096, SupportsJSONMode: true},
		},
		{
			name:      "json only if shared",
			primary:   llm.ModelCapabilities{ContextWindow: 128000, SupportsJSONMode: true},
			secondary: llm.ModelCapabilities{ContextWindow: 200000},
			want:      llm.ModelCapabilities{ContextWindow: 128000},
		},
		{
			name:      "unknown limits ignored",
			primary:   llm.ModelCapabilities{},
			secondary: llm.ModelCapabilities{ContextWindow: 8192, MaxOutputTokens: 2048},
			want:      llm.ModelCapabilities{ContextWindow: 8192, MaxOutputTokens: 2048},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fb := newLLMFallback(&llmmock.Provider{ModelCapabilities: tc.primary}, &llmmock.Provider{ModelCapabilities: tc.secondary})
			if got := fb.Capabilities(); got != tc.want {
				t.Errorf("Capabilities() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestLLMFallback_Metadata(t *testing.T) {
	t.Parallel()

	fb := newLLMFallback(&llmmock.Provider{}, &llmmock.Provider{})

	if got := fb.Backends(); !slices.Equal(got, []string{"primary", "secondary"}) {
		t.Errorf("Backends() = %v", got)
	}
	for name, s := range fb.BreakerStates() {
		if s != StateClosed {
			t.Errorf("%s state = %v, want closed", name, s)
		}
	}
}
