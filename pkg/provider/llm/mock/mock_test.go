package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/oratio/pkg/provider/llm"
)

func TestProvider_Script(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	p := &Provider{
		Script:           []Reply{{Content: `{"validated_issues":[]}`}, {Err: boom}},
		CompleteResponse: JSON(`{"fallback":true}`),
	}
	ctx := context.Background()

	resp, err := p.Complete(ctx, llm.CompletionRequest{})
	if err != nil || resp.Content != `{"validated_issues":[]}` {
		t.Fatalf("first reply = %+v, %v", resp, err)
	}
	if _, err := p.Complete(ctx, llm.CompletionRequest{}); !errors.Is(err, boom) {
		t.Fatalf("second reply err = %v, want %v", err, boom)
	}
	resp, err = p.Complete(ctx, llm.CompletionRequest{})
	if err != nil || resp.Content != `{"fallback":true}` {
		t.Fatalf("after script = %+v, %v", resp, err)
	}
	if p.CallCount() != 3 {
		t.Errorf("CallCount = %d, want 3", p.CallCount())
	}
}

func TestProvider_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Provider{CompleteResponse: JSON(`{}`)}
	if _, err := p.Complete(ctx, llm.CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if p.CallCount() != 1 {
		t.Errorf("cancelled call not recorded")
	}
}

func TestProvider_Reset(t *testing.T) {
	t.Parallel()

	p := &Provider{TokenCount: 7}
	_, _ = p.Complete(context.Background(), llm.CompletionRequest{})
	_, _ = p.CountTokens(nil)
	_ = p.Capabilities()
	p.Reset()
	if p.CallCount() != 0 || len(p.CountTokensCalls) != 0 || p.CapabilitiesCallCount != 0 {
		t.Errorf("Reset left records: %+v", p)
	}
}
