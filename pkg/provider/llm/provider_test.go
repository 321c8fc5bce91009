package llm

import (
	"errors"
	"testing"
)

func TestCheckFinish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		jsonMode bool
		reason   string
		want     error
	}{
		{"json stopped", true, FinishStop, nil},
		{"json truncated", true, FinishLength, ErrTruncated},
		{"text truncated", false, FinishLength, nil},
		{"json unknown reason", true, "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := CheckFinish(CompletionRequest{JSONMode: tc.jsonMode}, &CompletionResponse{FinishReason: tc.reason})
			if !errors.Is(err, tc.want) {
				t.Errorf("CheckFinish = %v, want %v", err, tc.want)
			}
		})
	}
	if err := CheckFinish(CompletionRequest{JSONMode: true}, nil); err != nil {
		t.Errorf("CheckFinish(nil response) = %v, want nil", err)
	}
}

func TestUsageAdd(t *testing.T) {
	t.Parallel()

	got := Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}.
		Add(Usage{PromptTokens: 50, CompletionTokens: 5, TotalTokens: 55})
	if want := (Usage{PromptTokens: 150, CompletionTokens: 25, TotalTokens: 175}); got != want {
		t.Errorf("Add = %+v, want %+v", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	n := EstimateTokens([]Message{
		{Role: RoleSystem, Content: "You are a speech coach."}, // 23 chars -> 6
		{Role: RoleUser, Content: ""},
	})
	if n != 6+4+4 {
		t.Errorf("EstimateTokens = %d, want 14", n)
	}
}
