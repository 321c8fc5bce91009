package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/oratio/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		got := convertMessage(llm.Message{Role: role, Content: "hello"})
		if got.Role != role {
			t.Errorf("role = %q, want %q", got.Role, role)
		}
		if got.ContentString() != "hello" {
			t.Errorf("content = %q, want %q", got.ContentString(), "hello")
		}
	}
}

func TestBuildParams_JSONMode(t *testing.T) {
	p := &Provider{model: "claude-3-5-haiku-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a speech coach.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Analyse."}},
		Temperature:  0.3,
		MaxTokens:    800,
		JSONMode:     true,
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	sys := params.Messages[0]
	if sys.Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", sys.Role)
	}
	if !strings.HasSuffix(sys.ContentString(), jsonInstruction) {
		t.Errorf("system prompt %q missing JSON instruction", sys.ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 800 {
		t.Errorf("max tokens = %v, want 800", params.MaxTokens)
	}
}

func TestBuildParams_MergesSystemMessages(t *testing.T) {
	p := &Provider{model: "claude-3-5-haiku-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a speech coach.",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Rate filler words strictly."},
			{Role: llm.RoleUser, Content: "Classify these issues."},
		},
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected system + user, got %d messages", len(params.Messages))
	}
	want := "You are a speech coach.\n\nRate filler words strictly."
	if got := params.Messages[0].ContentString(); got != want {
		t.Errorf("system = %q, want %q", got, want)
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("second message role = %q, want user", params.Messages[1].Role)
	}
}

func TestBuildParams_NoSystemPrompt(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("expected unset temperature and max tokens")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model    string
		wantCtx  int
		wantOut  int
		wantJSON bool
	}{
		{"gpt-4o-mini", 128_000, 16_384, true},
		{"GPT-4O", 128_000, 16_384, true},
		{"gpt-4", 8_192, 4_096, false},
		{"gpt-3.5-turbo", 16_385, 4_096, true},
		{"o3-mini", 200_000, 100_000, false},
		{"claude-3-5-sonnet-latest", 200_000, 8_192, false},
		{"claude-3-opus-20240229", 200_000, 4_096, false},
		{"gemini-1.5-pro", 2_097_152, 8_192, true},
		{"gemini-2.0-flash", 1_048_576, 8_192, true},
		{"llama3.1:8b", 128_000, 4_096, false},
		{"llama3:8b", 8_192, 4_096, false},
		{"deepseek-chat", 64_000, 8_192, true},
		{"mistral-large-latest", 32_000, 4_096, true},
		{"phi3", 128_000, 4_096, false},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			caps := modelCapabilities(tc.model)
			if caps.ContextWindow != tc.wantCtx {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tc.wantCtx)
			}
			if caps.MaxOutputTokens != tc.wantOut {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tc.wantOut)
			}
			if caps.SupportsJSONMode != tc.wantJSON {
				t.Errorf("SupportsJSONMode = %v, want %v", caps.SupportsJSONMode, tc.wantJSON)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	_, err := New("nonexistent", "some-model")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "unsupported provider") {
		t.Errorf("error = %v, want unsupported provider", err)
	}
}

func TestNew_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-test-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Capabilities().ContextWindow != 128_000 {
		t.Errorf("unexpected capabilities %+v", p.Capabilities())
	}
	if _, err := NewAnthropic("claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-test")); err != nil {
		t.Errorf("NewAnthropic: %v", err)
	}
}

func TestNew_OllamaNeedsNoKey(t *testing.T) {
	if _, err := NewOllama("llama3.1"); err != nil {
		t.Errorf("NewOllama: %v", err)
	}
}

func TestSupported(t *testing.T) {
	got := Supported()
	if len(got) != 9 || got[0] != "openai" {
		t.Errorf("Supported() = %v", got)
	}
	got[0] = "mutated"
	if Supported()[0] != "openai" {
		t.Error("Supported returned shared slice")
	}
}

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	n, err := p.CountTokens([]llm.Message{
		{Role: llm.RoleUser, Content: "12345678"},
		{Role: llm.RoleAssistant, Content: ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("CountTokens = %d, want 10", n)
	}
}
