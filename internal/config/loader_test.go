package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/oratio/internal/config"
)

func TestValidate_RedisRequiresAddr(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("cache:\n  backend: redis\n"))
	if err == nil || !strings.Contains(err.Error(), "redis_addr") {
		t.Fatalf("expected redis_addr error, got %v", err)
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("history:\n  backend: postgres\n"))
	if err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Fatalf("expected postgres_dsn error, got %v", err)
	}
}

func TestValidate_AIEnabledRequiresLLM(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("ai:\n  enabled: true\n"))
	if err == nil || !strings.Contains(err.Error(), "LLM provider") {
		t.Fatalf("expected LLM provider error, got %v", err)
	}
}

func TestValidate_AIExplicitlyDisabled(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm:
    name: openai
    model: gpt-4o-mini
ai:
  enabled: false
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AI.IsEnabled(cfg.Providers) {
		t.Error("ai.enabled: false must win over a configured provider")
	}
}

func TestValidate_Fallbacks(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm_fallbacks:
    - model: x
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"llm_fallbacks[0].name", "requires providers.llm"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_CandidateDurations(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("candidates:\n  min_duration: 20s\n  max_duration: 5s\n"))
	if err == nil || !strings.Contains(err.Error(), "max_duration") {
		t.Fatalf("expected max_duration error, got %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
cache:
  backend: disk
history:
  backend: postgres
`))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	if n := strings.Count(err.Error(), "\n") + 1; n < 3 {
		t.Errorf("expected at least 3 joined errors, got %d: %v", n, err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"openai", "anthropic", "ollama"} {
		found := false
		for _, n := range config.ValidProviderNames {
			if n == name {
				found = true
			}
		}
		if !found {
			t.Errorf("ValidProviderNames missing %q", name)
		}
	}
}
