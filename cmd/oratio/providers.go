package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/oratio/internal/app"
	"github.com/MrWong99/oratio/internal/config"
	"github.com/MrWong99/oratio/pkg/provider/llm"
	"github.com/MrWong99/oratio/pkg/provider/llm/anyllm"
	"github.com/MrWong99/oratio/pkg/provider/llm/openai"
)

// registerBuiltinProviders registers every LLM backend shipped with oratio.
// "openai-native" talks to the OpenAI API through the official SDK; the
// other names go through any-llm-go.
func registerBuiltinProviders(reg *config.Registry) {
	for _, name := range anyllm.Supported() {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d, err := time.ParseDuration(optString(entry.Options, "timeout")); err == nil {
			opts = append(opts, openai.WithTimeout(d))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	slog.Debug("registered llm providers", "names", reg.LLMNames())
}

// buildProviders creates the configured primary and fallback backends. An
// unregistered or failing fallback is logged and skipped; a failing
// primary is an error.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	if !cfg.AI.IsEnabled(cfg.Providers) {
		return ps, nil
	}

	entry := cfg.Providers.LLM
	p, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	ps.Primary = app.NamedLLM{Name: entry.Name, Provider: p}
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)

	for i, fb := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(fb)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("fallback provider not registered, skipping", "index", i, "name", fb.Name)
			continue
		}
		if err != nil {
			slog.Warn("fallback provider failed to initialise, skipping", "index", i, "name", fb.Name, "err", err)
			continue
		}
		ps.Fallbacks = append(ps.Fallbacks, app.NamedLLM{Name: fmt.Sprintf("%s#%d", fb.Name, i+1), Provider: p})
		slog.Info("provider created", "kind", "llm_fallback", "name", fb.Name, "model", fb.Model)
	}
	return ps, nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a provider Options map. YAML
// decodes plain numbers as int.
func optInt(opts map[string]any, key string) (int, bool) {
	n, ok := opts[key].(int)
	return n, ok
}
