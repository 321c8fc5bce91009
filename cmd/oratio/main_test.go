package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/oratio/internal/config"
	"github.com/MrWong99/oratio/pkg/speech"
)

const rulesOnlyYAML = `
server:
  log_level: error
cache:
  backend: none
`

// runCmd runs the root command with args and returns what it printed.
func runCmd(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// transcriptJSON returns n words at a steady 150 wpm with a filler every
// seventh word.
func transcriptJSON(t *testing.T, n int) string {
	t.Helper()
	vocab := strings.Fields("we shipped the new release on time and customers noticed the faster checkout immediately")
	var tr speech.Transcript
	texts := make([]string, n)
	for i := range n {
		texts[i] = vocab[i%len(vocab)]
		if i%7 == 3 {
			texts[i] = "um"
		}
		start := int64(i) * 400
		tr.Words = append(tr.Words, speech.Word{Text: texts[i], StartMS: start, EndMS: start + 320})
	}
	tr.Text = strings.Join(texts, " ") + "."
	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestAnalyze_JSON(t *testing.T) {
	cfgPath := writeFile(t, "oratio.yaml", rulesOnlyYAML)
	trPath := writeFile(t, "talk.json", transcriptJSON(t, 120))

	out, err := runCmd(t, nil, "--config", cfgPath, "analyze", trPath, "--format", "json", "--user", "u1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var rep struct {
		ID       string         `json:"id"`
		UserID   string         `json:"user_id"`
		Language string         `json:"language"`
		Issues   []speech.Issue `json:"issues"`
		Metrics  struct {
			OverallScore float64 `json:"overall_score"`
			Grade        string  `json:"grade"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("output is not a JSON report: %v\n%s", err, out)
	}
	if rep.ID == "" || rep.Metrics.Grade == "" {
		t.Errorf("report missing ID or grade: %+v", rep)
	}
	if rep.UserID != "u1" || rep.Language != "en" {
		t.Errorf("user %q language %q, want u1/en", rep.UserID, rep.Language)
	}

	var fillers int
	for _, is := range rep.Issues {
		if is.Kind == "filler_word" {
			fillers++
		}
	}
	if fillers == 0 {
		t.Error("expected filler issues for repeated 'um'")
	}
}

func TestAnalyze_TextFromStdin(t *testing.T) {
	cfgPath := writeFile(t, "oratio.yaml", rulesOnlyYAML)

	out, err := runCmd(t, strings.NewReader(transcriptJSON(t, 60)), "--config", cfgPath, "analyze", "-")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, want := range []string{"Overall:", "off (rules only)", "filler_word"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyze_InputErrors(t *testing.T) {
	cfgPath := writeFile(t, "oratio.yaml", rulesOnlyYAML)
	good := writeFile(t, "talk.json", transcriptJSON(t, 30))

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"analyze", filepath.Join(t.TempDir(), "nope.json")}},
		{"bad format", []string{"analyze", good, "--format", "xml"}},
		{"save without user", []string{"analyze", good, "--save"}},
		{"empty transcript", []string{"analyze", writeFile(t, "empty.json", `{"text":"","words":[]}`)}},
		{"unknown field", []string{"analyze", writeFile(t, "odd.json", `{"text":"hi","wordz":[]}`)}},
		{"unknown language", []string{"analyze", good, "--language", "zz"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runCmd(t, nil, append([]string{"--config", cfgPath}, tc.args...)...)
			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Errorf("want *InputError, got %T: %v", err, err)
			}
		})
	}
}

func TestRoot_ConfigHandling(t *testing.T) {
	t.Run("explicit missing config fails", func(t *testing.T) {
		_, err := runCmd(t, nil, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "rules", "list")
		var inputErr *InputError
		if !errors.As(err, &inputErr) {
			t.Errorf("want *InputError, got %T: %v", err, err)
		}
	})

	t.Run("invalid config fails", func(t *testing.T) {
		p := writeFile(t, "bad.yaml", "server:\n  log_level: loud\n")
		_, err := runCmd(t, nil, "--config", p, "rules", "list")
		var inputErr *InputError
		if !errors.As(err, &inputErr) {
			t.Errorf("want *InputError, got %T: %v", err, err)
		}
	})

	t.Run("bad log level flag", func(t *testing.T) {
		p := writeFile(t, "oratio.yaml", rulesOnlyYAML)
		_, err := runCmd(t, nil, "--config", p, "--log-level", "chatty", "rules", "list")
		var inputErr *InputError
		if !errors.As(err, &inputErr) {
			t.Errorf("want *InputError, got %T: %v", err, err)
		}
	})
}

func TestRules(t *testing.T) {
	cfgPath := writeFile(t, "oratio.yaml", rulesOnlyYAML)

	out, err := runCmd(t, nil, "--config", cfgPath, "rules", "list")
	if err != nil {
		t.Fatalf("rules list: %v", err)
	}
	if !strings.Contains(out, "en (default)") || !strings.Contains(out, "es") {
		t.Errorf("rules list output:\n%s", out)
	}

	out, err = runCmd(t, nil, "--config", cfgPath, "rules", "show", "en")
	if err != nil {
		t.Fatalf("rules show: %v", err)
	}
	if !strings.Contains(out, "CATEGORY") || !strings.Contains(out, "filler_word") {
		t.Errorf("rules show output:\n%s", out)
	}

	_, err = runCmd(t, nil, "--config", cfgPath, "rules", "show", "zz")
	var inputErr *InputError
	if !errors.As(err, &inputErr) {
		t.Errorf("unknown language: want *InputError, got %T: %v", err, err)
	}
}

func TestBuildProviders(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	for _, name := range []string{"openai-native", "anthropic"} {
		if !slices.Contains(reg.LLMNames(), name) {
			t.Errorf("provider %q not registered in %v", name, reg.LLMNames())
		}
	}

	t.Run("disabled", func(t *testing.T) {
		ps, err := buildProviders(config.Default(), reg)
		if err != nil {
			t.Fatalf("buildProviders: %v", err)
		}
		if ps.Primary.Provider != nil {
			t.Error("primary provider built with AI disabled")
		}
	})

	t.Run("unknown fallback is skipped", func(t *testing.T) {
		cfg := config.Default()
		cfg.Providers.LLM = config.ProviderEntry{Name: "openai-native", APIKey: "sk-test", Model: "gpt-4o-mini"}
		cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "carrier-pigeon"}}
		ps, err := buildProviders(cfg, reg)
		if err != nil {
			t.Fatalf("buildProviders: %v", err)
		}
		if ps.Primary.Provider == nil || ps.Primary.Name != "openai-native" {
			t.Errorf("primary = %+v, want openai-native", ps.Primary)
		}
		if len(ps.Fallbacks) != 0 {
			t.Errorf("fallbacks = %+v, want unknown one skipped", ps.Fallbacks)
		}
	})

	t.Run("unregistered primary fails", func(t *testing.T) {
		cfg := config.Default()
		cfg.Providers.LLM = config.ProviderEntry{Name: "carrier-pigeon"}
		if _, err := buildProviders(cfg, reg); !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("err = %v, want ErrProviderNotRegistered", err)
		}
	})
}

func TestOptString(t *testing.T) {
	opts := map[string]any{"organization": "org-1", "timeout": 30}
	if got := optString(opts, "organization"); got != "org-1" {
		t.Errorf("optString(organization) = %q, want org-1", got)
	}
	if got := optString(opts, "timeout"); got != "" {
		t.Errorf("optString on an int = %q, want empty", got)
	}
	if got := optString(nil, "organization"); got != "" {
		t.Errorf("optString(nil) = %q, want empty", got)
	}

	if n, ok := optInt(opts, "timeout"); !ok || n != 30 {
		t.Errorf("optInt(timeout) = %d, %v; want 30, true", n, ok)
	}
	if _, ok := optInt(opts, "organization"); ok {
		t.Error("optInt on a string reported ok")
	}
}
