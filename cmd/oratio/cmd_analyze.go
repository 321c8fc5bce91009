package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/oratio/internal/analysis"
	"github.com/MrWong99/oratio/internal/app"
	"github.com/MrWong99/oratio/internal/config"
	"github.com/MrWong99/oratio/internal/detect"
	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/pkg/speech"
)

type analyzeFlags struct {
	userID   string
	language string
	context  string
	level    string
	goals    []string
	noAI     bool
	save     bool
	format   string
}

func newAnalyzeCommand(g *globals) *cobra.Command {
	f := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze <transcript.json|->",
		Short: "Analyse a timed transcript and print the report",
		Long: `Analyse a transcript given as JSON: {"text": "...", "words": [{"text", "start_ms", "end_ms", "confidence"}]}.

Use "-" to read the transcript from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, g, f, args[0])
		},
	}

	cmd.Flags().StringVar(&f.userID, "user", "", "user ID; enables history-aware recommendations")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "rule pack language (default: rules.default_language)")
	cmd.Flags().StringVar(&f.context, "context", "general", "speech context: general, interview or presentation")
	cmd.Flags().StringVar(&f.level, "level", "", "speaker level, e.g. beginner or advanced")
	cmd.Flags().StringSliceVar(&f.goals, "goal", nil, "improvement goal (repeatable)")
	cmd.Flags().BoolVar(&f.noAI, "no-ai", false, "skip AI refinement even when a provider is configured")
	cmd.Flags().BoolVar(&f.save, "save", false, "record the session in the history store (requires --user)")
	cmd.Flags().StringVarP(&f.format, "format", "o", "text", "output format: text or json")

	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globals, f *analyzeFlags, path string) error {
	if f.format != "text" && f.format != "json" {
		return &InputError{Err: fmt.Errorf("--format must be text or json, got %q", f.format)}
	}
	if f.save && f.userID == "" {
		return &InputError{Err: errors.New("--save requires --user")}
	}

	tr, err := readTranscript(cmd.InOrStdin(), path)
	if err != nil {
		return &InputError{Err: err}
	}

	cfg := *g.cfg
	if f.noAI {
		off := false
		cfg.AI.Enabled = &off
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(&cfg, reg)
	if err != nil {
		return &InputError{Err: err}
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, &cfg, providers)
	if err != nil {
		return err
	}
	defer a.Shutdown(ctx) //nolint:errcheck

	rep, err := a.Analyze(ctx, analysis.Request{
		UserID:        f.userID,
		Language:      f.language,
		SpeechContext: f.context,
		UserLevel:     f.level,
		Goals:         f.goals,
		Transcript:    tr,
	}, f.save)
	if err != nil {
		if isInputFailure(err) {
			return &InputError{Err: err}
		}
		return err
	}

	out := cmd.OutOrStdout()
	if f.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	printReport(out, rep)
	return nil
}

func isInputFailure(err error) bool {
	var de *detect.Error
	var me *metrics.Error
	return errors.Is(err, analysis.ErrNoTranscript) || errors.As(err, &de) || errors.As(err, &me)
}

func readTranscript(stdin io.Reader, path string) (speech.Transcript, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return speech.Transcript{}, fmt.Errorf("open transcript: %w", err)
		}
		defer f.Close()
		r = f
	}

	var tr speech.Transcript
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tr); err != nil {
		return speech.Transcript{}, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	return tr, nil
}

func printReport(w io.Writer, rep *analysis.Report) {
	m := rep.Metrics
	fmt.Fprintf(w, "Analysis %s (%s)\n", rep.ID, rep.Language)
	fmt.Fprintf(w, "  Overall:     %.1f (%s)\n", m.OverallScore, m.Grade)
	fmt.Fprintf(w, "  Pace:        %.0f wpm, score %.1f\n", m.Speaking.WPM, m.Speaking.PaceScore)
	fmt.Fprintf(w, "  Clarity:     %.1f\n", m.Clarity.Score)
	fmt.Fprintf(w, "  Fluency:     %.1f\n", m.Fluency.Score)
	fmt.Fprintf(w, "  Engagement:  %.1f\n", m.Engagement.Score)
	fmt.Fprintf(w, "  Words:       %d in %.1f min\n", m.Basic.WordCount, m.Basic.DurationMinutes)
	switch md := rep.Refinement; {
	case md.PromptVersion != "" && !md.FallbackMode:
		fmt.Fprintf(w, "  AI:          refined %d segments (%s)\n", md.SegmentsAnalyzed, md.PromptVersion)
	case md.FallbackMode:
		fmt.Fprintln(w, "  AI:          unavailable, rules only")
	default:
		fmt.Fprintln(w, "  AI:          off (rules only)")
	}

	if len(m.Strengths) > 0 {
		fmt.Fprintln(w, "\nStrengths")
		for _, s := range m.Strengths {
			fmt.Fprintf(w, "  + %s\n", s)
		}
	}
	if len(m.AreasForImprovement) > 0 {
		fmt.Fprintln(w, "\nAreas for improvement")
		for _, s := range m.AreasForImprovement {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}

	fmt.Fprintf(w, "\nIssues (%d)\n", len(rep.Issues))
	for _, is := range rep.Issues {
		fmt.Fprintf(w, "  [%s] %-16s %6.1fs  %q\n", is.Severity, is.Kind, float64(is.StartMS)/1000, is.Text)
	}

	if focus := rep.Plan.FocusThisWeek; len(focus) > 0 {
		fmt.Fprintln(w, "\nFocus this week")
		for _, a := range focus {
			fmt.Fprintf(w, "  * %s: %.1f -> %.1f\n", a.Type, a.CurrentValue, a.TargetValue)
			for _, step := range a.ActionableSteps {
				fmt.Fprintf(w, "      %s\n", step)
			}
		}
	}

	var earned []string
	for _, a := range rep.Achievements {
		if a.JustAchieved {
			earned = append(earned, a.Title)
		}
	}
	if len(earned) > 0 {
		fmt.Fprintf(w, "\nNew achievements: %s\n", strings.Join(earned, ", "))
	}
	for _, t := range rep.Tips {
		fmt.Fprintf(w, "Tip: %s\n", t.Text)
	}
	if rep.HistoryFailed {
		fmt.Fprintln(w, "\nwarning: session history unavailable; recommendations ignore past sessions")
	}
}
