package refine

import (
	"fmt"
	"strings"

	"github.com/MrWong99/oratio/pkg/provider/llm"
	"github.com/MrWong99/oratio/pkg/speech"
)

// AI call purposes. They label metrics and cache entries.
const (
	purposeEvaluate = "candidate_evaluation"
	purposeSegment  = "speech_analysis"
	purposeClassify = "issue_classification"
	purposeCoaching = "coaching"
)

var systemPrompts = map[string]string{
	purposeEvaluate: `You are a speech coach triaging excerpts of a recorded talk.
Decide whether the excerpt is worth a detailed delivery review. Excerpts with
hesitation, unclear phrasing, weak structure or noticeable pacing problems are
worth reviewing; routine filler-free sentences are not.

Respond with a JSON object:
{
  "recommended_for_ai_analysis": true|false,
  "overall_score": <0-10, how valuable a detailed review would be>,
  "reasons": ["<short reason>", ...],
  "focus_areas": ["pace"|"clarity"|"filler"|"professional"|"confidence"|"engagement", ...]
}`,

	purposeSegment: `You are an experienced speech coach reviewing one excerpt of a recorded talk.
Judge delivery, not content. Look for problems a keyword scan cannot catch:
rambling or run-on sentences, weak openings, vague claims, monotone phrasing,
uncertain tone, unprofessional register, missing structure.

Scores are 0-100. Respond with a JSON object:
{
  "overall_assessment": {
    "summary": "<one or two sentences>",
    "clarity": <0-100>, "confidence": <0-100>, "engagement": <0-100>,
    "professionalism": <0-100>, "pace": <0-100>
  },
  "improvement_areas": [
    {"type": "pace|clarity|filler|professional|confidence|engagement|other",
     "description": "<what is wrong>", "severity": "low|medium|high",
     "text": "<exact words from the excerpt>", "suggestion": "<how to fix it>"}
  ],
  "strengths": ["<strength>", ...],
  "specific_recommendations": ["<actionable recommendation>", ...]
}`,

	purposeClassify: `You are validating speech-delivery issues found by keyword rules.
Rules over-match: "like" used as a verb, "so" starting a genuine conclusion,
or a pause that marks a deliberate emphasis are not problems. For every issue
decide whether it is a real delivery problem.

Respond with a JSON object:
{
  "validated_issues": [
    {"kind": "<issue kind>", "text": "<issue text>", "confidence": <0-1>,
     "severity": "low|medium|high", "reason": "<why it hurts delivery>", "tip": "<fix>"}
  ],
  "false_positives": [
    {"kind": "<issue kind>", "text": "<issue text>", "confidence": <0-1>, "reason": "<why it is fine>"}
  ]
}`,

	purposeCoaching: `You are a personal speech coach. Using the speaker profile and the issues
found in their latest recording, write at most five prioritised coaching
recommendations. Each must be specific and practicable within a week.

Respond with a JSON object:
{
  "recommendations": [
    {"title": "<short title>", "focus": "<issue kind or skill>", "detail": "<two or three sentences>",
     "drills": ["<exercise>", ...], "priority": "high|medium|low"}
  ]
}`,
}

func messages(purpose, user string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompts[purpose]},
		{Role: llm.RoleUser, Content: user},
	}
}

func evaluateMessage(c speech.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Excerpt (%.1fs, %d words, selected by %s", float64(c.DurationMS)/1000, c.WordCount, c.Source)
	if c.IssueKind != "" {
		fmt.Fprintf(&b, " around a %s issue", c.IssueKind)
	}
	fmt.Fprintf(&b, "):\n%s", c.Text)
	return b.String()
}

func segmentMessage(c speech.Candidate, userLevel string, issues []speech.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Speaker level: %s\n", userLevel)
	fmt.Fprintf(&b, "Excerpt duration: %.1fs, %d words\n", float64(c.DurationMS)/1000, c.WordCount)
	if len(issues) > 0 {
		b.WriteString("Issues already flagged by rules in this excerpt:\n")
		for _, is := range issues {
			fmt.Fprintf(&b, "- %s (%s): %q\n", is.Kind, is.Severity, is.Text)
		}
	}
	fmt.Fprintf(&b, "\nExcerpt:\n%s", c.Text)
	return b.String()
}

func classifyMessage(batch []speech.Issue) string {
	var b strings.Builder
	b.WriteString("Issues:\n")
	for i, is := range batch {
		fmt.Fprintf(&b, "%d. kind=%s severity=%s text=%q\n", i+1, is.Kind, is.Severity, is.Text)
	}
	return b.String()
}

func coachingMessage(opts Options, issues []speech.Issue, analyses []SegmentAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Speaker level: %s\nSpeech context: %s\n", opts.UserLevel, opts.SpeechContext)
	if len(opts.Goals) > 0 {
		fmt.Fprintf(&b, "Goals: %s\n", strings.Join(opts.Goals, "; "))
	}
	b.WriteString("\nIssue counts by kind:\n")
	for _, kc := range kindCounts(issues) {
		fmt.Fprintf(&b, "- %s: %d\n", kc.kind, kc.n)
	}
	if len(analyses) > 0 {
		b.WriteString("\nReviewer notes:\n")
		for _, a := range analyses {
			if a.Assessment.Summary != "" {
				fmt.Fprintf(&b, "- %s\n", a.Assessment.Summary)
			}
		}
	}
	return b.String()
}
