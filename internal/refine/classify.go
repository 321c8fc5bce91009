package refine

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/oratio/internal/cache"
	"github.com/MrWong99/oratio/pkg/speech"
)

// Confidence assigned to rule issues the AI did not mention, and to issues
// it flagged as false positives when it gave no confidence of its own.
const (
	notReviewedConfidence = 0.6
	validatedConfidence   = 0.8
	rejectedConfidence    = 0.1
)

// Verdict is the AI's judgement on one rule issue.
type Verdict struct {
	Kind       string   `json:"kind"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Severity   string   `json:"severity,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Tip        string   `json:"tip,omitempty"`
}

// Classification is the AI's reply for one batch of rule issues.
type Classification struct {
	Validated      []Verdict `json:"validated_issues"`
	FalsePositives []Verdict `json:"false_positives"`
}

var errNoVerdicts = errors.New("reply has neither validated_issues nor false_positives")

// validClassification rejects replies that carry neither verdict list. An
// explicitly empty list is a valid answer; a missing one is not.
func validClassification(c Classification) error {
	if c.Validated == nil && c.FalsePositives == nil {
		return errNoVerdicts
	}
	return nil
}

type classifyTally struct {
	validated, rejected, notReviewed int
}

// ClassifyIssues validates one batch of rule issues and returns them
// annotated. Issues rated below ConfidenceThreshold are dropped. On AI
// failure the batch is returned unchanged together with the error.
func (r *Refiner) ClassifyIssues(ctx context.Context, batch []speech.Issue) ([]speech.Issue, error) {
	out, _, err := r.newRun(Options{}).classifyBatch(ctx, batch)
	return out, err
}

func (rn *run) classify(ctx context.Context, issues []speech.Issue) ([]speech.Issue, classifyTally) {
	var out []speech.Issue
	var total classifyTally
	size := rn.r.cfg.BatchSize
	for start := 0; start < len(issues); start += size {
		batch := issues[start:min(start+size, len(issues))]
		annotated, tally, err := rn.classifyBatch(ctx, batch)
		if err != nil {
			out = append(out, batch...)
			continue
		}
		out = append(out, annotated...)
		total.validated += tally.validated
		total.rejected += tally.rejected
		total.notReviewed += tally.notReviewed
	}
	return out, total
}

func classifyKey(batch []speech.Issue, version string) string {
	var b strings.Builder
	for _, is := range batch {
		b.WriteString(is.Kind)
		b.WriteByte('\x1f')
		b.WriteString(is.Text)
		b.WriteByte('\x1e')
	}
	return cache.Key(purposeClassify, b.String(), version)
}

func (rn *run) classifyBatch(ctx context.Context, batch []speech.Issue) ([]speech.Issue, classifyTally, error) {
	if len(batch) == 0 {
		return nil, classifyTally{}, nil
	}
	reply, err := cached[Classification](ctx, rn, purposeClassify, classifyKey(batch, rn.r.cfg.PromptVersion),
		messages(purposeClassify, classifyMessage(batch)), validClassification)
	if err != nil {
		return batch, classifyTally{}, err
	}

	var out []speech.Issue
	var tally classifyTally
	for _, is := range batch {
		annotated := rn.verdictFor(is, reply)
		switch annotated.ValidationStatus {
		case speech.ValidationValidated:
			tally.validated++
		case speech.ValidationRejected:
			tally.rejected++
			continue
		default:
			tally.notReviewed++
		}
		if annotated.ConfidenceOr(0) < rn.r.cfg.ConfidenceThreshold {
			continue
		}
		out = append(out, annotated)
	}
	return out, tally, nil
}

// verdictFor merges the AI verdict matching is. Text similarity takes
// precedence over kind equality; among kind-only matches validated verdicts
// win over false positives.
func (rn *run) verdictFor(is speech.Issue, c Classification) speech.Issue {
	thr := rn.r.cfg.SimilarityThreshold
	bestSim, bestValid, bestIdx := 0.0, false, -1
	for i, v := range c.Validated {
		if s := Jaccard(is.Text, v.Text); s > thr && s > bestSim {
			bestSim, bestValid, bestIdx = s, true, i
		}
	}
	for i, v := range c.FalsePositives {
		if s := Jaccard(is.Text, v.Text); s > thr && s > bestSim {
			bestSim, bestValid, bestIdx = s, false, i
		}
	}
	if bestIdx < 0 {
		for i, v := range c.Validated {
			if rn.sameKind(is.Kind, v.Kind) {
				bestValid, bestIdx = true, i
				break
			}
		}
	}
	if bestIdx < 0 {
		for i, v := range c.FalsePositives {
			if rn.sameKind(is.Kind, v.Kind) {
				bestValid, bestIdx = false, i
				break
			}
		}
	}

	switch {
	case bestIdx < 0:
		return is.Annotate(speech.Annotation{
			Confidence:       speech.Ptr(notReviewedConfidence),
			ValidationStatus: speech.ValidationNotReviewed,
		})
	case bestValid:
		v := c.Validated[bestIdx]
		a := speech.Annotation{
			Source:           speech.SourceRuleAIValidated,
			Rationale:        v.Reason,
			Tip:              v.Tip,
			Confidence:       speech.Ptr(clamp01(v.Confidence, validatedConfidence)),
			ValidationStatus: speech.ValidationValidated,
		}
		if v.Severity != "" {
			a.Severity = speech.ParseSeverity(strings.ToLower(v.Severity))
		}
		return is.Annotate(a)
	default:
		v := c.FalsePositives[bestIdx]
		conf := rejectedConfidence
		if v.Confidence != nil {
			conf = 1 - clamp01(v.Confidence, 1-rejectedConfidence)
		}
		return is.Annotate(speech.Annotation{
			Rationale:        v.Reason,
			Confidence:       &conf,
			ValidationStatus: speech.ValidationRejected,
		})
	}
}

func clamp01(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return max(0, min(1, *v))
}

// NormalizeKind lower-cases k and replaces spaces and hyphens with
// underscores.
func NormalizeKind(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, k)
}

// sameKind reports whether a and b name the same kind, tolerating small
// spelling differences.
func (rn *run) sameKind(a, b string) bool {
	a, b = NormalizeKind(a), NormalizeKind(b)
	if a == "" || b == "" {
		return false
	}
	return a == b || matchr.JaroWinkler(a, b, false) >= rn.r.cfg.KindMatchThreshold
}

// relatedKind reports whether a and b are the same kind or share a
// similar-kind group.
func (rn *run) relatedKind(a, b string) bool {
	if rn.sameKind(a, b) {
		return true
	}
	a, b = NormalizeKind(a), NormalizeKind(b)
	for _, g := range rn.r.cfg.SimilarKindGroups {
		var hasA, hasB bool
		for _, k := range g {
			hasA = hasA || k == a
			hasB = hasB || k == b
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Jaccard returns the word-set overlap of a and b in [0,1].
func Jaccard(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	set := make(map[string]uint8, len(wa)+len(wb))
	for _, w := range wa {
		set[w] |= 1
	}
	for _, w := range wb {
		set[w] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}
