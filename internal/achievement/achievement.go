// Package achievement derives gamification milestones and quick tips from a
// user's session history.
//
// Achievements are not stored: they are recomputed from the completed
// sessions on every call. "Today" comes from an injected clock so streaks
// are testable across day boundaries.
package achievement

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/MrWong99/oratio/internal/history"
	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/pkg/speech"
)

// Achievement families.
const (
	FamilyStreak              = "streak"
	FamilySessionMilestone    = "session_milestone"
	FamilyFillerImprovement   = "filler_improvement"
	FamilyClarityMaster       = "clarity_master"
	FamilyPaceControl         = "pace_control"
	FamilyWeeklyFocusChampion = "weekly_focus_champion"
)

// MaxAchievements is the number of achievements [Detector.Detect] returns.
const MaxAchievements = 5

// justAchievedFloor is the fraction of a threshold the current value must
// reach for the threshold to count as just achieved.
const justAchievedFloor = 0.8

// fillerWindow is the number of sessions averaged at each end of the
// history for filler improvement.
const fillerWindow = 3

// minFillerSessions is the history length below which filler improvement is
// undefined.
const minFillerSessions = 5

// weeklyFocusSessions is the number of sessions in one ISO week that
// completes a weekly focus.
const weeklyFocusSessions = 3

type family struct {
	name   string
	ladder []float64
	title  func(threshold float64) string
}

var families = []family{
	{FamilyStreak, []float64{3, 7, 14, 30, 60, 100}, func(t float64) string { return fmt.Sprintf("%.0f-day practice streak", t) }},
	{FamilySessionMilestone, []float64{1, 5, 10, 25, 50, 100}, func(t float64) string {
		if t == 1 {
			return "First session recorded"
		}
		return fmt.Sprintf("%.0f sessions recorded", t)
	}},
	{FamilyFillerImprovement, []float64{10, 25, 50, 75}, func(t float64) string { return fmt.Sprintf("%.0f%% fewer filler words", t) }},
	{FamilyClarityMaster, []float64{70, 80, 90, 95}, func(t float64) string { return fmt.Sprintf("Clarity score %.0f+", t) }},
	{FamilyPaceControl, []float64{3, 5, 10, 20}, func(t float64) string { return fmt.Sprintf("%.0f sessions in your pace range", t) }},
	{FamilyWeeklyFocusChampion, []float64{1, 4, 8, 12}, func(t float64) string {
		if t == 1 {
			return "Weekly focus completed"
		}
		return fmt.Sprintf("%.0f weekly focus goals completed", t)
	}},
}

// Option configures a [Detector].
type Option func(*Detector)

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// WithLocation sets the time zone in which calendar days are counted.
func WithLocation(loc *time.Location) Option {
	return func(d *Detector) {
		d.loc = loc
	}
}

// WithPaceRange sets the user's acceptable words-per-minute range.
func WithPaceRange(minWPM, maxWPM float64) Option {
	return func(d *Detector) {
		d.paceMin, d.paceMax = minWPM, maxWPM
	}
}

// Detector computes achievements. It holds no mutable state.
type Detector struct {
	now              func() time.Time
	loc              *time.Location
	paceMin, paceMax float64
}

// New returns a [Detector] using the wall clock, UTC days and a 140-180 WPM
// pace range unless overridden.
func New(opts ...Option) *Detector {
	d := &Detector{now: time.Now, loc: time.UTC, paceMin: 140, paceMax: 180}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Stats are the per-family current values of a history.
type Stats struct {
	CurrentStreak int
	Sessions      int
	// FillerImprovement is the percent reduction of the filler rate; nil
	// with fewer than five sessions.
	FillerImprovement *float64
	LatestClarity     float64
	PaceStreak        int
	FocusWeeks        int
}

// Stats computes the current values from sessions ordered oldest first.
func (d *Detector) Stats(sessions []history.Session) Stats {
	s := Stats{
		CurrentStreak:     d.CurrentStreak(sessions),
		Sessions:          len(sessions),
		FillerImprovement: FillerImprovement(sessions),
		PaceStreak:        d.PaceStreak(sessions),
		FocusWeeks:        len(d.focusWeeks(sessions)),
	}
	if n := len(sessions); n > 0 {
		s.LatestClarity = sessions[n-1].Metrics.Clarity.Score
	}
	return s
}

func (d *Detector) day(t time.Time) time.Time {
	y, m, dd := t.In(d.loc).Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, d.loc)
}

// CurrentStreak counts consecutive calendar days with at least one session,
// walking backwards from today. A day without a session ends the streak.
func (d *Detector) CurrentStreak(sessions []history.Session) int {
	days := make(map[time.Time]bool, len(sessions))
	for _, s := range sessions {
		days[d.day(s.CreatedAt)] = true
	}
	streak := 0
	for day := d.day(d.now()); days[day]; day = day.AddDate(0, 0, -1) {
		streak++
	}
	return streak
}

// FillerImprovement compares the mean filler rate of the three earliest and
// the three latest sessions and returns the percent reduction. It returns
// nil with fewer than five sessions.
func FillerImprovement(sessions []history.Session) *float64 {
	if len(sessions) < minFillerSessions {
		return nil
	}
	mean := func(ss []history.Session) float64 {
		v := make([]float64, len(ss))
		for i, s := range ss {
			v[i] = s.FillerRate()
		}
		return metrics.Mean(v)
	}
	early := mean(sessions[:fillerWindow])
	late := mean(sessions[len(sessions)-fillerWindow:])
	pct := 0.0
	if early > 0 {
		pct = metrics.Round1((early - late) / early * 100)
	}
	return &pct
}

// PaceStreak counts the most recent consecutive sessions whose WPM lies in
// the pace range, stopping at the first miss.
func (d *Detector) PaceStreak(sessions []history.Session) int {
	n := 0
	for i := len(sessions) - 1; i >= 0; i-- {
		wpm := sessions[i].WPM()
		if wpm < d.paceMin || wpm > d.paceMax {
			break
		}
		n++
	}
	return n
}

// focusWeeks returns, per completed focus week in chronological order, the
// time of the session that completed it.
func (d *Detector) focusWeeks(sessions []history.Session) []time.Time {
	type week struct{ year, week int }
	counts := make(map[week]int)
	var out []time.Time
	for _, s := range sessions {
		y, w := s.CreatedAt.In(d.loc).ISOWeek()
		k := week{y, w}
		counts[k]++
		if counts[k] == weeklyFocusSessions {
			out = append(out, s.CreatedAt)
		}
	}
	return out
}

// Detect returns up to [MaxAchievements] achievements, most recently
// achieved first. sessions must be ordered oldest first.
func (d *Detector) Detect(sessions []history.Session) []speech.Achievement {
	if len(sessions) == 0 {
		return nil
	}
	st := d.Stats(sessions)
	today := d.day(d.now())
	latest := sessions[len(sessions)-1].CreatedAt
	weeks := d.focusWeeks(sessions)

	current := map[string]float64{
		FamilyStreak:              float64(st.CurrentStreak),
		FamilySessionMilestone:    float64(st.Sessions),
		FamilyClarityMaster:       st.LatestClarity,
		FamilyPaceControl:         float64(st.PaceStreak),
		FamilyWeeklyFocusChampion: float64(st.FocusWeeks),
	}
	if st.FillerImprovement != nil {
		current[FamilyFillerImprovement] = *st.FillerImprovement
	}

	// reachedAt estimates when threshold t of a family was crossed.
	reachedAt := func(fam string, t float64) time.Time {
		k := int(t)
		switch fam {
		case FamilyStreak:
			return today.AddDate(0, 0, -(st.CurrentStreak - k))
		case FamilySessionMilestone:
			return sessions[k-1].CreatedAt
		case FamilyPaceControl:
			return sessions[len(sessions)-st.PaceStreak+k-1].CreatedAt
		case FamilyWeeklyFocusChampion:
			return weeks[k-1]
		}
		return latest
	}

	var out []speech.Achievement
	for _, f := range families {
		cur, ok := current[f.name]
		if !ok {
			continue
		}
		for i, t := range f.ladder {
			if cur < t {
				break
			}
			next := math.Inf(1)
			if i+1 < len(f.ladder) {
				next = f.ladder[i+1]
			}
			at := reachedAt(f.name, t)
			out = append(out, speech.Achievement{
				Type:         f.name,
				Title:        f.title(t),
				Threshold:    t,
				CurrentValue: cur,
				AchievedAt:   &at,
				JustAchieved: cur >= justAchievedFloor*t && cur < next,
			})
		}
	}

	slices.SortStableFunc(out, func(a, b speech.Achievement) int {
		return cmp.Or(
			b.AchievedAt.Compare(*a.AchievedAt),
			cmp.Compare(b.Threshold, a.Threshold),
		)
	})
	if len(out) > MaxAchievements {
		out = out[:MaxAchievements]
	}
	return out
}
