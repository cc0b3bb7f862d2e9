// Package difficulty classifies a trainee's recent performance into a call
// difficulty level and provides the persona modifier injected into the
// system prompt.
package difficulty

import (
	"math"

	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// HistoryWindow is how many recent completed sessions feed the classifier.
const HistoryWindow = 10

// minHistory is the number of scored sessions required before the
// classifier trusts the average; below it the default level applies.
const minHistory = 3

// Classification thresholds over the mean overall score.
const (
	beginnerBelow    = 5.0
	intermediateUpTo = 7.5
)

// Assignment is the resolved difficulty for one call, reported to the
// client via difficulty.assigned.
type Assignment struct {
	Level       types.Difficulty
	Averages    map[string]float64
	AutoEnabled bool
}

// modifiers tune how hard the synthetic customer pushes back.
var modifiers = map[types.Difficulty]string{
	types.DifficultyBeginner: `DIFFICULTY: The trainee is new. Be a somewhat receptive customer: raise at most one mild objection, accept reasonable answers, and do not interrupt. Give the trainee room to practise the basics.`,

	types.DifficultyIntermediate: `DIFFICULTY: Be a realistic customer: raise two or three genuine objections, ask for specifics, and only move forward when your concerns have actually been addressed.`,

	types.DifficultyAdvanced: `DIFFICULTY: The trainee is experienced. Be a demanding customer: raise several hard objections, push back on vague claims, bring up a competitor, apply time pressure, and concede nothing without a concrete, specific answer.`,
}

// Select resolves the difficulty level from recent feedback scores.
// With auto mode disabled, or with too little history, the level is
// Intermediate; the persona modifier is applied only in auto mode.
func Select(history []types.FeedbackScores, autoEnabled bool) Assignment {
	a := Assignment{
		Level:       types.DifficultyIntermediate,
		Averages:    averages(history),
		AutoEnabled: autoEnabled,
	}
	if !autoEnabled || len(history) < minHistory {
		return a
	}

	switch mean := a.Averages["overall_score"]; {
	case mean < beginnerBelow:
		a.Level = types.DifficultyBeginner
	case mean <= intermediateUpTo:
		a.Level = types.DifficultyIntermediate
	default:
		a.Level = types.DifficultyAdvanced
	}
	return a
}

// Modifier returns the persona addendum for the assignment, or "" when auto
// mode is disabled.
func (a Assignment) Modifier() string {
	if !a.AutoEnabled {
		return ""
	}
	return modifiers[a.Level]
}

// averages computes the per-metric means over the history, 1-dp rounded.
// Returns an empty map for empty history so the wire frame carries {} and
// not null.
func averages(history []types.FeedbackScores) map[string]float64 {
	out := make(map[string]float64, 4)
	if len(history) == 0 {
		return out
	}

	var overall, objection, clarity, confidence float64
	for _, s := range history {
		overall += s.Overall
		objection += s.ObjectionHandling
		clarity += s.CommunicationClarity
		confidence += s.Confidence
	}
	n := float64(len(history))
	out["overall_score"] = round1(overall / n)
	out["objection_handling"] = round1(objection / n)
	out["communication_clarity"] = round1(clarity / n)
	out["confidence"] = round1(confidence / n)
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
