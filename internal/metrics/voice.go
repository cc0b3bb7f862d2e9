package metrics

import (
	"math"
	"regexp"
	"sort"

	"github.com/pitchlab-ai/pitchlab/pkg/audio"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// VoiceInput is the session state consumed by the voice metrics.
type VoiceInput struct {
	// Segments are the mic capture windows recorded during the call.
	Segments []types.SpeakingSegment

	// STTEvents are the final transcripts with recognition confidence.
	STTEvents []types.STTEvent

	// TotalUserWords is the trainee's word count across all turns.
	TotalUserWords int

	// InterruptionCount is the number of barge-ins during the call.
	InterruptionCount int

	// CallDurationMs is the wall-clock length of the call.
	CallDurationMs int64
}

// VoiceMetrics is the computed result, serialised as-is into the
// call.feedback frame. AvgSTTConfidence is nil when no transcript carried a
// usable confidence, and the field serialises as JSON null so the client can
// distinguish "unknown" from "zero".
type VoiceMetrics struct {
	SpeakingDurationMs int64    `json:"speaking_duration_ms"`
	SilenceDurationMs  int64    `json:"silence_duration_ms"`
	AvgPauseMs         int64    `json:"avg_pause_ms"`
	SpeakingRateWPM    int      `json:"speaking_rate_wpm"`
	PaceLabel          string   `json:"pace_label"`
	HesitationCount    int      `json:"hesitation_count"`
	HesitationRate     float64  `json:"hesitation_rate"`
	AvgSTTConfidence   *float64 `json:"avg_stt_confidence"`
	ConfidenceScore    float64  `json:"confidence_score"`
	VocalClarityScore  float64  `json:"vocal_clarity_score"`
	EnergyScore        float64  `json:"energy_score"`
	InterruptionCount  int      `json:"interruption_count"`
}

// hesitationRe matches spoken hesitation markers in final transcripts.
var hesitationRe = regexp.MustCompile(`(?i)\b(um|uh|uhh|umm|hmm|hm|er|erm|ah|ahh)\b`)

// Pace labels by speaking rate in words per minute. PaceNormal is the
// neutral label used when no speech was recorded at all.
const (
	PaceVerySlow = "very_slow"
	PaceSlow     = "slow"
	PaceIdeal    = "ideal"
	PaceFast     = "fast"
	PaceVeryFast = "very_fast"
	PaceNormal   = "normal"
)

// ScoreWeights holds the baselines, thresholds and deltas behind the three
// composite voice scores. All scores start from Baseline, accumulate deltas,
// and are clamped to [0, 10]. DefaultScoreWeights returns the production
// values; tests may narrow or zero individual deltas.
type ScoreWeights struct {
	Baseline float64

	// Confidence score deltas.
	ConfLowHesitation   float64 // hesitation rate below 2%
	ConfSomeHesitation  float64 // hesitation rate below 5%
	ConfHighHesitation  float64 // hesitation rate above 8%
	ConfHighSTT         float64 // avg STT confidence at or above 0.9
	ConfOKSTT           float64 // avg STT confidence at or above 0.8
	ConfLowSTT          float64 // avg STT confidence below 0.6
	ConfIdealPace       float64
	ConfExtremePace     float64 // very_slow or very_fast
	ConfNoInterruptions float64
	ConfManyInterrupts  float64 // more than 3 barge-ins

	// Vocal clarity score deltas.
	ClarityExcellentSTT  float64 // avg STT confidence at or above 0.95
	ClarityGoodSTT       float64 // avg STT confidence at or above 0.85
	ClarityFairSTT       float64 // avg STT confidence at or above 0.7
	ClarityPoorSTT       float64 // avg STT confidence below 0.6
	ClarityLowHesitation float64 // hesitation rate below 3%
	ClarityHesitant      float64 // hesitation rate above 8%
	ClarityIdealPace     float64
	ClarityRushed        float64 // very_fast

	// Energy score deltas.
	EnergyBriskPace    float64 // 140 wpm or more
	EnergySolidPace    float64 // 120 wpm or more
	EnergyDraggingPace float64 // under 100 wpm
	EnergyTalkative    float64 // speaking at least 40% of the call
	EnergyWithdrawn    float64 // speaking under 15% of the call
	EnergyTightPauses  float64 // average pause under 800 ms
	EnergyLongPauses   float64 // average pause over 2500 ms
	EnergyFluent       float64 // hesitation rate below 2%
}

// DefaultScoreWeights returns the production scoring deltas.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Baseline: 5.0,

		ConfLowHesitation:   1.5,
		ConfSomeHesitation:  0.5,
		ConfHighHesitation:  -1.5,
		ConfHighSTT:         1.5,
		ConfOKSTT:           0.5,
		ConfLowSTT:          -1.0,
		ConfIdealPace:       1.0,
		ConfExtremePace:     -0.5,
		ConfNoInterruptions: 0.5,
		ConfManyInterrupts:  -1.0,

		ClarityExcellentSTT:  2.5,
		ClarityGoodSTT:       1.5,
		ClarityFairSTT:       0.5,
		ClarityPoorSTT:       -1.5,
		ClarityLowHesitation: 1.0,
		ClarityHesitant:      -1.0,
		ClarityIdealPace:     1.0,
		ClarityRushed:        -1.0,

		EnergyBriskPace:    1.5,
		EnergySolidPace:    0.5,
		EnergyDraggingPace: -1.0,
		EnergyTalkative:    1.0,
		EnergyWithdrawn:    -1.0,
		EnergyTightPauses:  1.0,
		EnergyLongPauses:   -1.0,
		EnergyFluent:       0.5,
	}
}

// ComputeVoice derives the voice metrics from the recorded capture windows
// and transcripts. Like ComputeConversation it is pure and total: degenerate
// inputs (no segments, no words, zero duration) produce zeroed metrics, never
// NaN or a panic.
func ComputeVoice(in VoiceInput, w ScoreWeights) VoiceMetrics {
	speakingMs := totalSpeakingMs(in.Segments)
	silenceMs, avgPauseMs := pauseStats(in.Segments)

	wpm := 0
	if speakingMs > 0 {
		wpm = int(math.Round(float64(in.TotalUserWords) / (float64(speakingMs) / 60000)))
	}

	hesitations := countHesitations(in.STTEvents)
	hesitationRate := 0.0
	if in.TotalUserWords > 0 {
		hesitationRate = round1(100 * float64(hesitations) / float64(in.TotalUserWords))
	}

	avgConf := meanConfidence(in.STTEvents)

	m := VoiceMetrics{
		SpeakingDurationMs: speakingMs,
		SilenceDurationMs:  silenceMs,
		AvgPauseMs:         avgPauseMs,
		SpeakingRateWPM:    wpm,
		PaceLabel:          paceLabel(wpm),
		HesitationCount:    hesitations,
		HesitationRate:     hesitationRate,
		AvgSTTConfidence:   avgConf,
		InterruptionCount:  in.InterruptionCount,
	}

	m.ConfidenceScore = confidenceScore(m, w)
	m.VocalClarityScore = clarityScore(m, w)
	m.EnergyScore = energyScore(m, in.CallDurationMs, w)
	return m
}

// totalSpeakingMs sums each segment's audio length, derived from its sample
// count rather than its wall-clock bounds so network jitter in the capture
// window does not inflate it. Segments without a sample count fall back to
// wall-clock duration.
func totalSpeakingMs(segments []types.SpeakingSegment) int64 {
	var total int64
	for _, s := range segments {
		if s.Samples <= 0 {
			if d := s.EndMs - s.StartMs; d > 0 {
				total += d
			}
			continue
		}
		total += audio.DurationMs(s.Samples, s.SampleRate)
	}
	return total
}

// pauseStats measures the gaps between consecutive capture windows, ordered
// by start time. Overlapping or touching windows contribute no silence but
// still count as a pause slot: the average is total silence over the number
// of between-segment gaps, not over the positive ones.
func pauseStats(segments []types.SpeakingSegment) (silenceMs, avgPauseMs int64) {
	if len(segments) < 2 {
		return 0, 0
	}

	ordered := make([]types.SpeakingSegment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StartMs < ordered[j].StartMs })

	for i := 1; i < len(ordered); i++ {
		if gap := ordered[i].StartMs - ordered[i-1].EndMs; gap > 0 {
			silenceMs += gap
		}
	}
	return silenceMs, int64(math.Round(float64(silenceMs) / float64(len(ordered)-1)))
}

func countHesitations(events []types.STTEvent) int {
	n := 0
	for _, ev := range events {
		n += len(hesitationRe.FindAllString(ev.Text, -1))
	}
	return n
}

// meanConfidence averages the positive per-transcript confidences. Returns
// nil when no event carried one.
func meanConfidence(events []types.STTEvent) *float64 {
	var sum float64
	var n int
	for _, ev := range events {
		if ev.Confidence <= 0 {
			continue
		}
		sum += ev.Confidence
		n++
	}
	if n == 0 {
		return nil
	}
	mean := round3(sum / float64(n))
	return &mean
}

func paceLabel(wpm int) string {
	switch {
	case wpm <= 0:
		return PaceNormal
	case wpm < 100:
		return PaceVerySlow
	case wpm < 120:
		return PaceSlow
	case wpm <= 160:
		return PaceIdeal
	case wpm <= 180:
		return PaceFast
	default:
		return PaceVeryFast
	}
}

func confidenceScore(m VoiceMetrics, w ScoreWeights) float64 {
	score := w.Baseline

	switch {
	case m.HesitationRate < 2:
		score += w.ConfLowHesitation
	case m.HesitationRate < 5:
		score += w.ConfSomeHesitation
	case m.HesitationRate > 8:
		score += w.ConfHighHesitation
	}

	if m.AvgSTTConfidence != nil {
		switch c := *m.AvgSTTConfidence; {
		case c >= 0.9:
			score += w.ConfHighSTT
		case c >= 0.8:
			score += w.ConfOKSTT
		case c < 0.6:
			score += w.ConfLowSTT
		}
	}

	switch m.PaceLabel {
	case PaceIdeal:
		score += w.ConfIdealPace
	case PaceVerySlow, PaceVeryFast:
		score += w.ConfExtremePace
	}

	switch {
	case m.InterruptionCount == 0:
		score += w.ConfNoInterruptions
	case m.InterruptionCount > 3:
		score += w.ConfManyInterrupts
	}

	return round1(clamp(score, 0, 10))
}

func clarityScore(m VoiceMetrics, w ScoreWeights) float64 {
	score := w.Baseline

	if m.AvgSTTConfidence != nil {
		switch c := *m.AvgSTTConfidence; {
		case c >= 0.95:
			score += w.ClarityExcellentSTT
		case c >= 0.85:
			score += w.ClarityGoodSTT
		case c >= 0.7:
			score += w.ClarityFairSTT
		case c < 0.6:
			score += w.ClarityPoorSTT
		}
	}

	switch {
	case m.HesitationRate < 3:
		score += w.ClarityLowHesitation
	case m.HesitationRate > 8:
		score += w.ClarityHesitant
	}

	switch m.PaceLabel {
	case PaceIdeal:
		score += w.ClarityIdealPace
	case PaceVeryFast:
		score += w.ClarityRushed
	}

	return round1(clamp(score, 0, 10))
}

func energyScore(m VoiceMetrics, callDurationMs int64, w ScoreWeights) float64 {
	score := w.Baseline

	switch {
	case m.SpeakingRateWPM >= 140:
		score += w.EnergyBriskPace
	case m.SpeakingRateWPM >= 120:
		score += w.EnergySolidPace
	case m.SpeakingRateWPM > 0 && m.SpeakingRateWPM < 100:
		score += w.EnergyDraggingPace
	}

	if callDurationMs > 0 {
		switch share := float64(m.SpeakingDurationMs) / float64(callDurationMs); {
		case share >= 0.4:
			score += w.EnergyTalkative
		case share < 0.15:
			score += w.EnergyWithdrawn
		}
	}

	if m.AvgPauseMs > 0 {
		switch {
		case m.AvgPauseMs < 800:
			score += w.EnergyTightPauses
		case m.AvgPauseMs > 2500:
			score += w.EnergyLongPauses
		}
	}

	if m.HesitationRate < 2 {
		score += w.EnergyFluent
	}

	return round1(clamp(score, 0, 10))
}
