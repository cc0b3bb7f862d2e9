// Package types contains the value types shared across the Pitchlab voice
// training gateway: conversation messages, STT transcripts, timing records,
// and feedback scores. Keeping them here avoids import cycles between the
// provider packages and the session core.
package types

// Message is a single turn in the conversation passed to the LLM.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the plain-text body of the turn.
	Content string `json:"content"`
}

// TurnStamp records when a conversation turn was appended, on the session's
// monotonic clock.
type TurnStamp struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// AtMs is milliseconds since the session's call start.
	AtMs int64 `json:"at_ms"`
}

// SpeakingSegment describes one contiguous span of trainee speech.
type SpeakingSegment struct {
	// StartMs and EndMs bound the segment on the session's monotonic clock.
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`

	// Samples is the number of PCM16 samples received during the segment.
	// Zero means the sample count is unknown and wall-clock duration is used.
	Samples int64 `json:"samples"`

	// SampleRate is the segment's sample rate in Hz.
	SampleRate int `json:"sample_rate"`
}

// STTEvent records one final STT result with its arrival time, used by the
// voice metrics engine.
type STTEvent struct {
	Text string `json:"text"`

	// AtMs is milliseconds since call start when the final arrived.
	AtMs int64 `json:"at_ms"`

	// Confidence is the mean word confidence, 0 when unavailable.
	Confidence float64 `json:"confidence,omitempty"`
}

// Difficulty is the persona difficulty level assigned to a call.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// IsValid reports whether d is a recognised difficulty level.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// FeedbackScores holds the rubric scores of one completed session, as stored
// by the persistence layer and consumed by the difficulty selector.
type FeedbackScores struct {
	Overall              float64 `json:"overall_score"`
	ObjectionHandling    float64 `json:"objection_handling"`
	CommunicationClarity float64 `json:"communication_clarity"`
	Confidence           float64 `json:"confidence"`
}
