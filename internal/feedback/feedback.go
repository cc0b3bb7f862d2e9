// Package feedback runs the end-of-call scoring rubric: a single LLM request
// with a strict-JSON instruction, parsed and validated into a Payload. A
// response that is not valid JSON or misses a required field degrades to the
// sentinel payload; the call report is always delivered.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm"
	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// ErrFeedbackParse marks a rubric reply that could not be turned into a
// Payload: no JSON, malformed JSON, or missing required fields.
var ErrFeedbackParse = errors.New("feedback: unparsable rubric response")

// Payload is the scored rubric delivered in call.feedback.
type Payload struct {
	OverallScore          float64  `json:"overall_score"`
	Strengths             []string `json:"strengths"`
	Weaknesses            []string `json:"weaknesses"`
	ObjectionHandling     float64  `json:"objection_handling"`
	CommunicationClarity  float64  `json:"communication_clarity"`
	Confidence            float64  `json:"confidence"`
	MissedOpportunities   []string `json:"missed_opportunities"`
	ActionableSuggestions []string `json:"actionable_suggestions"`

	// Error marks the sentinel payload emitted when scoring failed.
	Error bool `json:"error,omitempty"`
}

// Scores extracts the numeric rubric scores for persistence and the
// difficulty selector.
func (p Payload) Scores() types.FeedbackScores {
	return types.FeedbackScores{
		Overall:              p.OverallScore,
		ObjectionHandling:    p.ObjectionHandling,
		CommunicationClarity: p.CommunicationClarity,
		Confidence:           p.Confidence,
	}
}

// requiredFields must all be present in the LLM's JSON response.
var requiredFields = []string{
	"overall_score",
	"strengths",
	"weaknesses",
	"objection_handling",
	"communication_clarity",
	"confidence",
	"missed_opportunities",
	"actionable_suggestions",
}

const rubricInstruction = `You are an expert sales trainer reviewing a practice call between a sales trainee (the "Salesperson") and a simulated customer. Evaluate the salesperson's performance.

Respond with ONLY a JSON object, no markdown, no commentary, with EXACTLY these fields:
{
  "overall_score": <number 0-10>,
  "strengths": [<strings>],
  "weaknesses": [<strings>],
  "objection_handling": <number 0-10>,
  "communication_clarity": <number 0-10>,
  "confidence": <number 0-10>,
  "missed_opportunities": [<strings>],
  "actionable_suggestions": [<strings>]
}

Transcript:
`

// Sentinel is the payload emitted when the rubric could not be produced.
func Sentinel() Payload {
	return Payload{
		Error:                 true,
		Strengths:             []string{},
		Weaknesses:            []string{"Feedback generation failed. Please try the call again."},
		MissedOpportunities:   []string{},
		ActionableSuggestions: []string{},
	}
}

// Scorer produces the end-of-call rubric.
type Scorer struct {
	llm llm.Provider
}

// New creates a scorer on top of the given LLM provider.
func New(p llm.Provider) *Scorer {
	return &Scorer{llm: p}
}

// Score requests and parses the rubric for the finished call. On any failure
// it returns the sentinel payload alongside the error; the payload is always
// usable.
func (s *Scorer) Score(ctx context.Context, conversation []types.Message) (Payload, error) {
	request := []types.Message{{
		Role:    "user",
		Content: rubricInstruction + formatTranscript(conversation),
	}}

	reply, err := s.llm.Generate(ctx, request)
	if err != nil {
		return Sentinel(), fmt.Errorf("feedback: generate rubric: %w", err)
	}

	payload, err := Parse(reply)
	if err != nil {
		return Sentinel(), err
	}
	return payload, nil
}

// Parse validates and decodes a raw LLM reply into a Payload. Markdown code
// fences around the JSON object are tolerated; missing required fields are
// not.
func Parse(raw string) (Payload, error) {
	body, ok := extractJSON(raw)
	if !ok {
		return Payload{}, fmt.Errorf("%w: no JSON object", ErrFeedbackParse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrFeedbackParse, err)
	}
	for _, name := range requiredFields {
		if _, present := fields[name]; !present {
			return Payload{}, fmt.Errorf("%w: missing field %q", ErrFeedbackParse, name)
		}
	}

	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrFeedbackParse, err)
	}

	p.OverallScore = clampScore(p.OverallScore)
	p.ObjectionHandling = clampScore(p.ObjectionHandling)
	p.CommunicationClarity = clampScore(p.CommunicationClarity)
	p.Confidence = clampScore(p.Confidence)
	return p, nil
}

// extractJSON slices out the outermost {...} of the reply, tolerating code
// fences and prose around it.
func extractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func formatTranscript(conversation []types.Message) string {
	var b strings.Builder
	for _, m := range conversation {
		switch m.Role {
		case "user":
			b.WriteString("Salesperson: ")
		case "assistant":
			b.WriteString("Customer: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "(no dialogue)"
	}
	return b.String()
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
