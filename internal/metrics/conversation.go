// Package metrics computes objective conversation and voice metrics for a
// completed training call. Everything in this package is a pure function over
// the session's recorded state: identical inputs always produce identical
// outputs, which keeps the metrics testable and the client-visible numbers
// stable across releases.
package metrics

import (
	"math"
	"regexp"
	"strings"

	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

// ConversationInput is the session state consumed by the conversation metrics.
type ConversationInput struct {
	// Conversation is the full dialogue including the leading system turn,
	// which is excluded from all word counts.
	Conversation []types.Message

	// TurnTimestamps are the per-turn append times on the session clock.
	TurnTimestamps []types.TurnStamp

	// InterruptionCount is the number of barge-ins during the call.
	InterruptionCount int

	// CallDurationMs is the wall-clock length of the call.
	CallDurationMs int64
}

// ConversationMetrics is the computed result, serialised as-is into the
// call.feedback frame.
type ConversationMetrics struct {
	TalkRatio            float64 `json:"talk_ratio"`
	UserWords            int     `json:"user_words"`
	AgentWords           int     `json:"agent_words"`
	UserWordsPerMinute   int     `json:"user_words_per_minute"`
	UserQuestionsAsked   int     `json:"user_questions_asked"`
	FillerWordCount      int     `json:"filler_word_count"`
	FillerWordRate       float64 `json:"filler_word_rate"`
	AvgTurnLength        float64 `json:"avg_turn_length"`
	LongestMonologue     int     `json:"longest_monologue"`
	PricingDiscussed     bool    `json:"pricing_discussed"`
	CompetitorMentioned  bool    `json:"competitor_mentioned"`
	ClosingAttempted     bool    `json:"closing_attempted"`
	ObjectionLanguage    bool    `json:"objection_language"`
	RapportBuildingCount int     `json:"rapport_building_count"`

	// Customer-side topic flags computed over the assistant turns.
	CustomerRaisedObjection  bool `json:"customer_raised_objection"`
	CustomerRaisedPricing    bool `json:"customer_raised_pricing"`
	CustomerRaisedCompetitor bool `json:"customer_raised_competitor"`

	AvgResponseLatencyMs int64   `json:"avg_response_latency_ms"`
	EngagementScore      float64 `json:"engagement_score"`
	InterruptionCount    int     `json:"interruption_count"`
}

// maxPlausibleLatencyMs filters out latency samples produced by the trainee
// walking away mid-call; anything above this is noise, not responsiveness.
const maxPlausibleLatencyMs = 120000

// questionStarters are the words that mark a sentence as a question when it
// lacks a question mark.
var questionStarters = map[string]bool{
	"who": true, "what": true, "when": true, "where": true, "why": true,
	"how": true, "is": true, "are": true, "do": true, "does": true,
	"did": true, "can": true, "could": true, "would": true, "will": true,
	"shall": true, "should": true, "have": true, "has": true, "had": true,
	"may": true, "might": true,
}

// The keyword dictionaries below are part of the gateway's observable
// behaviour: trainers compare scores across cohorts, so changing a dictionary
// changes history. Word boundaries prevent substring hits inside larger words
// ("cost" must not match "costume" is fine since \b splits on the "u";
// "rate" must not match "separate").
var (
	fillerWordRe = regexp.MustCompile(`(?i)\b(um|uh|uhh|umm|hmm|hm|like|you know|i mean|basically|actually|literally|sort of|kind of|right|okay so|so yeah)\b`)

	objectionRe  = regexp.MustCompile(`(?i)\b(too expensive|not interested|don't need|no budget|think about it|not sure|concerned?|worried|hesitant|can't justify|pushback)\b`)
	pricingRe    = regexp.MustCompile(`(?i)\b(price|pricing|cost|costs|budget|discount|expensive|cheap|afford|quote|fee|rate)\b`)
	competitorRe = regexp.MustCompile(`(?i)\b(competitor|competition|alternative|other vendor|another provider|switching from|currently use|already using)\b`)
	closingRe    = regexp.MustCompile(`(?i)\b(sign up|get started|move forward|next steps?|close the deal|send over the contract|schedule a (call|demo|meeting)|ready to buy|purchase)\b`)
	rapportRe    = regexp.MustCompile(`(?i)\b(how are you|thanks for|thank you|appreciate|great to|nice to|good morning|good afternoon|i understand|that makes sense|absolutely|totally understand)\b`)

	sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
)

// ComputeConversation derives the conversation metrics from the recorded
// dialogue and timing. It never divides by zero: all ratios degrade to 0 when
// their denominator is empty.
func ComputeConversation(in ConversationInput) ConversationMetrics {
	var (
		userTexts  []string
		agentTexts []string
		userWords  int
		agentWords int

		questions        int
		longestMonologue int
	)

	for _, m := range in.Conversation {
		switch m.Role {
		case "user":
			userTexts = append(userTexts, m.Content)
			n := wordCount(m.Content)
			userWords += n
			if n > longestMonologue {
				longestMonologue = n
			}
			if isQuestionTurn(m.Content) {
				questions++
			}
		case "assistant":
			agentTexts = append(agentTexts, m.Content)
			agentWords += wordCount(m.Content)
		}
	}

	userText := strings.Join(userTexts, " ")
	agentText := strings.Join(agentTexts, " ")

	talkRatio := 0.0
	if total := userWords + agentWords; total > 0 {
		talkRatio = round3(float64(userWords) / float64(total))
	}

	wpm := 0
	if in.CallDurationMs > 0 {
		wpm = int(math.Round(float64(userWords) / (float64(in.CallDurationMs) / 60000)))
	}

	fillerCount := len(fillerWordRe.FindAllString(userText, -1))
	fillerRate := 0.0
	if userWords > 0 {
		fillerRate = round1(100 * float64(fillerCount) / float64(userWords))
	}

	avgTurnLength := 0.0
	if n := len(userTexts); n > 0 {
		avgTurnLength = round1(float64(userWords) / float64(n))
	}

	rapportCount := len(rapportRe.FindAllString(userText, -1))

	m := ConversationMetrics{
		TalkRatio:            talkRatio,
		UserWords:            userWords,
		AgentWords:           agentWords,
		UserWordsPerMinute:   wpm,
		UserQuestionsAsked:   questions,
		FillerWordCount:      fillerCount,
		FillerWordRate:       fillerRate,
		AvgTurnLength:        avgTurnLength,
		LongestMonologue:     longestMonologue,
		PricingDiscussed:     pricingRe.MatchString(userText),
		CompetitorMentioned:  competitorRe.MatchString(userText),
		ClosingAttempted:     closingRe.MatchString(userText),
		ObjectionLanguage:    objectionRe.MatchString(userText),
		RapportBuildingCount: rapportCount,

		CustomerRaisedObjection:  objectionRe.MatchString(agentText),
		CustomerRaisedPricing:    pricingRe.MatchString(agentText),
		CustomerRaisedCompetitor: competitorRe.MatchString(agentText),

		AvgResponseLatencyMs: avgResponseLatency(in.TurnTimestamps),
		InterruptionCount:    in.InterruptionCount,
	}

	m.EngagementScore = engagementScore(m, len(userTexts))
	return m
}

// avgResponseLatency is the mean delay of every user→assistant transition,
// filtered to plausible values (0, 120000) ms.
func avgResponseLatency(stamps []types.TurnStamp) int64 {
	var sum, n int64
	for i := 1; i < len(stamps); i++ {
		prev, cur := stamps[i-1], stamps[i]
		if prev.Role != "user" || cur.Role != "assistant" {
			continue
		}
		d := cur.AtMs - prev.AtMs
		if d <= 0 || d >= maxPlausibleLatencyMs {
			continue
		}
		sum += d
		n++
	}
	if n == 0 {
		return 0
	}
	return int64(math.Round(float64(sum) / float64(n)))
}

// engagementScore grades overall conversational engagement on a 0–10 scale
// from a 5.0 baseline.
func engagementScore(m ConversationMetrics, userTurns int) float64 {
	score := 5.0

	switch {
	case m.TalkRatio >= 0.35 && m.TalkRatio <= 0.65:
		score++
	case m.TalkRatio < 0.2 || m.TalkRatio > 0.8:
		score--
	}

	questionRate := 0.0
	if userTurns > 0 {
		questionRate = float64(m.UserQuestionsAsked) / float64(userTurns)
	}
	switch {
	case questionRate >= 0.25:
		score += 1.5
	case questionRate >= 0.10:
		score += 0.75
	}

	switch {
	case m.RapportBuildingCount >= 3:
		score++
	case m.RapportBuildingCount >= 1:
		score += 0.5
	}

	switch {
	case m.FillerWordRate > 5:
		score--
	case m.FillerWordRate > 3:
		score -= 0.5
	}

	if m.ClosingAttempted {
		score += 0.5
	}

	switch {
	case m.AvgTurnLength >= 10 && m.AvgTurnLength <= 50:
		score += 0.5
	case m.AvgTurnLength > 80:
		score -= 0.5
	}

	switch {
	case m.InterruptionCount > 5:
		score--
	case m.InterruptionCount > 2:
		score -= 0.5
	}

	return round1(clamp(score, 0, 10))
}

// isQuestionTurn reports whether a user turn asked a question: it contains a
// question mark or opens a sentence with a recognised question starter.
func isQuestionTurn(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	for _, sentence := range sentenceSplitRe.Split(text, -1) {
		fields := strings.Fields(sentence)
		if len(fields) == 0 {
			continue
		}
		first := strings.ToLower(strings.Trim(fields[0], ",;:'\""))
		if questionStarters[first] {
			return true
		}
	}
	return false
}

// wordCount counts whitespace-separated tokens.
func wordCount(text string) int {
	return len(strings.Fields(text))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
