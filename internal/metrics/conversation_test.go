package metrics

import (
	"reflect"
	"testing"

	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

func sampleConversation() ConversationInput {
	return ConversationInput{
		Conversation: []types.Message{
			{Role: "system", Content: "You are a skeptical customer."},
			{Role: "user", Content: "Um, how much does it cost? Like, seriously?"},
			{Role: "assistant", Content: "It's $99."},
		},
		TurnTimestamps: []types.TurnStamp{
			{Role: "user", AtMs: 0},
			{Role: "assistant", AtMs: 2000},
		},
		InterruptionCount: 0,
		CallDurationMs:    60000,
	}
}

func TestComputeConversation(t *testing.T) {
	t.Parallel()

	m := ComputeConversation(sampleConversation())

	if m.UserWords != 8 {
		t.Errorf("UserWords = %d, want 8", m.UserWords)
	}
	if m.AgentWords != 2 {
		t.Errorf("AgentWords = %d, want 2", m.AgentWords)
	}
	if m.TalkRatio != 0.8 {
		t.Errorf("TalkRatio = %v, want 0.8", m.TalkRatio)
	}
	if m.UserWordsPerMinute != 8 {
		t.Errorf("UserWordsPerMinute = %d, want 8", m.UserWordsPerMinute)
	}
	if m.UserQuestionsAsked != 1 {
		t.Errorf("UserQuestionsAsked = %d, want 1", m.UserQuestionsAsked)
	}
	// "Um" and "Like" are fillers.
	if m.FillerWordCount != 2 {
		t.Errorf("FillerWordCount = %d, want 2", m.FillerWordCount)
	}
	if m.FillerWordRate != 25.0 {
		t.Errorf("FillerWordRate = %v, want 25.0", m.FillerWordRate)
	}
	if m.AvgTurnLength != 8.0 {
		t.Errorf("AvgTurnLength = %v, want 8.0", m.AvgTurnLength)
	}
	if m.LongestMonologue != 8 {
		t.Errorf("LongestMonologue = %d, want 8", m.LongestMonologue)
	}
	if !m.PricingDiscussed {
		t.Error("PricingDiscussed = false, want true (\"cost\")")
	}
	if m.CompetitorMentioned {
		t.Error("CompetitorMentioned = true, want false")
	}
	if m.AvgResponseLatencyMs != 2000 {
		t.Errorf("AvgResponseLatencyMs = %d, want 2000", m.AvgResponseLatencyMs)
	}
}

func TestComputeConversationDeterministic(t *testing.T) {
	t.Parallel()

	in := sampleConversation()
	first := ComputeConversation(in)
	second := ComputeConversation(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestComputeConversationEmpty(t *testing.T) {
	t.Parallel()

	m := ComputeConversation(ConversationInput{})

	if m.TalkRatio != 0 {
		t.Errorf("TalkRatio = %v, want 0", m.TalkRatio)
	}
	if m.FillerWordRate != 0 {
		t.Errorf("FillerWordRate = %v, want 0", m.FillerWordRate)
	}
	if m.AvgTurnLength != 0 {
		t.Errorf("AvgTurnLength = %v, want 0", m.AvgTurnLength)
	}
	if m.AvgResponseLatencyMs != 0 {
		t.Errorf("AvgResponseLatencyMs = %d, want 0", m.AvgResponseLatencyMs)
	}
	if m.EngagementScore < 0 || m.EngagementScore > 10 {
		t.Errorf("EngagementScore = %v, out of range", m.EngagementScore)
	}
}

func TestAvgResponseLatencyFiltersOutliers(t *testing.T) {
	t.Parallel()

	got := avgResponseLatency([]types.TurnStamp{
		{Role: "user", AtMs: 0},
		{Role: "assistant", AtMs: 1000},
		{Role: "user", AtMs: 5000},
		{Role: "assistant", AtMs: 5000 + 300000}, // trainee walked away
		{Role: "user", AtMs: 400000},
		{Role: "assistant", AtMs: 403000},
	})
	if got != 2000 {
		t.Fatalf("latency = %d, want 2000 (mean of 1000 and 3000)", got)
	}
}

func TestAvgResponseLatencyIgnoresNonTransitions(t *testing.T) {
	t.Parallel()

	got := avgResponseLatency([]types.TurnStamp{
		{Role: "assistant", AtMs: 0},
		{Role: "assistant", AtMs: 500},
		{Role: "user", AtMs: 1000},
	})
	if got != 0 {
		t.Fatalf("latency = %d, want 0", got)
	}
}

func TestIsQuestionTurn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"question mark", "That seems high?", true},
		{"starter word", "What would change your mind. I want to know.", true},
		{"starter mid-sentence only", "I wonder about pricing.", false},
		{"second sentence starter", "Fair enough. Could we revisit the terms.", true},
		{"plain statement", "Our product saves you time.", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isQuestionTurn(tt.text); got != tt.want {
				t.Errorf("isQuestionTurn(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTopicDictionaries(t *testing.T) {
	t.Parallel()

	in := ConversationInput{
		Conversation: []types.Message{
			{Role: "user", Content: "I'd love to schedule a demo and get started. Thanks for your time, I understand your concerns. Absolutely."},
			{Role: "assistant", Content: "Honestly this feels too expensive, and we're already using another provider."},
		},
		CallDurationMs: 60000,
	}
	m := ComputeConversation(in)

	if !m.ClosingAttempted {
		t.Error("ClosingAttempted = false, want true")
	}
	if m.RapportBuildingCount != 3 {
		t.Errorf("RapportBuildingCount = %d, want 3", m.RapportBuildingCount)
	}
	if !m.CustomerRaisedObjection {
		t.Error("CustomerRaisedObjection = false, want true")
	}
	if !m.CustomerRaisedPricing {
		t.Error("CustomerRaisedPricing = false, want true (\"expensive\")")
	}
	if !m.CustomerRaisedCompetitor {
		t.Error("CustomerRaisedCompetitor = false, want true")
	}
}

func TestFillerWordBoundaries(t *testing.T) {
	t.Parallel()

	// "umbrella" and "likelihood" must not count; "you know" is one hit.
	in := ConversationInput{
		Conversation: []types.Message{
			{Role: "user", Content: "The umbrella likelihood is, you know, um, fine."},
		},
		CallDurationMs: 60000,
	}
	m := ComputeConversation(in)
	if m.FillerWordCount != 2 {
		t.Fatalf("FillerWordCount = %d, want 2", m.FillerWordCount)
	}
}

func TestEngagementScoreClamped(t *testing.T) {
	t.Parallel()

	in := ConversationInput{
		Conversation: []types.Message{
			{Role: "user", Content: "Um like uh you know basically actually literally um uh"},
		},
		InterruptionCount: 9,
		CallDurationMs:    60000,
	}
	m := ComputeConversation(in)
	if m.EngagementScore < 0 || m.EngagementScore > 10 {
		t.Fatalf("EngagementScore = %v, out of [0,10]", m.EngagementScore)
	}
}
