package difficulty

import (
	"testing"

	"github.com/pitchlab-ai/pitchlab/pkg/types"
)

func scores(overall ...float64) []types.FeedbackScores {
	out := make([]types.FeedbackScores, len(overall))
	for i, v := range overall {
		out[i] = types.FeedbackScores{
			Overall:              v,
			ObjectionHandling:    v,
			CommunicationClarity: v,
			Confidence:           v,
		}
	}
	return out
}

func TestSelectLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history []types.FeedbackScores
		want    types.Difficulty
	}{
		{"struggling", scores(3, 4, 5), types.DifficultyBeginner},
		{"just under beginner cutoff", scores(4.9, 4.9, 4.9), types.DifficultyBeginner},
		{"middle of the road", scores(6, 7, 6.5), types.DifficultyIntermediate},
		{"exactly at upper cutoff", scores(7.5, 7.5, 7.5), types.DifficultyIntermediate},
		{"strong performer", scores(8, 9, 8.5), types.DifficultyAdvanced},
		{"no history", nil, types.DifficultyIntermediate},
		{"too little history", scores(9, 9), types.DifficultyIntermediate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := Select(tt.history, true)
			if a.Level != tt.want {
				t.Errorf("level = %q, want %q", a.Level, tt.want)
			}
			if a.Modifier() == "" {
				t.Error("auto mode must apply a modifier")
			}
		})
	}
}

func TestSelectDisabled(t *testing.T) {
	t.Parallel()

	a := Select(scores(9, 9, 9, 9), false)
	if a.Level != types.DifficultyIntermediate {
		t.Errorf("level = %q, want intermediate when disabled", a.Level)
	}
	if a.Modifier() != "" {
		t.Errorf("modifier = %q, want none when disabled", a.Modifier())
	}
}

func TestAverages(t *testing.T) {
	t.Parallel()

	history := []types.FeedbackScores{
		{Overall: 6, ObjectionHandling: 4, CommunicationClarity: 8, Confidence: 5},
		{Overall: 7, ObjectionHandling: 5, CommunicationClarity: 7, Confidence: 6},
		{Overall: 8, ObjectionHandling: 6, CommunicationClarity: 6, Confidence: 7},
	}
	a := Select(history, true)

	for metric, want := range map[string]float64{
		"overall_score":         7.0,
		"objection_handling":    5.0,
		"communication_clarity": 7.0,
		"confidence":            6.0,
	} {
		if got := a.Averages[metric]; got != want {
			t.Errorf("averages[%s] = %v, want %v", metric, got, want)
		}
	}
}

func TestAveragesEmptyHistoryIsEmptyMap(t *testing.T) {
	t.Parallel()

	a := Select(nil, true)
	if a.Averages == nil {
		t.Fatal("averages must be non-nil for wire serialisation")
	}
	if len(a.Averages) != 0 {
		t.Fatalf("averages = %v, want empty", a.Averages)
	}
}
