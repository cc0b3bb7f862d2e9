package audio

import (
	"bytes"
	"testing"
)

func TestPCM16RoundTrip(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 640)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	encoded := EncodePCM16(pcm)
	decoded, err := DecodePCM16(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(pcm, decoded) {
		t.Fatal("round-trip did not preserve bytes")
	}
}

func TestDecodePCM16Rejects(t *testing.T) {
	t.Parallel()

	t.Run("invalid base64", func(t *testing.T) {
		t.Parallel()
		if _, err := DecodePCM16("not base64!!"); err == nil {
			t.Fatal("want error for invalid base64")
		}
	})

	t.Run("torn sample", func(t *testing.T) {
		t.Parallel()
		odd := EncodePCM16([]byte{1, 2, 3})
		// EncodePCM16 does not validate; decode must.
		if _, err := DecodePCM16(odd); err == nil {
			t.Fatal("want error for odd-length payload")
		}
	})
}

func TestDurationMs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples int64
		rate    int
		want    int64
	}{
		{"one second at 16k", 16000, 16000, 1000},
		{"320 samples at 16k", 320, 16000, 20},
		{"80000 samples at 16k", 80000, 16000, 5000},
		{"rounding up", 8, 16000, 1}, // 0.5 ms rounds to 1
		{"zero rate", 16000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DurationMs(tt.samples, tt.rate); got != tt.want {
				t.Fatalf("DurationMs(%d, %d) = %d, want %d", tt.samples, tt.rate, got, tt.want)
			}
		})
	}
}

func TestSampleCount(t *testing.T) {
	t.Parallel()
	if got := SampleCount(make([]byte, 640)); got != 320 {
		t.Fatalf("SampleCount = %d, want 320", got)
	}
}
