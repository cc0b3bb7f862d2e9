// Package audio provides helpers for the raw PCM16 audio format used on the
// wire: base64 framing, sample accounting, and duration math. All audio in
// Pitchlab is 16-bit little-endian mono PCM at 16 kHz unless stated otherwise.
package audio

import (
	"encoding/base64"
	"fmt"
)

const (
	// DefaultSampleRate is the sample rate used end to end: microphone capture,
	// STT streaming, and TTS synthesis.
	DefaultSampleRate = 16000

	// BytesPerSample is the size of one PCM16 sample.
	BytesPerSample = 2
)

// DecodePCM16 decodes a base64 payload into raw PCM16 bytes. It rejects
// payloads whose decoded length is not sample-aligned, since a torn sample
// indicates client-side framing corruption.
func DecodePCM16(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	if len(raw)%BytesPerSample != 0 {
		return nil, fmt.Errorf("audio: payload length %d is not PCM16 aligned", len(raw))
	}
	return raw, nil
}

// EncodePCM16 encodes raw PCM16 bytes into the base64 wire form.
func EncodePCM16(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// SampleCount returns the number of PCM16 samples in pcm.
func SampleCount(pcm []byte) int64 {
	return int64(len(pcm) / BytesPerSample)
}

// DurationMs returns the playback duration in milliseconds of samples at the
// given sample rate, rounded to the nearest millisecond. Returns 0 when the
// sample rate is not positive.
func DurationMs(samples int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	ms := float64(samples) / float64(sampleRate) * 1000
	return int64(ms + 0.5)
}
