// Package audio provides capture sources, loudness metering and the pre-roll ring.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// ClipThreshold is the normalized level above which a sample counts as clipped.
	ClipThreshold = 0.99
)

// Loudness is the analysis result for one buffer.
type Loudness struct {
	RMS   float64 // Root mean square of normalized samples, 0..1
	Clips int     // Samples whose magnitude exceeds ClipThreshold
}

// Analyze computes RMS and clip count over interleaved S16 samples.
// Samples are normalized to [-1,1) before squaring. A clip is a sample whose
// normalized magnitude exceeds ClipThreshold, on either rail.
func Analyze(samples []int16) Loudness {
	if len(samples) == 0 {
		return Loudness{}
	}

	var sumSquares float64
	clips := 0
	for _, s := range samples {
		v := float64(s) / MaxSampleValue
		sumSquares += v * v
		if math.Abs(v) > ClipThreshold {
			clips++
		}
	}

	return Loudness{
		RMS:   math.Sqrt(sumSquares / float64(len(samples))),
		Clips: clips,
	}
}

// DecodeS16LE converts little-endian S16 PCM bytes into samples.
// dst must hold len(src)/2 samples.
func DecodeS16LE(dst []int16, src []byte) {
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
}

// EncodeS16LE converts samples into little-endian S16 PCM bytes.
// dst must hold 2*len(src) bytes.
func EncodeS16LE(dst []byte, src []int16) {
	for i, s := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(s))
	}
}
