package audio

import "math"

const (
	SampleRate    = 22050
	NumChannels   = 1
	BitsPerSample = 16
)

// Audio is mono float32 PCM with samples in [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
}

func NewAudio(samples []float32, sampleRate int) *Audio {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	return &Audio{
		Samples:    samples,
		SampleRate: sampleRate,
	}
}

func (a *Audio) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// PCM16 converts float samples to 16-bit integers, clamping to [-1, 1].
func PCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(clamp(s) * math.MaxInt16)
	}
	return out
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}
