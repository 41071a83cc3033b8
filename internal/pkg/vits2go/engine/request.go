package engine

import (
	"fmt"
	"math"
	"strings"
)

// Request is one synthesis call. Zero scale fields select the engine defaults.
type Request struct {
	Text        string  `json:"text"`
	SpeakerID   int     `json:"speaker_id"`
	Speed       float32 `json:"speed"`
	NoiseScale  float32 `json:"noise_scale,omitempty"`
	NoiseScaleW float32 `json:"noise_scale_w,omitempty"`
	LengthScale float32 `json:"length_scale,omitempty"`
}

// Validate rejects requests that must never reach the engine.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is empty", ErrValidation)
	}
	if r.SpeakerID < 0 {
		return fmt.Errorf("%w: speaker id must be non-negative, got %d", ErrValidation, r.SpeakerID)
	}
	if !finite(r.Speed) || r.Speed <= 0 {
		return fmt.Errorf("%w: speed must be positive, got %v", ErrValidation, r.Speed)
	}
	for name, v := range map[string]float32{
		"noise scale":   r.NoiseScale,
		"noise scale w": r.NoiseScaleW,
		"length scale":  r.LengthScale,
	} {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %v", ErrValidation, name, v)
		}
	}
	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
