// Package vits invokes the two halves of a split VITS graph: the encoder that
// turns phoneme ids into a latent frame sequence, and the decoder that
// renders a frame range of that latent into samples.
package vits

import (
	"context"
	"errors"
	"fmt"

	"vits2go/internal/pkg/vits2go/engine"
	"vits2go/internal/pkg/vits2go/model"
	"vits2go/internal/pkg/vits2go/stream"
)

// Graph input and output names.
const (
	InputTokens  = "input"
	InputLengths = "input_lengths"
	InputScales  = "scales"
	InputSpeaker = "sid"
	InputRange   = "range"

	OutputLatent = "z"
	OutputMask   = "y_mask"
	OutputCond   = "g"
	OutputAudio  = "y"
)

var (
	EncoderInputs  = []string{InputTokens, InputLengths, InputScales, InputSpeaker}
	EncoderOutputs = []string{OutputLatent, OutputMask, OutputCond}
	DecoderInputs  = []string{OutputLatent, OutputMask, InputRange, OutputCond}
	DecoderOutputs = []string{OutputAudio}
)

type Params struct {
	SpeakerID   int64
	NoiseScale  float32
	LengthScale float32
	NoiseScaleW float32
}

// EncoderOutput is the latent for one token sequence. It is read-only once
// returned and shared by every decoder call for the utterance.
type EncoderOutput struct {
	Z      *model.Tensor
	Mask   *model.Tensor
	G      *model.Tensor
	Frames int
}

type Encoder struct {
	session model.Session
}

func NewEncoder(session model.Session) *Encoder {
	return &Encoder{session: session}
}

func (e *Encoder) Encode(ctx context.Context, tokens []int64, p Params) (*EncoderOutput, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty token sequence", engine.ErrTokenization)
	}
	n := int64(len(tokens))
	inputs := map[string]*model.Tensor{
		InputTokens:  model.NewInt64([]int64{1, n}, tokens),
		InputLengths: model.NewInt64([]int64{1}, []int64{n}),
		InputScales:  model.NewFloat32([]int64{3}, []float32{p.NoiseScale, p.LengthScale, p.NoiseScaleW}),
		InputSpeaker: model.NewInt64([]int64{1}, []int64{p.SpeakerID}),
	}

	outputs, err := e.session.Run(ctx, inputs)
	if err != nil {
		return nil, inferenceError("encoder", err)
	}

	out := &EncoderOutput{
		Z:    outputs[OutputLatent],
		Mask: outputs[OutputMask],
		G:    outputs[OutputCond],
	}
	for name, t := range map[string]*model.Tensor{OutputLatent: out.Z, OutputMask: out.Mask, OutputCond: out.G} {
		if t == nil {
			return nil, fmt.Errorf("%w: encoder returned no %q", engine.ErrInference, name)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: encoder output %q: %v", engine.ErrInference, name, err)
		}
	}
	if out.Z.DType != model.Float32 || len(out.Z.Shape) != 3 || out.Z.Shape[0] != 1 {
		return nil, fmt.Errorf("%w: latent has shape %v, expected [1,C,T]", engine.ErrInference, out.Z.Shape)
	}
	out.Frames = int(out.Z.Shape[2])
	if out.Frames < 1 {
		return nil, fmt.Errorf("%w: encoder produced no frames", engine.ErrInference)
	}
	return out, nil
}

type Decoder struct {
	session   model.Session
	hopLength int
}

func NewDecoder(session model.Session, hopLength int) *Decoder {
	return &Decoder{session: session, hopLength: hopLength}
}

func (d *Decoder) HopLength() int {
	return d.hopLength
}

// Decode renders frames [c.FirstFrame, c.FirstFrame+c.Length) of enc. The
// result holds exactly c.Length*hopLength samples, left context included.
func (d *Decoder) Decode(ctx context.Context, enc *EncoderOutput, c stream.Chunk) ([]float32, error) {
	if c.FirstFrame < 0 || c.Length < 1 || c.FirstFrame+c.Length > enc.Frames {
		return nil, fmt.Errorf("%w: %v outside %d frames", engine.ErrInference, c, enc.Frames)
	}
	inputs := map[string]*model.Tensor{
		OutputLatent: enc.Z,
		OutputMask:   enc.Mask,
		OutputCond:   enc.G,
		InputRange:   model.NewInt64([]int64{2}, []int64{int64(c.FirstFrame), int64(c.Length)}),
	}

	outputs, err := d.session.Run(ctx, inputs)
	if err != nil {
		return nil, inferenceError("decoder", err)
	}
	y := outputs[OutputAudio]
	if y == nil || y.DType != model.Float32 {
		return nil, fmt.Errorf("%w: decoder returned no float audio", engine.ErrInference)
	}
	if want := c.Length * d.hopLength; len(y.Floats) != want {
		return nil, fmt.Errorf("%w: decoder returned %d samples for %v, expected %d",
			engine.ErrInference, len(y.Floats), c, want)
	}
	return y.Floats, nil
}

// inferenceError keeps cancellation distinguishable from engine failures.
func inferenceError(stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s failed: %w", engine.ErrInference, stage, err)
}
