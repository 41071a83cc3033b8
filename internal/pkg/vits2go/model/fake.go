package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrFakeFailure is returned by a FakeSession once its FailOn call is reached.
var ErrFakeFailure = errors.New("fake session failure")

// FakeSession is a deterministic stand-in for an encoder or decoder graph.
// Decoded sample values depend only on the global sample index and the
// conditioning vector, so decoding a frame range in chunks yields the same
// samples as decoding it at once.
type FakeSession struct {
	run func(inputs map[string]*Tensor) (map[string]*Tensor, error)

	mu     sync.Mutex
	calls  []map[string]*Tensor
	FailOn int // 1-based call number that fails; 0 never fails
	closed bool
}

func (f *FakeSession) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, inputs)
	n := len(f.calls)
	f.mu.Unlock()
	if f.FailOn > 0 && n >= f.FailOn {
		return nil, ErrFakeFailure
	}
	return f.run(inputs)
}

func (f *FakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *FakeSession) Closed() bool {
	return f.closed
}

// Calls returns the inputs of every Run call so far.
func (f *FakeSession) Calls() []map[string]*Tensor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]*Tensor(nil), f.calls...)
}

// NewFakeEncoder returns an encoder producing framesPerToken frames per input
// token, scaled by the length scale, with a latent of the given channel count.
func NewFakeEncoder(channels int, framesPerToken float32) *FakeSession {
	return &FakeSession{run: func(inputs map[string]*Tensor) (map[string]*Tensor, error) {
		tokens, err := expect(inputs, "input", Int64, 2)
		if err != nil {
			return nil, err
		}
		lengths, err := expect(inputs, "input_lengths", Int64, 1)
		if err != nil {
			return nil, err
		}
		scales, err := expect(inputs, "scales", Float32, 1)
		if err != nil {
			return nil, err
		}
		sid, err := expect(inputs, "sid", Int64, 1)
		if err != nil {
			return nil, err
		}
		if len(scales.Floats) != 3 {
			return nil, fmt.Errorf("scales has %d values, expected 3", len(scales.Floats))
		}
		n := tokens.Shape[1]
		if lengths.Ints[0] != n {
			return nil, fmt.Errorf("input_lengths %d does not match %d tokens", lengths.Ints[0], n)
		}

		frames := int64(math.Round(float64(float32(n) * framesPerToken * scales.Floats[1])))
		frames = max(frames, 1)

		z := make([]float32, int64(channels)*frames)
		for i := range z {
			z[i] = float32(i%7) * scales.Floats[0]
		}
		mask := make([]float32, frames)
		for i := range mask {
			mask[i] = 1
		}
		g := []float32{float32(sid.Ints[0])}

		return map[string]*Tensor{
			"z":      NewFloat32([]int64{1, int64(channels), frames}, z),
			"y_mask": NewFloat32([]int64{1, 1, frames}, mask),
			"g":      NewFloat32([]int64{1, 1, 1}, g),
		}, nil
	}}
}

// NewFakeDecoder returns a decoder emitting hopLength samples per frame.
func NewFakeDecoder(hopLength int) *FakeSession {
	return &FakeSession{run: func(inputs map[string]*Tensor) (map[string]*Tensor, error) {
		z, err := expect(inputs, "z", Float32, 3)
		if err != nil {
			return nil, err
		}
		if _, err := expect(inputs, "y_mask", Float32, 3); err != nil {
			return nil, err
		}
		g, err := expect(inputs, "g", Float32, 3)
		if err != nil {
			return nil, err
		}
		rng, err := expect(inputs, "range", Int64, 1)
		if err != nil {
			return nil, err
		}
		if len(rng.Ints) != 2 {
			return nil, fmt.Errorf("range has %d values, expected 2", len(rng.Ints))
		}
		first, length := rng.Ints[0], rng.Ints[1]
		if first < 0 || length < 1 || first+length > z.Shape[2] {
			return nil, fmt.Errorf("range [%d,+%d) outside %d frames", first, length, z.Shape[2])
		}

		phase := float64(g.Floats[0])
		out := make([]float32, length*int64(hopLength))
		for i := range out {
			pos := float64(first*int64(hopLength) + int64(i))
			out[i] = float32(0.5 * math.Sin(2*math.Pi*pos/97+phase))
		}
		return map[string]*Tensor{
			"y": NewFloat32([]int64{1, 1, int64(len(out))}, out),
		}, nil
	}}
}

func expect(inputs map[string]*Tensor, name string, dtype DType, rank int) (*Tensor, error) {
	t, ok := inputs[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("missing input %q", name)
	}
	if t.DType != dtype {
		return nil, fmt.Errorf("input %q is %v, expected %v", name, t.DType, dtype)
	}
	if len(t.Shape) != rank {
		return nil, fmt.Errorf("input %q has rank %d, expected %d", name, len(t.Shape), rank)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("input %q: %w", name, err)
	}
	return t, nil
}
