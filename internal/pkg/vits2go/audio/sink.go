package audio

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/wav"
)

// Sink consumes synthesized samples. Write blocks until the samples are
// accepted; synthesis does not continue while a Write is in progress.
type Sink interface {
	Write(ctx context.Context, samples []float32, sampleRate int) error
}

// SinkFunc adapts a callback to the Sink interface.
type SinkFunc func(ctx context.Context, samples []float32, sampleRate int) error

func (f SinkFunc) Write(ctx context.Context, samples []float32, sampleRate int) error {
	return f(ctx, samples, sampleRate)
}

// BufferSink assembles every write into one Audio.
type BufferSink struct {
	samples    []float32
	sampleRate int
}

func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (b *BufferSink) Write(ctx context.Context, samples []float32, sampleRate int) error {
	if b.sampleRate != 0 && b.sampleRate != sampleRate {
		return fmt.Errorf("sample rate changed from %d to %d", b.sampleRate, sampleRate)
	}
	b.sampleRate = sampleRate
	b.samples = append(b.samples, samples...)
	return nil
}

func (b *BufferSink) Audio() *Audio {
	return NewAudio(b.samples, b.sampleRate)
}

// Buffer is one chunk delivered through a ChannelSink.
type Buffer struct {
	Seq        int
	Samples    []float32
	SampleRate int
}

// ChannelSink forwards each write to a bounded channel. When the channel is
// full, Write blocks until the reader catches up or ctx is done.
type ChannelSink struct {
	ch     chan Buffer
	seq    int
	once   sync.Once
	closed bool
}

func NewChannelSink(size int) *ChannelSink {
	if size < 0 {
		size = 0
	}
	return &ChannelSink{ch: make(chan Buffer, size)}
}

func (c *ChannelSink) Write(ctx context.Context, samples []float32, sampleRate int) error {
	if c.closed {
		return fmt.Errorf("write to closed channel sink")
	}
	buf := Buffer{
		Seq:        c.seq,
		Samples:    append([]float32(nil), samples...),
		SampleRate: sampleRate,
	}
	select {
	case c.ch <- buf:
		c.seq++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns the receive side of the sink.
func (c *ChannelSink) C() <-chan Buffer {
	return c.ch
}

// Close closes the channel. It must be called by the writer once synthesis
// has returned.
func (c *ChannelSink) Close() {
	c.once.Do(func() {
		c.closed = true
		close(c.ch)
	})
}

// WAVSink writes samples to a 16-bit WAV file as they arrive. The header
// sizes are patched on Close.
type WAVSink struct {
	f          *os.File
	enc        *wav.Encoder
	sampleRate int
	written    int
}

func NewWAVSink(path string, sampleRate int) (*WAVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &WAVSink{
		f:          f,
		enc:        wav.NewEncoder(f, sampleRate, BitsPerSample, NumChannels, wavFormatPCM),
		sampleRate: sampleRate,
	}, nil
}

func (w *WAVSink) Write(ctx context.Context, samples []float32, sampleRate int) error {
	if sampleRate != w.sampleRate {
		return fmt.Errorf("wav sink expects %d Hz, got %d", w.sampleRate, sampleRate)
	}
	if err := w.enc.Write(intBuffer(samples, sampleRate)); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	w.written += len(samples)
	return nil
}

// Samples returns the number of samples written so far.
func (w *WAVSink) Samples() int {
	return w.written
}

func (w *WAVSink) Close() error {
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize wav: %w", encErr)
	}
	return fileErr
}
