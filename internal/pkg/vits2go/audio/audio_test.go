package audio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func readWAV(t *testing.T, path string) ([]int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.NumChans != NumChannels {
		t.Fatalf("channels = %d, want %d", dec.NumChans, NumChannels)
	}
	if dec.BitDepth != BitsPerSample {
		t.Fatalf("bit depth = %d, want %d", dec.BitDepth, BitsPerSample)
	}
	return buf.Data, int(dec.SampleRate)
}

func TestSaveWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	a := NewAudio([]float32{0, 0.5, -0.5, 1.5, -2}, 22050)

	if err := a.SaveWAV(path); err != nil {
		t.Fatalf("SaveWAV: %v", err)
	}

	data, rate := readWAV(t, path)
	if rate != 22050 {
		t.Fatalf("sample rate = %d, want 22050", rate)
	}
	want := []int{0, 16383, -16383, math.MaxInt16, -math.MaxInt16}
	if len(data) != len(want) {
		t.Fatalf("got %d samples, want %d", len(data), len(want))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, data[i], want[i])
		}
	}
}

func TestWriteWAV(t *testing.T) {
	a := NewAudio([]float32{0, 0.5, -0.5}, 16000)
	var buf bytes.Buffer
	if err := a.WriteWAV(&buf); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	path := filepath.Join(t.TempDir(), "copy.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	data, rate := readWAV(t, path)
	if rate != 16000 || len(data) != 3 || data[1] != 16383 {
		t.Fatalf("got rate %d data %v", rate, data)
	}
}

func TestPCM16LE(t *testing.T) {
	got := PCM16LE([]float32{0, 1, -1})
	want := []byte{0x00, 0x00, 0xff, 0x7f, 0x01, 0x80}
	if !bytes.Equal(got, want) {
		t.Fatalf("PCM16LE = % x, want % x", got, want)
	}
}

func TestAudioDuration(t *testing.T) {
	a := NewAudio(make([]float32, 11025), 22050)
	if got := a.Duration(); got != 0.5 {
		t.Fatalf("Duration() = %v, want 0.5", got)
	}
	if got := NewAudio(nil, 0).SampleRate; got != SampleRate {
		t.Fatalf("default sample rate = %d, want %d", got, SampleRate)
	}
}

func TestWAVSinkIncremental(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.wav")
	sink, err := NewWAVSink(path, 16000)
	if err != nil {
		t.Fatalf("NewWAVSink: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := sink.Write(ctx, make([]float32, 100), 16000); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := sink.Write(ctx, make([]float32, 10), 22050); err == nil {
		t.Fatal("expected sample rate mismatch error")
	}
	if sink.Samples() != 300 {
		t.Fatalf("Samples() = %d, want 300", sink.Samples())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, rate := readWAV(t, path)
	if rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	if len(data) != 300 {
		t.Fatalf("got %d samples, want 300", len(data))
	}
}

func TestBufferSink(t *testing.T) {
	sink := NewBufferSink()
	ctx := context.Background()

	if err := sink.Write(ctx, []float32{1, 2}, 22050); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Write(ctx, []float32{3}, 22050); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Write(ctx, []float32{4}, 16000); err == nil {
		t.Fatal("expected sample rate mismatch error")
	}

	a := sink.Audio()
	if a.SampleRate != 22050 {
		t.Fatalf("SampleRate = %d, want 22050", a.SampleRate)
	}
	if len(a.Samples) != 3 || a.Samples[0] != 1 || a.Samples[2] != 3 {
		t.Fatalf("Samples = %v, want [1 2 3]", a.Samples)
	}
}

func TestChannelSinkOrderAndBackpressure(t *testing.T) {
	sink := NewChannelSink(1)
	ctx := context.Background()

	src := []float32{0.1, 0.2}
	if err := sink.Write(ctx, src, 22050); err != nil {
		t.Fatalf("Write: %v", err)
	}
	src[0] = 9

	// The channel holds one buffer; the next write must block until ctx ends.
	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := sink.Write(blocked, []float32{0.3}, 22050); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Write on full sink = %v, want deadline exceeded", err)
	}

	got := <-sink.C()
	if got.Seq != 0 || got.Samples[0] != 0.1 {
		t.Fatalf("got %+v, want seq 0 with copied samples", got)
	}

	if err := sink.Write(ctx, []float32{0.4}, 22050); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sink.Close()
	sink.Close()

	got = <-sink.C()
	if got.Seq != 1 || got.Samples[0] != 0.4 {
		t.Fatalf("got %+v, want seq 1", got)
	}
	if _, ok := <-sink.C(); ok {
		t.Fatal("expected closed channel")
	}
	if err := sink.Write(ctx, nil, 22050); err == nil {
		t.Fatal("expected error writing to closed sink")
	}
}

func TestSinkFunc(t *testing.T) {
	var total int
	sink := SinkFunc(func(ctx context.Context, samples []float32, sampleRate int) error {
		total += len(samples)
		return nil
	})
	_ = sink.Write(context.Background(), make([]float32, 7), 22050)
	if total != 7 {
		t.Fatalf("total = %d, want 7", total)
	}
}
