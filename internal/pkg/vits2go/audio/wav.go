package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

func (a *Audio) SaveWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, a.SampleRate, BitsPerSample, NumChannels, wavFormatPCM)
	if err := enc.Write(intBuffer(a.Samples, a.SampleRate)); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}

// WriteWAV encodes the audio as a WAV file and copies it to w. The encoder
// needs to seek back to patch the header, so it goes through a temp file.
func (a *Audio) WriteWAV(w io.Writer) error {
	f, err := os.CreateTemp("", "vits2go-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, a.SampleRate, BitsPerSample, NumChannels, wavFormatPCM)
	if err := enc.Write(intBuffer(a.Samples, a.SampleRate)); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind wav: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to copy wav: %w", err)
	}
	return nil
}

// PCM16LE converts float samples to little-endian 16-bit PCM bytes.
func PCM16LE(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range PCM16(samples) {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func intBuffer(samples []float32, sampleRate int) *goaudio.IntBuffer {
	data := make([]int, len(samples))
	for i, s := range PCM16(samples) {
		data[i] = int(s)
	}
	return &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: NumChannels},
		SourceBitDepth: BitsPerSample,
	}
}
