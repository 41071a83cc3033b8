package engine

import (
	"context"
	"time"

	"vits2go/internal/pkg/vits2go/audio"
)

// Engine synthesizes speech for one loaded model. Calls on a single engine are
// serialized; the engine owns its inference sessions until Close.
type Engine interface {
	// Generate synthesizes the whole request and returns the assembled audio.
	Generate(ctx context.Context, req Request) (*audio.Audio, error)
	// Stream synthesizes the request chunk by chunk, writing each trimmed chunk to
	// sink in frame order. It blocks while the sink blocks.
	Stream(ctx context.Context, req Request, sink audio.Sink) error
	Info() EngineInfo
	Close() error
}

type EngineInfo struct {
	Name        string
	Languages   []string
	SampleRate  int
	HopLength   int
	NumSpeakers int
}

type EngineConfig struct {
	ModelDir    string
	EncoderPath string
	DecoderPath string
	TokensPath  string
	LexiconPath string
	RuleFsts    string
	RuleFars    string
	DataDir     string
	Backend     string

	Voice      string
	Phonemizer string
	NumThreads int

	ChunkFrames   int
	PaddingFrames int
	SampleRate    int
	HopLength     int
	NumSpeakers   int
	AddBlank      bool
	MaxTokens     int

	NoiseScale  float32
	NoiseScaleW float32
	LengthScale float32

	// Observer receives pipeline measurements; nil disables them.
	Observer Observer
}

// Observer is notified of encoder and decoder timings and failed requests.
type Observer interface {
	ObserveEncode(d time.Duration)
	ObserveChunk(d time.Duration, samples int)
	Failure(err error)
}
