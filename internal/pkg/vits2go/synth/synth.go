// Package synth runs the text to waveform pipeline: segmentation,
// normalization, tokenization, encoding and chunked decoding.
package synth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vits2go/internal/pkg/vits2go/audio"
	"vits2go/internal/pkg/vits2go/engine"
	"vits2go/internal/pkg/vits2go/preprocess"
	"vits2go/internal/pkg/vits2go/segment"
	"vits2go/internal/pkg/vits2go/stream"
	"vits2go/internal/pkg/vits2go/tokenizer"
	"vits2go/internal/pkg/vits2go/vits"
)

const (
	DefaultChunkFrames   = 100
	DefaultPaddingFrames = 10
	DefaultHopLength     = 256
	DefaultNoiseScale    = 0.667
	DefaultNoiseScaleW   = 0.8
	DefaultLengthScale   = 1.0
)

type Options struct {
	ChunkFrames   int
	PaddingFrames int
	HopLength     int
	SampleRate    int
	// NumSpeakers bounds request speaker ids; 0 leaves them unchecked.
	NumSpeakers int
	Voice       string

	NoiseScale  float32
	NoiseScaleW float32
	LengthScale float32

	// OnState, when set, observes every pipeline state change. Chunk is the
	// chunk index for StateDecoding and -1 otherwise.
	OnState func(state State, chunk int)
}

// Synthesizer owns one encoder/decoder pair. Generate and Stream calls are
// serialized.
type Synthesizer struct {
	mu        sync.Mutex
	opts      Options
	scheduler stream.Scheduler
	pre       *preprocess.Preprocessor
	tok       *tokenizer.Tokenizer
	enc       *vits.Encoder
	dec       *vits.Decoder
	observer  engine.Observer
}

// New builds a synthesizer. A nil observer disables measurements.
func New(opts Options, tok *tokenizer.Tokenizer, enc *vits.Encoder, dec *vits.Decoder, observer engine.Observer) (*Synthesizer, error) {
	scheduler, err := stream.NewScheduler(opts.ChunkFrames, opts.PaddingFrames)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrConfig, err)
	}
	if opts.HopLength < 1 {
		return nil, fmt.Errorf("%w: hop length must be positive, got %d", engine.ErrConfig, opts.HopLength)
	}
	if opts.SampleRate < 1 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", engine.ErrConfig, opts.SampleRate)
	}
	if dec.HopLength() != opts.HopLength {
		return nil, fmt.Errorf("%w: decoder hop length %d differs from %d", engine.ErrConfig, dec.HopLength(), opts.HopLength)
	}
	if opts.NoiseScale == 0 {
		opts.NoiseScale = DefaultNoiseScale
	}
	if opts.NoiseScaleW == 0 {
		opts.NoiseScaleW = DefaultNoiseScaleW
	}
	if opts.LengthScale == 0 {
		opts.LengthScale = DefaultLengthScale
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Synthesizer{
		opts:      opts,
		scheduler: scheduler,
		pre:       preprocess.NewPreprocessor(),
		tok:       tok,
		enc:       enc,
		dec:       dec,
		observer:  observer,
	}, nil
}

func (s *Synthesizer) Options() Options {
	return s.opts
}

// Generate synthesizes req in batch mode: every token sequence is decoded in
// one call and the whole waveform is returned.
func (s *Synthesizer) Generate(ctx context.Context, req engine.Request) (*audio.Audio, error) {
	sink := audio.NewBufferSink()
	if err := s.run(ctx, req, sink, true); err != nil {
		return nil, err
	}
	return audio.NewAudio(sink.Audio().Samples, s.opts.SampleRate), nil
}

// Stream synthesizes req chunk by chunk. Each chunk is written to sink as
// soon as it is decoded and trimmed; the next chunk is not decoded until the
// write returns.
func (s *Synthesizer) Stream(ctx context.Context, req engine.Request, sink audio.Sink) error {
	return s.run(ctx, req, sink, false)
}

func (s *Synthesizer) validate(req engine.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if n := s.opts.NumSpeakers; n > 0 && req.SpeakerID >= n {
		return fmt.Errorf("%w: speaker id %d out of range [0,%d)", engine.ErrValidation, req.SpeakerID, n)
	}
	return nil
}

func (s *Synthesizer) params(req engine.Request) vits.Params {
	p := vits.Params{
		SpeakerID:   int64(req.SpeakerID),
		NoiseScale:  s.opts.NoiseScale,
		NoiseScaleW: s.opts.NoiseScaleW,
		LengthScale: s.opts.LengthScale,
	}
	if req.NoiseScale > 0 {
		p.NoiseScale = req.NoiseScale
	}
	if req.NoiseScaleW > 0 {
		p.NoiseScaleW = req.NoiseScaleW
	}
	if req.LengthScale > 0 {
		p.LengthScale = req.LengthScale
	}
	p.LengthScale /= req.Speed
	return p
}

// requestLogger returns the logger carried by ctx, or the global logger
// tagged with a fresh request id.
func requestLogger(ctx context.Context) zerolog.Logger {
	if logger := zerolog.Ctx(ctx); logger.GetLevel() != zerolog.Disabled {
		return *logger
	}
	return log.Logger.With().Str("request_id", uuid.NewString()).Logger()
}

func (s *Synthesizer) run(ctx context.Context, req engine.Request, sink audio.Sink, batch bool) error {
	if err := s.validate(req); err != nil {
		s.observer.Failure(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := requestLogger(ctx)
	ctx = logger.WithContext(ctx)
	start := time.Now()
	mode := "stream"
	if batch {
		mode = "batch"
	}
	logger.Debug().Str("mode", mode).Int("speaker", req.SpeakerID).Float32("speed", req.Speed).Msg("Synthesis started")

	st := newTracker(logger, s.opts.OnState)
	samples, err := s.synthesize(ctx, req, sink, batch, st)
	if err != nil {
		st.set(StateFailed, -1)
		s.observer.Failure(err)
		logger.Debug().Err(err).Str("kind", engine.Kind(err)).Msg("Synthesis failed")
		return err
	}
	st.set(StateDone, -1)
	logger.Debug().
		Int("samples", samples).
		Dur("elapsed", time.Since(start)).
		Msg("Synthesis finished")
	return nil
}

func (s *Synthesizer) synthesize(ctx context.Context, req engine.Request, sink audio.Sink, batch bool, st *tracker) (int, error) {
	params := s.params(req)
	stitcher := stream.NewStitcher(s.opts.HopLength)
	logger := zerolog.Ctx(ctx)
	total := 0
	utterances := 0

	for sentence := range segment.Split(req.Text) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		text := s.pre.Process(sentence)
		if text == "" {
			continue
		}

		st.set(StateTokenizing, -1)
		seqs, err := s.tok.Tokenize(ctx, text, s.opts.Voice)
		if err != nil {
			return total, err
		}

		for _, tokens := range seqs {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			st.set(StateEncoding, -1)
			t0 := time.Now()
			enc, err := s.enc.Encode(ctx, tokens, params)
			if err != nil {
				return total, err
			}
			s.observer.ObserveEncode(time.Since(t0))
			logger.Debug().
				Int("tokens", len(tokens)).
				Int("frames", enc.Frames).
				Dur("took", time.Since(t0)).
				Msg("Encoded utterance")
			utterances++

			scheduler := s.scheduler
			if batch {
				scheduler = stream.Batch(enc.Frames)
			}
			stitcher.Reset()
			for chunk := range scheduler.Chunks(enc.Frames) {
				if err := ctx.Err(); err != nil {
					return total, err
				}
				st.set(StateDecoding, chunk.Index)
				t1 := time.Now()
				decoded, err := s.dec.Decode(ctx, enc, chunk)
				if err != nil {
					return total, err
				}
				out, err := stitcher.Trim(chunk, decoded)
				if err != nil {
					return total, fmt.Errorf("%w: %v", engine.ErrInference, err)
				}
				took := time.Since(t1)

				t2 := time.Now()
				if err := sink.Write(ctx, out, s.opts.SampleRate); err != nil {
					return total, fmt.Errorf("failed to write chunk %d: %w", chunk.Index, err)
				}
				s.observer.ObserveChunk(took, len(out))
				total += len(out)
				logger.Debug().
					Stringer("chunk", chunk).
					Int("samples", len(out)).
					Dur("decode", took).
					Dur("write", time.Since(t2)).
					Msg("Decoded chunk")
			}
		}
	}
	if utterances == 0 {
		return 0, fmt.Errorf("%w: nothing to synthesize in %q", engine.ErrTokenization, req.Text)
	}
	return total, nil
}

type nopObserver struct{}

func (nopObserver) ObserveEncode(time.Duration)     {}
func (nopObserver) ObserveChunk(time.Duration, int) {}
func (nopObserver) Failure(error)                   {}
