// Package vits registers the "vits" backend: a split encoder/decoder VITS
// model run with ONNX Runtime and streamed through the chunk scheduler.
package vits

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"vits2go/internal/pkg/vits2go/audio"
	"vits2go/internal/pkg/vits2go/engine"
	"vits2go/internal/pkg/vits2go/model"
	"vits2go/internal/pkg/vits2go/phonemizer"
	"vits2go/internal/pkg/vits2go/synth"
	"vits2go/internal/pkg/vits2go/tokenizer"
	graph "vits2go/internal/pkg/vits2go/vits"
)

const (
	Name = "vits"

	EncoderFile = "encoder.onnx"
	DecoderFile = "decoder.onnx"
	TokensFile  = "tokens.txt"

	defaultVoice = "en-us"
)

func init() {
	engine.Register(Name, newEngine)
}

// SessionOpener loads one model graph.
type SessionOpener func(path string, inputs, outputs []string, threads int) (model.Session, error)

// MetadataReader reads model metadata used to fill unset options.
type MetadataReader func(path string) (model.Metadata, error)

func openOnnx(path string, inputs, outputs []string, threads int) (model.Session, error) {
	return model.NewOnnxSession(path, inputs, outputs, model.OnnxOptions{NumThreads: threads})
}

type Engine struct {
	synth   *synth.Synthesizer
	encoder model.Session
	decoder model.Session
	info    engine.EngineInfo
}

func newEngine(cfg engine.EngineConfig) (engine.Engine, error) {
	return New(cfg, openOnnx, model.ReadMetadata)
}

// New builds the engine with the given model loaders.
func New(cfg engine.EngineConfig, open SessionOpener, readMetadata MetadataReader) (*Engine, error) {
	paths, err := resolvePaths(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RuleFsts != "" || cfg.RuleFars != "" {
		log.Warn().
			Str("rule_fsts", cfg.RuleFsts).
			Str("rule_fars", cfg.RuleFars).
			Msg("Rule FST normalizers are not supported, using the built-in text normalizer")
	}
	if cfg.DataDir != "" {
		if fi, err := os.Stat(cfg.DataDir); err != nil || !fi.IsDir() {
			return nil, fmt.Errorf("%w: data dir %s is not a directory", engine.ErrConfig, cfg.DataDir)
		}
		log.Debug().
			Str("data_dir", cfg.DataDir).
			Msg("Phonemizer data dir ignored, goruut bundles its own models")
	}

	md, err := readMetadata(paths.encoder)
	if err != nil {
		log.Debug().Err(err).Msg("No model metadata, using configured values")
		md = model.Metadata{}
	}
	if md.AddBlank != nil && *md.AddBlank != cfg.AddBlank {
		log.Warn().Bool("model", *md.AddBlank).Bool("config", cfg.AddBlank).Msg("add_blank differs from model metadata")
	}

	sampleRate := firstPositive(cfg.SampleRate, md.SampleRate, audio.SampleRate)
	numSpeakers := firstPositive(cfg.NumSpeakers, md.NumSpeakers)
	hopLength := firstPositive(cfg.HopLength, synth.DefaultHopLength)
	voice := cfg.Voice
	if voice == "" {
		voice = md.Language
	}
	if voice == "" {
		voice = defaultVoice
	}

	symbols, err := tokenizer.LoadSymbolTable(paths.tokens)
	if err != nil {
		return nil, err
	}
	ph, err := newPhonemizer(cfg.Phonemizer, paths.lexicon)
	if err != nil {
		return nil, err
	}
	tok := tokenizer.New(symbols, ph, tokenizer.Options{AddBlank: cfg.AddBlank, MaxTokens: cfg.MaxTokens})

	encoder, err := open(paths.encoder, graph.EncoderInputs, graph.EncoderOutputs, cfg.NumThreads)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load encoder: %v", engine.ErrConfig, err)
	}
	decoder, err := open(paths.decoder, graph.DecoderInputs, graph.DecoderOutputs, cfg.NumThreads)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("%w: failed to load decoder: %v", engine.ErrConfig, err)
	}

	s, err := synth.New(synth.Options{
		ChunkFrames:   firstPositive(cfg.ChunkFrames, synth.DefaultChunkFrames),
		PaddingFrames: max(cfg.PaddingFrames, 0),
		HopLength:     hopLength,
		SampleRate:    sampleRate,
		NumSpeakers:   numSpeakers,
		Voice:         voice,
		NoiseScale:    cfg.NoiseScale,
		NoiseScaleW:   cfg.NoiseScaleW,
		LengthScale:   cfg.LengthScale,
	}, tok, graph.NewEncoder(encoder), graph.NewDecoder(decoder, hopLength), cfg.Observer)
	if err != nil {
		encoder.Close()
		decoder.Close()
		return nil, err
	}

	log.Info().
		Str("encoder", paths.encoder).
		Str("decoder", paths.decoder).
		Int("symbols", symbols.Len()).
		Int("sample_rate", sampleRate).
		Int("speakers", numSpeakers).
		Str("voice", voice).
		Msg("VITS model loaded")

	return &Engine{
		synth:   s,
		encoder: encoder,
		decoder: decoder,
		info: engine.EngineInfo{
			Name:        Name,
			Languages:   []string{voice},
			SampleRate:  sampleRate,
			HopLength:   hopLength,
			NumSpeakers: numSpeakers,
		},
	}, nil
}

type modelPaths struct {
	encoder string
	decoder string
	tokens  string
	lexicon string
}

func resolvePaths(cfg engine.EngineConfig) (modelPaths, error) {
	p := modelPaths{
		encoder: orJoin(cfg.EncoderPath, cfg.ModelDir, EncoderFile),
		decoder: orJoin(cfg.DecoderPath, cfg.ModelDir, DecoderFile),
		tokens:  orJoin(cfg.TokensPath, cfg.ModelDir, TokensFile),
		lexicon: cfg.LexiconPath,
	}
	for _, f := range []string{p.encoder, p.decoder, p.tokens} {
		if _, err := os.Stat(f); err != nil {
			return p, fmt.Errorf("%w: model file %s: %v", engine.ErrConfig, f, err)
		}
	}
	return p, nil
}

func orJoin(path, dir, file string) string {
	if path != "" {
		return path
	}
	return filepath.Join(dir, file)
}

func newPhonemizer(kind, lexiconPath string) (phonemizer.Phonemizer, error) {
	var base phonemizer.Phonemizer
	switch kind {
	case "", "goruut":
		base = phonemizer.NewGoruut()
	case "codepoints":
		base = phonemizer.NewCodepoints()
	default:
		return nil, fmt.Errorf("%w: unknown phonemizer %q", engine.ErrConfig, kind)
	}
	if lexiconPath == "" {
		return base, nil
	}
	lex, err := phonemizer.LoadLexicon(lexiconPath, base)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", lexiconPath).Int("entries", lex.Len()).Msg("Lexicon loaded")
	return lex, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func (e *Engine) Generate(ctx context.Context, req engine.Request) (*audio.Audio, error) {
	return e.synth.Generate(ctx, req)
}

func (e *Engine) Stream(ctx context.Context, req engine.Request, sink audio.Sink) error {
	return e.synth.Stream(ctx, req, sink)
}

func (e *Engine) Info() engine.EngineInfo {
	return e.info
}

func (e *Engine) Close() error {
	var lastErr error
	if err := e.encoder.Close(); err != nil {
		lastErr = err
	}
	if err := e.decoder.Close(); err != nil {
		lastErr = err
	}
	return lastErr
}
