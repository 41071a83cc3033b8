package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vits2go/internal/pkg/vits2go/audio"
	"vits2go/internal/pkg/vits2go/config"
	"vits2go/internal/pkg/vits2go/engine"
	"vits2go/internal/pkg/vits2go/metrics"
	"vits2go/internal/pkg/vits2go/server"

	_ "vits2go/internal/pkg/vits2go/backends/vits"
)

func main() {
	fmt.Fprintf(os.Stderr, "vits2go %s\n", Version)

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(os.Args[1:], os.Stdin)
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse configuration")
	}

	if err := setupLogging(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup logging")
	}

	log.Debug().
		Str("model_dir", cfg.ModelDir).
		Str("voice", cfg.Voice).
		Str("backend", cfg.Backend).
		Int("chunk_frames", cfg.ChunkFrames).
		Int("padding_frames", cfg.PaddingFrames).
		Float32("speed", cfg.Speed).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	engineCfg := cfg.EngineConfig()
	engineCfg.Observer = rec

	log.Info().Str("backend", cfg.Backend).Msg("Loading TTS engine...")
	eng, err := engine.New(cfg.Backend, engineCfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to load engine")
	}
	defer eng.Close()

	info := eng.Info()
	log.Debug().
		Str("engine", info.Name).
		Strs("languages", info.Languages).
		Int("sample_rate", info.SampleRate).
		Int("hop_length", info.HopLength).
		Int("speakers", info.NumSpeakers).
		Msg("Engine loaded")

	switch {
	case cfg.Info:
		printInfo(info)
	case cfg.Serve:
		err = serve(ctx, cfg.Listen, server.New(eng, rec))
	case cfg.Stream:
		err = streamToFile(ctx, eng, cfg)
	default:
		err = generateToFile(ctx, eng, cfg)
	}
	if err != nil {
		eng.Close()
		log.Fatal().Err(err).Msg("Synthesis failed")
	}
}

func printInfo(info engine.EngineInfo) {
	fmt.Fprintf(os.Stderr, "Backend: %s\n", info.Name)
	fmt.Fprintf(os.Stderr, "Languages: %s\n", strings.Join(info.Languages, ", "))
	fmt.Fprintf(os.Stderr, "Sample rate: %d Hz\n", info.SampleRate)
	fmt.Fprintf(os.Stderr, "Hop length: %d\n", info.HopLength)
	fmt.Fprintf(os.Stderr, "Speakers: %d\n", info.NumSpeakers)
}

func generateToFile(ctx context.Context, eng engine.Engine, cfg *config.Config) error {
	log.Info().Str("text", truncateText(cfg.Text, 50)).Msg("Generating speech...")
	startTime := time.Now()

	result, err := eng.Generate(ctx, cfg.Request())
	if err != nil {
		return fmt.Errorf("failed to generate audio: %w", err)
	}

	log.Info().
		Dur("elapsed", time.Since(startTime)).
		Float64("duration_sec", result.Duration()).
		Msg("Audio generated")

	if err := result.SaveWAV(cfg.Output); err != nil {
		return fmt.Errorf("failed to save audio: %w", err)
	}
	log.Info().Str("output", cfg.Output).Msg("Audio saved successfully")
	return nil
}

// streamToFile appends every chunk to the output file as soon as it is
// decoded, logging the latency of the first one.
func streamToFile(ctx context.Context, eng engine.Engine, cfg *config.Config) error {
	sink, err := audio.NewWAVSink(cfg.Output, eng.Info().SampleRate)
	if err != nil {
		return err
	}

	log.Info().Str("text", truncateText(cfg.Text, 50)).Msg("Streaming speech...")
	startTime := time.Now()
	chunks := 0
	err = eng.Stream(ctx, cfg.Request(), audio.SinkFunc(func(ctx context.Context, samples []float32, sampleRate int) error {
		if chunks == 0 {
			log.Info().Dur("latency", time.Since(startTime)).Msg("First chunk ready")
		}
		chunks++
		return sink.Write(ctx, samples, sampleRate)
	}))
	if closeErr := sink.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to finalize audio: %w", closeErr)
	}
	if err != nil {
		return err
	}

	log.Info().
		Dur("elapsed", time.Since(startTime)).
		Int("chunks", chunks).
		Int("samples", sink.Samples()).
		Str("output", cfg.Output).
		Msg("Audio streamed successfully")
	return nil
}

func serve(ctx context.Context, addr string, srv *server.Server) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func setupLogging(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
	}

	return nil
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
