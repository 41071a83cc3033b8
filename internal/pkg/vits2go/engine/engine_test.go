package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"vits2go/internal/pkg/vits2go/audio"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"ok", Request{Text: "Hello.", Speed: 1}, false},
		{"ok with scales", Request{Text: "Hi", SpeakerID: 3, Speed: 0.5, NoiseScale: 0.3, LengthScale: 1.2}, false},
		{"empty text", Request{Text: "", Speed: 1}, true},
		{"blank text", Request{Text: " \n\t", Speed: 1}, true},
		{"negative speaker", Request{Text: "Hi", SpeakerID: -1, Speed: 1}, true},
		{"zero speed", Request{Text: "Hi", Speed: 0}, true},
		{"negative speed", Request{Text: "Hi", Speed: -1}, true},
		{"nan speed", Request{Text: "Hi", Speed: float32(math.NaN())}, true},
		{"inf speed", Request{Text: "Hi", Speed: float32(math.Inf(1))}, true},
		{"negative noise", Request{Text: "Hi", Speed: 1, NoiseScale: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: x", ErrValidation), "validation"},
		{fmt.Errorf("encode: %w", fmt.Errorf("%w: bad", ErrInference)), "inference"},
		{fmt.Errorf("%w: x", ErrTokenization), "tokenization"},
		{fmt.Errorf("%w: x", ErrConfig), "config"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Fatalf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

type nopEngine struct{ cfg EngineConfig }

func (e *nopEngine) Generate(ctx context.Context, req Request) (*audio.Audio, error) {
	return audio.NewAudio(nil, e.cfg.SampleRate), nil
}

func (e *nopEngine) Stream(ctx context.Context, req Request, sink audio.Sink) error {
	return nil
}

func (e *nopEngine) Info() EngineInfo { return EngineInfo{Name: e.cfg.Backend} }

func (e *nopEngine) Close() error { return nil }

func TestRegistry(t *testing.T) {
	Register("test-nop", func(cfg EngineConfig) (Engine, error) {
		return &nopEngine{cfg: cfg}, nil
	})

	if !IsRegistered("test-nop") {
		t.Fatal("expected test-nop to be registered")
	}

	eng, err := New("test-nop", EngineConfig{SampleRate: 22050})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := eng.Info().Name; got != "test-nop" {
		t.Fatalf("Info().Name = %q, want test-nop", got)
	}

	if _, err := New("missing", EngineConfig{}); !errors.Is(err, ErrConfig) {
		t.Fatalf("New(missing) = %v, want ErrConfig", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("test-nop", func(cfg EngineConfig) (Engine, error) { return nil, nil })
}
