package metrics

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vits2go/internal/pkg/vits2go/engine"
)

func value(t *testing.T, r *Recorder, name, label string) float64 {
	t.Helper()
	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label != "" && (len(m.GetLabel()) == 0 || m.GetLabel()[0].GetValue() != label) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestRecorder(t *testing.T) {
	r := New()
	r.ObserveEncode(20 * time.Millisecond)
	r.ObserveChunk(10*time.Millisecond, 256)
	r.ObserveChunk(10*time.Millisecond, 512)
	r.Failure(fmt.Errorf("wrapped: %w", engine.ErrInference))
	r.Failure(context.Canceled)

	tests := []struct {
		name, label string
		want        float64
	}{
		{"vits2go_encode_seconds", "", 1},
		{"vits2go_utterances_total", "", 1},
		{"vits2go_decode_seconds", "", 2},
		{"vits2go_chunks_total", "", 2},
		{"vits2go_samples_total", "", 768},
		{"vits2go_failures_total", "inference", 1},
		{"vits2go_failures_total", "unknown", 1},
	}
	for _, tt := range tests {
		if got := value(t, r, tt.name, tt.label); got != tt.want {
			t.Fatalf("%s{%s} = %v, want %v", tt.name, tt.label, got, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "vits2go_chunks_total 2") {
		t.Fatalf("metrics output missing chunk counter:\n%s", rec.Body.String())
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveEncode(time.Second)
	r.ObserveChunk(time.Second, 10)
	r.Failure(engine.ErrValidation)
	if r.Registry() != nil {
		t.Fatal("nil recorder returned a registry")
	}
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil recorder handler status = %d, want 404", rec.Code)
	}
}
