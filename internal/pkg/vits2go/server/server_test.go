package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"

	"vits2go/internal/pkg/vits2go/audio"
	"vits2go/internal/pkg/vits2go/engine"
	"vits2go/internal/pkg/vits2go/metrics"
)

const (
	chunkSamples = 100
	numChunks    = 3
	testRate     = 16000
)

// stubEngine emits numChunks chunks of a constant tone. Texts starting with
// "tok:" fail tokenization; "late:" fails after the first chunk.
type stubEngine struct{}

func (stubEngine) fail(req engine.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if strings.HasPrefix(req.Text, "tok:") {
		return fmt.Errorf("%w: no phonemes", engine.ErrTokenization)
	}
	return nil
}

func (e stubEngine) Generate(ctx context.Context, req engine.Request) (*audio.Audio, error) {
	sink := audio.NewBufferSink()
	if err := e.Stream(ctx, req, sink); err != nil {
		return nil, err
	}
	return audio.NewAudio(sink.Audio().Samples, testRate), nil
}

func (e stubEngine) Stream(ctx context.Context, req engine.Request, sink audio.Sink) error {
	if err := e.fail(req); err != nil {
		return err
	}
	for i := 0; i < numChunks; i++ {
		if i == 1 && strings.HasPrefix(req.Text, "late:") {
			return fmt.Errorf("%w: decoder crashed", engine.ErrInference)
		}
		samples := make([]float32, chunkSamples)
		for j := range samples {
			samples[j] = 0.25
		}
		if err := sink.Write(ctx, samples, testRate); err != nil {
			return err
		}
	}
	return nil
}

func (stubEngine) Info() engine.EngineInfo {
	return engine.EngineInfo{Name: "stub", SampleRate: testRate, HopLength: 256, Languages: []string{"en-us"}}
}

func (stubEngine) Close() error { return nil }

func newTestServer() http.Handler {
	return New(stubEngine{}, metrics.New()).Handler()
}

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
	return rec
}

func TestSynthesizeWAV(t *testing.T) {
	rec := post(t, newTestServer(), "/v1/synthesize", `{"text":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != wavContentType {
		t.Fatalf("Content-Type = %q, want %q", ct, wavContentType)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatal("missing request id header")
	}

	dec := wav.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if len(buf.Data) != numChunks*chunkSamples || int(dec.SampleRate) != testRate {
		t.Fatalf("got %d samples at %d Hz", len(buf.Data), dec.SampleRate)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	h := newTestServer()
	tests := []struct {
		body string
		want int
	}{
		{`not json`, http.StatusBadRequest},
		{`{"text":""}`, http.StatusBadRequest},
		{`{"text":"hi","speed":0}`, http.StatusBadRequest},
		{`{"text":"hi","speaker_id":-2}`, http.StatusBadRequest},
		{`{"text":"tok:???"}`, http.StatusUnprocessableEntity},
		{`{"text":"late:boom"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := post(t, h, "/v1/synthesize", tt.body)
		if rec.Code != tt.want {
			t.Fatalf("POST %s: status = %d, want %d", tt.body, rec.Code, tt.want)
		}
		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
			t.Fatalf("POST %s: body %q is not a JSON error", tt.body, rec.Body.String())
		}
	}
}

func TestSynthesizeStream(t *testing.T) {
	rec := post(t, newTestServer(), "/v1/synthesize?stream=1", `{"text":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(headerSampleRate); got != fmt.Sprint(testRate) {
		t.Fatalf("%s = %q", headerSampleRate, got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != pcmContentType {
		t.Fatalf("Content-Type = %q", ct)
	}
	if want := numChunks * chunkSamples * 2; rec.Body.Len() != want {
		t.Fatalf("body has %d bytes, want %d", rec.Body.Len(), want)
	}
	if !bytes.Equal(rec.Body.Bytes()[:2], audio.PCM16LE([]float32{0.25})) {
		t.Fatal("body does not start with the first sample")
	}
}

func TestSynthesizeStreamErrors(t *testing.T) {
	h := newTestServer()

	rec := post(t, h, "/v1/synthesize?stream=true", `{"text":"tok:x"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("early failure status = %d, want 422", rec.Code)
	}

	rec = post(t, h, "/v1/synthesize?stream=1", `{"text":"late:x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("late failure status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != chunkSamples*2 {
		t.Fatalf("body has %d bytes, want one chunk", rec.Body.Len())
	}
	if got := rec.Result().Trailer.Get(headerError); !strings.Contains(got, "decoder crashed") {
		t.Fatalf("trailer %s = %q", headerError, got)
	}
}

func dialStream(t *testing.T) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(newTestServer())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebsocketStream(t *testing.T) {
	conn := dialStream(t)
	if err := conn.WriteJSON(engine.Request{Text: "hello", Speed: 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	chunks := 0
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if kind == websocket.BinaryMessage {
			if len(data) != chunkSamples*2 {
				t.Fatalf("chunk %d has %d bytes", chunks, len(data))
			}
			chunks++
			continue
		}
		var status wsStatus
		if err := json.Unmarshal(data, &status); err != nil {
			t.Fatalf("status message %q: %v", data, err)
		}
		if !status.Done || status.Samples != numChunks*chunkSamples || status.Rate != testRate {
			t.Fatalf("status = %+v", status)
		}
		break
	}
	if chunks != numChunks {
		t.Fatalf("got %d chunks, want %d", chunks, numChunks)
	}
}

func TestWebsocketError(t *testing.T) {
	conn := dialStream(t)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"   "}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var status map[string]interface{}
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("status body %s: %v", data, err)
	}
	if done, ok := status["done"]; !ok || done != false {
		t.Fatalf("status = %s, want \"done\":false", data)
	}
	if msg, _ := status["error"].(string); msg == "" || status["kind"] != "validation" {
		t.Fatalf("status = %s, want validation error", data)
	}
}

func TestInfoHealthMetrics(t *testing.T) {
	h := newTestServer()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/info", nil))
	var info map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("info body: %v", err)
	}
	if info["name"] != "stub" || info["sample_rate"] != float64(testRate) {
		t.Fatalf("info = %v", info)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}
