// Package server exposes an engine over HTTP: whole-file synthesis, chunked
// PCM streaming and a websocket streaming endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vits2go/internal/pkg/vits2go/audio"
	"vits2go/internal/pkg/vits2go/engine"
	"vits2go/internal/pkg/vits2go/metrics"
)

const (
	pcmContentType = "audio/pcm"
	wavContentType = "audio/wav"

	headerSampleRate = "X-Sample-Rate"
	headerError      = "X-Synthesis-Error"
	headerRequestID  = "X-Request-Id"

	maxRequestBytes = 1 << 20
)

type Server struct {
	eng      engine.Engine
	metrics  *metrics.Recorder
	upgrader websocket.Upgrader
}

// New serves eng. The engine serializes synthesis calls itself, so
// concurrent requests queue on it. rec may be nil.
func New(eng engine.Engine, rec *metrics.Recorder) *Server {
	return &Server{
		eng:     eng,
		metrics: rec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", s.info)
		r.Post("/synthesize", s.synthesize)
		r.Get("/stream", s.streamWS)
	})
	return r
}

// requestLogger tags each request with an id and puts a logger carrying it
// into the request context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		logger := log.Logger.With().Str("request_id", id).Logger()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrTokenization):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeRequest reads a JSON request. An omitted speed means normal speed.
func decodeRequest(data []byte) (engine.Request, error) {
	req := engine.Request{Speed: 1}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	info := s.eng.Info()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":         info.Name,
		"languages":    info.Languages,
		"sample_rate":  info.SampleRate,
		"hop_length":   info.HopLength,
		"num_speakers": info.NumSpeakers,
		"backends":     engine.ListBackends(),
	})
}

func (s *Server) synthesize(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req, err := decodeRequest(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		s.synthesizeStream(w, r, req)
		return
	}

	out, err := s.eng.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", wavContentType)
	w.Header().Set(headerSampleRate, strconv.Itoa(out.SampleRate))
	w.WriteHeader(http.StatusOK)
	if err := out.WriteWAV(w); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to send audio")
	}
}

// synthesizeStream writes raw PCM chunks as they are decoded. Errors before
// the first chunk get a normal error response; later errors are reported in
// a trailer.
func (s *Server) synthesizeStream(w http.ResponseWriter, r *http.Request, req engine.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	started := false
	sink := audio.SinkFunc(func(ctx context.Context, samples []float32, sampleRate int) error {
		if !started {
			started = true
			w.Header().Set("Trailer", headerError)
			w.Header().Set("Content-Type", pcmContentType)
			w.Header().Set(headerSampleRate, strconv.Itoa(sampleRate))
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
		}
		if _, err := w.Write(audio.PCM16LE(samples)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	err := s.eng.Stream(r.Context(), req, sink)
	switch {
	case err == nil:
	case !started:
		writeError(w, err)
	default:
		w.Header().Set(headerError, err.Error())
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Stream aborted")
	}
}

type wsStatus struct {
	Done    bool   `json:"done"`
	Samples int    `json:"samples,omitempty"`
	Rate    int    `json:"sample_rate,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// streamWS reads one JSON request and answers with one binary PCM message
// per chunk followed by a JSON status message. The request is cancelled if
// the client goes away.
func (s *Server) streamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	logger := zerolog.Ctx(r.Context())

	conn.SetReadLimit(maxRequestBytes)
	_, data, err := conn.ReadMessage()
	if err != nil {
		logger.Debug().Err(err).Msg("No request on websocket")
		return
	}
	req, err := decodeRequest(data)
	if err != nil {
		conn.WriteJSON(wsStatus{Error: "invalid request body", Kind: "validation"})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	total := 0
	sink := audio.SinkFunc(func(ctx context.Context, samples []float32, sampleRate int) error {
		total += len(samples)
		return conn.WriteMessage(websocket.BinaryMessage, audio.PCM16LE(samples))
	})
	if err := s.eng.Stream(ctx, req, sink); err != nil {
		logger.Debug().Err(err).Msg("Websocket stream failed")
		conn.WriteJSON(wsStatus{Error: err.Error(), Kind: engine.Kind(err)})
		return
	}
	conn.WriteJSON(wsStatus{Done: true, Samples: total, Rate: s.eng.Info().SampleRate})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
