package model

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envRefs int
)

func getOnnxRuntimeLibPath() string {
	envPath := os.Getenv("ONNXRUNTIME_LIB_PATH")
	if envPath != "" {
		return envPath
	}

	var paths []string
	fallback := "libonnxruntime.so"
	switch runtime.GOOS {
	case "linux":
		paths = []string{
			"/usr/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"./libonnxruntime.so",
			"./lib/libonnxruntime.so",
		}
	case "windows":
		paths = []string{
			"onnxruntime.dll",
			"./onnxruntime.dll",
			"./lib/onnxruntime.dll",
		}
		fallback = "onnxruntime.dll"
	case "darwin":
		paths = []string{
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"./libonnxruntime.dylib",
		}
		fallback = "libonnxruntime.dylib"
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return fallback
}

// acquireEnvironment initializes the process-wide ONNX Runtime environment on
// first use. Every successful call must be paired with releaseEnvironment.
func acquireEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 && !ort.IsInitialized() {
		libPath := getOnnxRuntimeLibPath()
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
		log.Debug().Str("library", libPath).Msg("ONNX runtime initialized")
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

type OnnxOptions struct {
	NumThreads int
}

// OnnxSession runs an ONNX graph through ONNX Runtime. Inputs are bound by
// name. Outputs are returned under caller-chosen aliases matched to the
// graph's outputs by position.
type OnnxSession struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
	aliases     []string
}

func NewOnnxSession(modelPath string, inputNames, outputAliases []string, opts OnnxOptions) (*OnnxSession, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("failed to stat model %s: %w", modelPath, err)
	}
	if err := acquireEnvironment(); err != nil {
		return nil, err
	}

	outputNames, err := graphOutputNames(modelPath, len(outputAliases))
	if err != nil {
		releaseEnvironment()
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()
	if opts.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			releaseEnvironment()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}

	log.Debug().
		Str("model", modelPath).
		Strs("inputs", inputNames).
		Strs("outputs", outputNames).
		Int("threads", opts.NumThreads).
		Msg("ONNX session created")

	return &OnnxSession{
		session:     session,
		inputNames:  inputNames,
		outputNames: outputNames,
		aliases:     outputAliases,
	}, nil
}

func graphOutputNames(modelPath string, want int) ([]string, error) {
	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read outputs of %s: %w", modelPath, err)
	}
	if len(outputs) < want {
		return nil, fmt.Errorf("model %s has %d outputs, expected at least %d", modelPath, len(outputs), want)
	}
	names := make([]string, want)
	for i := range names {
		names[i] = outputs[i].Name
	}
	return names, nil
}

func (s *OnnxSession) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make([]ort.Value, 0, len(s.inputNames))
	defer func() { destroyAll(values) }()
	for _, name := range s.inputNames {
		t, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("missing input %q", name)
		}
		v, err := toOrt(t)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		values = append(values, v)
	}

	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}
	defer destroyAll(outputs)

	result := make(map[string]*Tensor, len(outputs))
	for i, v := range outputs {
		if v == nil {
			return nil, fmt.Errorf("no output %q from model", s.outputNames[i])
		}
		t, err := fromOrt(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", s.outputNames[i], err)
		}
		result[s.aliases[i]] = t
	}
	return result, nil
}

func (s *OnnxSession) Close() error {
	var lastErr error
	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			lastErr = err
		}
		s.session = nil
		if err := releaseEnvironment(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func toOrt(t *Tensor) (ort.Value, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	shape := ort.NewShape(t.Shape...)
	switch t.DType {
	case Int64:
		return ort.NewTensor(shape, t.Ints)
	default:
		return ort.NewTensor(shape, t.Floats)
	}
}

// fromOrt copies the output out of runtime-owned memory.
func fromOrt(v ort.Value) (*Tensor, error) {
	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		return NewFloat32(append([]int64(nil), tv.GetShape()...), append([]float32(nil), tv.GetData()...)), nil
	case *ort.Tensor[int64]:
		return NewInt64(append([]int64(nil), tv.GetShape()...), append([]int64(nil), tv.GetData()...)), nil
	default:
		return nil, fmt.Errorf("unexpected output tensor type %T", v)
	}
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

// Metadata holds the custom metadata VITS exports usually carry.
type Metadata struct {
	SampleRate  int
	NumSpeakers int
	AddBlank    *bool
	Language    string
}

// ReadMetadata reads custom model metadata. Missing keys are left zero.
func ReadMetadata(modelPath string) (Metadata, error) {
	var md Metadata
	if err := acquireEnvironment(); err != nil {
		return md, err
	}
	defer releaseEnvironment()

	m, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return md, fmt.Errorf("failed to read metadata of %s: %w", modelPath, err)
	}
	defer m.Destroy()

	lookup := func(key string) string {
		v, ok, err := m.LookupCustomMetadataMap(key)
		if err != nil || !ok {
			return ""
		}
		return v
	}

	if v := lookup("sample_rate"); v != "" {
		md.SampleRate, _ = strconv.Atoi(v)
	}
	if v := lookup("n_speakers"); v != "" {
		md.NumSpeakers, _ = strconv.Atoi(v)
	}
	if v := lookup("add_blank"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			md.AddBlank = &b
		}
	}
	md.Language = lookup("language")
	return md, nil
}
