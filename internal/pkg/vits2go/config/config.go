package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vits2go/internal/pkg/vits2go/engine"
)

// ErrHelp is returned when usage was requested and printed.
var ErrHelp = pflag.ErrHelp

type Config struct {
	ModelDir    string `mapstructure:"model_dir"`
	EncoderPath string `mapstructure:"encoder_path"`
	DecoderPath string `mapstructure:"decoder_path"`
	TokensPath  string `mapstructure:"tokens_path"`
	LexiconPath string `mapstructure:"lexicon_path"`
	RuleFsts    string `mapstructure:"rule_fsts"`
	RuleFars    string `mapstructure:"rule_fars"`
	DataDir     string `mapstructure:"data_dir"`
	Backend     string `mapstructure:"backend"`

	Voice      string `mapstructure:"voice"`
	Phonemizer string `mapstructure:"phonemizer"`
	NumThreads int    `mapstructure:"num_threads"`

	ChunkFrames   int  `mapstructure:"chunk_frames"`
	PaddingFrames int  `mapstructure:"padding_frames"`
	SampleRate    int  `mapstructure:"sample_rate"`
	HopLength     int  `mapstructure:"hop_length"`
	AddBlank      bool `mapstructure:"add_blank"`
	MaxTokens     int  `mapstructure:"max_tokens"`
	NumSpeakers   int  `mapstructure:"num_speakers"`

	NoiseScale  float32 `mapstructure:"noise_scale"`
	NoiseScaleW float32 `mapstructure:"noise_scale_w"`
	LengthScale float32 `mapstructure:"length_scale"`
	SpeakerID   int     `mapstructure:"speaker_id"`
	Speed       float32 `mapstructure:"speed"`

	Text   string `mapstructure:"text"`
	Output string `mapstructure:"output"`
	Stream bool   `mapstructure:"stream"`
	Serve  bool   `mapstructure:"serve"`
	Listen string `mapstructure:"listen"`
	Info   bool   `mapstructure:"info"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_dir", "models")
	v.SetDefault("encoder_path", "")
	v.SetDefault("decoder_path", "")
	v.SetDefault("tokens_path", "")
	v.SetDefault("lexicon_path", "")
	v.SetDefault("rule_fsts", "")
	v.SetDefault("rule_fars", "")
	v.SetDefault("data_dir", "")
	v.SetDefault("backend", "vits")
	v.SetDefault("voice", "en-us")
	v.SetDefault("phonemizer", "goruut")
	v.SetDefault("num_threads", 1)
	v.SetDefault("chunk_frames", 100)
	v.SetDefault("padding_frames", 10)
	v.SetDefault("sample_rate", 0)
	v.SetDefault("hop_length", 256)
	v.SetDefault("add_blank", true)
	v.SetDefault("max_tokens", 300)
	v.SetDefault("num_speakers", 0)
	v.SetDefault("noise_scale", 0.667)
	v.SetDefault("noise_scale_w", 0.8)
	v.SetDefault("length_scale", 1.0)
	v.SetDefault("speaker_id", 0)
	v.SetDefault("speed", 1.0)
	v.SetDefault("text", "")
	v.SetDefault("output", "output.wav")
	v.SetDefault("stream", false)
	v.SetDefault("serve", false)
	v.SetDefault("listen", ":8080")
	v.SetDefault("info", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"model-dir":      "model_dir",
	"encoder":        "encoder_path",
	"decoder":        "decoder_path",
	"tokens":         "tokens_path",
	"lexicon":        "lexicon_path",
	"rule-fsts":      "rule_fsts",
	"rule-fars":      "rule_fars",
	"data-dir":       "data_dir",
	"backend":        "backend",
	"voice":          "voice",
	"phonemizer":     "phonemizer",
	"threads":        "num_threads",
	"chunk-frames":   "chunk_frames",
	"padding-frames": "padding_frames",
	"sample-rate":    "sample_rate",
	"hop-length":     "hop_length",
	"add-blank":      "add_blank",
	"max-tokens":     "max_tokens",
	"num-speakers":   "num_speakers",
	"noise-scale":    "noise_scale",
	"noise-scale-w":  "noise_scale_w",
	"length-scale":   "length_scale",
	"sid":            "speaker_id",
	"speed":          "speed",
	"text":           "text",
	"output":         "output",
	"stream":         "stream",
	"serve":          "serve",
	"listen":         "listen",
	"info":           "info",
	"log-level":      "log_level",
	"log-file":       "log_file",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("vits2go", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Path to config file")
	fs.StringP("text", "t", "", "Text to synthesize (use '-' to read from stdin)")
	fs.StringP("file", "f", "", "Read text from file")
	fs.StringP("output", "o", "output.wav", "Output WAV file")
	fs.StringP("model-dir", "m", "models", "Directory with encoder.onnx, decoder.onnx and tokens.txt")
	fs.String("encoder", "", "Encoder model path (default <model-dir>/encoder.onnx)")
	fs.String("decoder", "", "Decoder model path (default <model-dir>/decoder.onnx)")
	fs.String("tokens", "", "Symbol table path (default <model-dir>/tokens.txt)")
	fs.String("lexicon", "", "Pronunciation lexicon overriding the phonemizer")
	fs.String("rule-fsts", "", "Text normalization rule FSTs (unsupported, ignored with a warning)")
	fs.String("rule-fars", "", "Text normalization rule FARs (unsupported, ignored with a warning)")
	fs.String("data-dir", "", "Phonemizer data directory")
	fs.String("backend", "vits", "Engine backend")
	fs.StringP("voice", "v", "en-us", "Voice language tag")
	fs.String("phonemizer", "goruut", "Phonemizer (goruut, codepoints)")
	fs.Int("threads", 1, "Inference threads per model")
	fs.Int("chunk-frames", 100, "Latent frames per streamed chunk")
	fs.Int("padding-frames", 10, "Left context frames re-decoded per chunk")
	fs.Int("sample-rate", 0, "Output sample rate (default from model metadata or 22050)")
	fs.Int("hop-length", 256, "Samples per latent frame")
	fs.Bool("add-blank", true, "Interleave blank tokens between phonemes")
	fs.Int("max-tokens", 300, "Maximum phoneme ids per encoder call (0 = unlimited)")
	fs.Int("num-speakers", 0, "Number of speakers (default from model metadata)")
	fs.Float32("noise-scale", 0.667, "Noise scale")
	fs.Float32("noise-scale-w", 0.8, "Duration noise scale")
	fs.Float32("length-scale", 1.0, "Length scale")
	fs.Int("sid", 0, "Speaker id")
	fs.Float32P("speed", "s", 1.0, "Speech speed")
	fs.Bool("stream", false, "Write the output file chunk by chunk")
	fs.Bool("serve", false, "Run the HTTP server")
	fs.String("listen", ":8080", "HTTP listen address")
	fs.Bool("info", false, "Print engine information and exit")
	fs.StringP("log-level", "l", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("log-file", "", "Log file path")
	fs.BoolP("help", "h", false, "Show help message")
	return fs
}

// Load resolves the configuration from defaults, an optional TOML config
// file, VITS2GO_* environment variables and args, in increasing priority.
// Text is taken from --text, --file, stdin ("--text -") or the remaining
// arguments.
func Load(args []string, stdin io.Reader) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: failed to parse flags: %v", engine.ErrConfig, err)
	}
	if help, _ := fs.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage: vits2go [options] [text]\n\nOptions:\n")
		fs.PrintDefaults()
		return nil, ErrHelp
	}

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	if configFile, _ := fs.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("vits2go.cfg")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "vits2go"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config: %v", engine.ErrConfig, err)
		}
	}

	v.SetEnvPrefix("VITS2GO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", engine.ErrConfig, err)
	}

	textFile, _ := fs.GetString("file")
	switch {
	case textFile != "":
		content, err := os.ReadFile(textFile)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read text file: %v", engine.ErrConfig, err)
		}
		cfg.Text = strings.TrimSpace(string(content))
	case cfg.Text == "-":
		content, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read from stdin: %v", engine.ErrConfig, err)
		}
		cfg.Text = strings.TrimSpace(string(content))
	case cfg.Text == "":
		cfg.Text = strings.Join(fs.Args(), " ")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Text == "" && !c.Serve && !c.Info:
		return fmt.Errorf("%w: text is required (use -t, -f, or provide as argument)", engine.ErrConfig)
	case c.Speed <= 0:
		return fmt.Errorf("%w: speed must be positive", engine.ErrConfig)
	case c.SpeakerID < 0:
		return fmt.Errorf("%w: speaker id must be non-negative", engine.ErrConfig)
	case c.ChunkFrames < 1:
		return fmt.Errorf("%w: chunk_frames must be at least 1", engine.ErrConfig)
	case c.PaddingFrames < 0:
		return fmt.Errorf("%w: padding_frames must be non-negative", engine.ErrConfig)
	case c.HopLength < 1:
		return fmt.Errorf("%w: hop_length must be at least 1", engine.ErrConfig)
	case c.MaxTokens < 0:
		return fmt.Errorf("%w: max_tokens must be non-negative", engine.ErrConfig)
	case c.Phonemizer != "goruut" && c.Phonemizer != "codepoints":
		return fmt.Errorf("%w: unknown phonemizer %q", engine.ErrConfig, c.Phonemizer)
	}
	return nil
}

// EngineConfig returns the engine settings of c.
func (c *Config) EngineConfig() engine.EngineConfig {
	return engine.EngineConfig{
		ModelDir:      c.ModelDir,
		EncoderPath:   c.EncoderPath,
		DecoderPath:   c.DecoderPath,
		TokensPath:    c.TokensPath,
		LexiconPath:   c.LexiconPath,
		RuleFsts:      c.RuleFsts,
		RuleFars:      c.RuleFars,
		DataDir:       c.DataDir,
		Backend:       c.Backend,
		Voice:         c.Voice,
		Phonemizer:    c.Phonemizer,
		NumThreads:    c.NumThreads,
		ChunkFrames:   c.ChunkFrames,
		PaddingFrames: c.PaddingFrames,
		SampleRate:    c.SampleRate,
		HopLength:     c.HopLength,
		NumSpeakers:   c.NumSpeakers,
		AddBlank:      c.AddBlank,
		MaxTokens:     c.MaxTokens,
		NoiseScale:    c.NoiseScale,
		NoiseScaleW:   c.NoiseScaleW,
		LengthScale:   c.LengthScale,
	}
}

// Request returns the synthesis request described by c.
func (c *Config) Request() engine.Request {
	return engine.Request{
		Text:      c.Text,
		SpeakerID: c.SpeakerID,
		Speed:     c.Speed,
	}
}
