// Package voice is the voice tool service: speech to text, text to
// speech, custom synthesis, and PCM post-processing of WAV audio.
package voice

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

const toolName = "voice"

var capabilities = []string{
	"speech_to_text",
	"text_to_speech",
	"voice_synthesis",
	"audio_processing",
	"available_voices",
}

// Transcript is one speech-to-text result.
type Transcript struct {
	Text     string
	Language string
	Duration float64
}

// Engine runs transcription and synthesis. The OpenAI implementation is
// swapped for fakes in tests.
type Engine interface {
	Transcribe(ctx context.Context, audio []byte, format, language string) (Transcript, error)
	Synthesize(ctx context.Context, text, voice, format string, speed float64) ([]byte, error)
}

// VoiceInfo describes one synthesis voice.
type VoiceInfo struct {
	ID          string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var voiceCatalog = map[string]VoiceInfo{
	"alloy":   {ID: "alloy", Name: "Alloy", Description: "Neutral balanced voice"},
	"echo":    {ID: "echo", Name: "Echo", Description: "Warm male voice"},
	"fable":   {ID: "fable", Name: "Fable", Description: "Expressive British voice"},
	"onyx":    {ID: "onyx", Name: "Onyx", Description: "Deep male voice"},
	"nova":    {ID: "nova", Name: "Nova", Description: "Bright female voice"},
	"shimmer": {ID: "shimmer", Name: "Shimmer", Description: "Soft female voice"},
}

// Service implements the broker tool contract for voice processing.
type Service struct {
	engine       Engine
	defaultVoice string
	logger       *slog.Logger
	running      atomic.Bool
}

// Options configures the voice service.
type Options struct {
	// OpenAIKey enables the hosted transcription and synthesis backend.
	// Without it, speech commands are refused but audio_processing and
	// available_voices still work.
	OpenAIKey string

	// TTSVoice is the default synthesis voice. Defaults to "alloy".
	TTSVoice string

	// Engine overrides the backend entirely; used by tests.
	Engine Engine

	Logger *slog.Logger
}

// New builds the voice service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	voice := opts.TTSVoice
	if _, ok := voiceCatalog[voice]; !ok {
		if voice != "" {
			opts.Logger.Warn("unknown tts voice, using alloy", "voice", voice)
		}
		voice = "alloy"
	}

	engine := opts.Engine
	if engine == nil && opts.OpenAIKey != "" {
		engine = newOpenAIEngine(opts.OpenAIKey)
	}

	return &Service{
		engine:       engine,
		defaultVoice: voice,
		logger:       opts.Logger,
	}
}

func (s *Service) Name() string           { return toolName }
func (s *Service) Capabilities() []string { return append([]string(nil), capabilities...) }

func (s *Service) Start(context.Context) error {
	if s.engine == nil {
		s.logger.Warn("no speech backend configured, speech commands will be refused")
	}
	s.running.Store(true)
	return nil
}

func (s *Service) Shutdown(context.Context) error {
	s.running.Store(false)
	return nil
}

func (s *Service) Ping(context.Context) error {
	if !s.running.Load() {
		return fault.New(fault.KindToolStopped, toolName, "not running")
	}
	return nil
}

// Execute dispatches one voice command.
func (s *Service) Execute(ctx context.Context, command string, params map[string]string) (map[string]any, error) {
	switch command {
	case "speech_to_text":
		return s.speechToText(ctx, params)
	case "text_to_speech":
		return s.textToSpeech(ctx, params)
	case "voice_synthesis":
		return s.voiceSynthesis(ctx, params)
	case "audio_processing":
		return s.processAudio(params)
	case "available_voices":
		return s.availableVoices(), nil
	default:
		return nil, fault.Newf(fault.KindUnsupportedCommand, toolName, "unknown command %q", command)
	}
}

func (s *Service) speechToText(ctx context.Context, params map[string]string) (map[string]any, error) {
	audio, err := decodeAudioParam(params["audio"])
	if err != nil {
		return nil, err
	}
	if s.engine == nil {
		return nil, fault.New(fault.KindToolStopped, toolName, "speech backend is not configured")
	}

	format := params["format"]
	if format == "" {
		format = "wav"
	}

	start := time.Now()
	transcript, err := s.engine.Transcribe(ctx, audio, format, params["language"])
	if err != nil {
		return nil, fault.Wrap(fault.KindToolError, toolName, "transcription failed", err)
	}

	return map[string]any{
		"text":            strings.TrimSpace(transcript.Text),
		"language":        transcript.Language,
		"confidence":      transcriptConfidence(transcript.Text),
		"audio_duration":  transcript.Duration,
		"audio_size":      len(audio),
		"processing_time": time.Since(start).Seconds(),
	}, nil
}

func (s *Service) textToSpeech(ctx context.Context, params map[string]string) (map[string]any, error) {
	text := strings.TrimSpace(params["text"])
	if text == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "text is required")
	}
	if s.engine == nil {
		return nil, fault.New(fault.KindToolStopped, toolName, "speech backend is not configured")
	}

	voice := params["voice"]
	info, ok := voiceCatalog[voice]
	if !ok {
		if voice != "" {
			s.logger.Debug("unknown voice requested, using default", "voice", voice)
		}
		voice = s.defaultVoice
		info = voiceCatalog[voice]
	}
	format := params["format"]
	if format == "" {
		format = "mp3"
	}

	start := time.Now()
	audio, err := s.engine.Synthesize(ctx, text, voice, format, 1.0)
	if err != nil {
		return nil, fault.Wrap(fault.KindToolError, toolName, "synthesis failed", err)
	}

	return map[string]any{
		"audio":              base64.StdEncoding.EncodeToString(audio),
		"format":             format,
		"voice_used":         info.Name,
		"voice_id":           voice,
		"text_length":        len(text),
		"audio_size":         len(audio),
		"processing_time":    time.Since(start).Seconds(),
		"estimated_duration": float64(len(text)) / 200 * 60,
	}, nil
}

// voiceSynthesis is text_to_speech with caller-controlled voice and
// speed, without the catalog fallback.
func (s *Service) voiceSynthesis(ctx context.Context, params map[string]string) (map[string]any, error) {
	text := strings.TrimSpace(params["text"])
	if text == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "text is required")
	}
	if s.engine == nil {
		return nil, fault.New(fault.KindToolStopped, toolName, "speech backend is not configured")
	}

	voice := params["voice"]
	if voice == "" {
		voice = s.defaultVoice
	}
	format := params["format"]
	if format == "" {
		format = "mp3"
	}
	speed := 1.0
	if v, err := strconv.ParseFloat(params["speed"], 64); err == nil {
		speed = min(max(v, 0.25), 4.0)
	}

	audio, err := s.engine.Synthesize(ctx, text, voice, format, speed)
	if err != nil {
		return nil, fault.Wrap(fault.KindToolError, toolName, "synthesis failed", err)
	}

	return map[string]any{
		"audio":      base64.StdEncoding.EncodeToString(audio),
		"voice_id":   voice,
		"speed":      speed,
		"format":     format,
		"audio_size": len(audio),
	}, nil
}

// processAudio applies PCM operations to 16-bit WAV audio. Runs fully
// locally and needs no speech backend.
func (s *Service) processAudio(params map[string]string) (map[string]any, error) {
	data, err := decodeAudioParam(params["audio"])
	if err != nil {
		return nil, err
	}
	wav, err := decodeWAV(data)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, toolName, "audio is not 16-bit PCM WAV", err)
	}

	operations := []string{"normalize"}
	if raw := strings.TrimSpace(params["operations"]); raw != "" {
		operations = strings.Split(raw, ",")
		for i, op := range operations {
			operations[i] = strings.TrimSpace(op)
		}
	}

	for _, op := range operations {
		switch op {
		case "normalize":
			wav.normalize()
		case "amplify":
			wav.amplify(1.5)
		case "trim_silence":
			wav.trimSilence(silenceThreshold)
		case "mono":
			wav.toMono()
		case "resample":
			rate, err := strconv.Atoi(params["target_rate"])
			if err != nil || rate <= 0 {
				return nil, fault.New(fault.KindInvalidInput, toolName, "resample requires a positive target_rate")
			}
			wav.resample(rate)
		default:
			return nil, fault.Newf(fault.KindInvalidInput, toolName, "unknown audio operation %q", op)
		}
	}

	processed := encodeWAV(wav)
	return map[string]any{
		"audio":              base64.StdEncoding.EncodeToString(processed),
		"operations_applied": operations,
		"original_size":      len(data),
		"processed_size":     len(processed),
		"sample_rate":        wav.sampleRate,
		"channels":           wav.channels,
		"duration":           wav.duration(),
	}, nil
}

func (s *Service) availableVoices() map[string]any {
	voices := make([]VoiceInfo, 0, len(voiceCatalog))
	for _, info := range voiceCatalog {
		voices = append(voices, info)
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })
	return map[string]any{
		"voices":        voices,
		"default_voice": s.defaultVoice,
	}
}

func decodeAudioParam(value string) ([]byte, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "audio is required")
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, toolName, "audio is not valid base64", err)
	}
	return data, nil
}

// transcriptConfidence estimates how trustworthy a transcript is from
// its length. The hosted API reports no per-segment scores, so longer
// output stands in for a stronger signal.
func transcriptConfidence(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return min(0.5+float64(words)*0.01, 0.95)
}
