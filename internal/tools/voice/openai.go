package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// openAIEngine implements [Engine] on the OpenAI audio API: Whisper for
// transcription and the tts-1 model for synthesis.
type openAIEngine struct {
	client oai.Client
}

func newOpenAIEngine(apiKey string) *openAIEngine {
	return &openAIEngine{client: oai.NewClient(option.WithAPIKey(apiKey))}
}

// Transcribe implements [Engine].
func (e *openAIEngine) Transcribe(ctx context.Context, audio []byte, format, language string) (Transcript, error) {
	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModelWhisper1,
		File:  oai.File(bytes.NewReader(audio), "audio."+format, "application/octet-stream"),
	}
	if language != "" {
		params.Language = param.NewOpt(language)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Transcript{}, fmt.Errorf("voice: transcription: %w", err)
	}
	return Transcript{
		Text:     resp.Text,
		Language: language,
	}, nil
}

// Synthesize implements [Engine].
func (e *openAIEngine) Synthesize(ctx context.Context, text, voice, format string, speed float64) ([]byte, error) {
	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModelTTS1,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: speechFormat(format),
	}
	if speed > 0 && speed != 1.0 {
		params.Speed = param.NewOpt(speed)
	}

	resp, err := e.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("voice: synthesis: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voice: read synthesized audio: %w", err)
	}
	return audio, nil
}

func speechFormat(format string) oai.AudioSpeechNewParamsResponseFormat {
	switch format {
	case "wav":
		return oai.AudioSpeechNewParamsResponseFormatWAV
	case "opus":
		return oai.AudioSpeechNewParamsResponseFormatOpus
	case "aac":
		return oai.AudioSpeechNewParamsResponseFormatAAC
	case "flac":
		return oai.AudioSpeechNewParamsResponseFormatFLAC
	default:
		return oai.AudioSpeechNewParamsResponseFormatMP3
	}
}
