package broker

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

// providerCommand maps an AI provider name to its chat command on the
// ai_providers tool.
var providerCommand = map[string]string{
	"claude":    "claude_chat",
	"anthropic": "claude_chat",
	"gpt":       "gpt_chat",
	"openai":    "gpt_chat",
	"gemini":    "gemini_chat",
	"google":    "gemini_chat",
}

// RouteAI sends a prompt to the named AI provider. An empty provider lets
// the tool pick its default; an unrecognized one fails unsupported_command.
func (b *Broker) RouteAI(ctx context.Context, provider, prompt, contextText, model string) (map[string]any, error) {
	command := stepCommand
	params := map[string]string{"prompt": prompt}
	if provider != "" {
		c, ok := providerCommand[strings.ToLower(provider)]
		if !ok {
			return nil, fault.Newf(fault.KindUnsupportedCommand, "broker", "no chat command for provider %q", provider)
		}
		command = c
	}
	if contextText != "" {
		params["context"] = contextText
	}
	if model != "" {
		params["model"] = model
	}
	return b.Dispatch(ctx, "ai_providers", command, params)
}

// ProcessVoice runs the full voice turn: transcribe the audio, route the
// transcript through the default AI provider, then synthesize the reply.
// audio is base64-encoded; format names the container ("wav", "mp3", ...).
func (b *Broker) ProcessVoice(ctx context.Context, audio, format string, sampleRate int) (map[string]any, error) {
	stt, err := b.Dispatch(ctx, "voice", "speech_to_text", map[string]string{
		"audio":       audio,
		"format":      format,
		"sample_rate": strconv.Itoa(sampleRate),
	})
	if err != nil {
		return nil, err
	}
	transcript, _ := stt["text"].(string)
	if transcript == "" {
		return nil, fault.New(fault.KindToolError, "broker", "transcription produced no text")
	}

	ai, err := b.RouteAI(ctx, "", transcript, "", "")
	if err != nil {
		return nil, err
	}
	reply, _ := ai["response"].(string)
	if reply == "" {
		reply, _ = ai["text"].(string)
	}

	tts, err := b.Dispatch(ctx, "voice", "text_to_speech", map[string]string{"text": reply})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"transcript":     transcript,
		"response_text":  reply,
		"response_audio": tts["audio"],
		"audio_format":   tts["format"],
	}, nil
}

// WebSearch fans the query out across the search tool's providers and
// returns the merged, ranked result list truncated to n.
func (b *Broker) WebSearch(ctx context.Context, query string, n int, searchType string) (map[string]any, error) {
	if n <= 0 {
		n = 10
	}
	params := map[string]string{
		"query": query,
		"n":     strconv.Itoa(n),
	}
	if searchType != "" {
		params["type"] = searchType
	}
	return b.Dispatch(ctx, "search", "web_search", params)
}
