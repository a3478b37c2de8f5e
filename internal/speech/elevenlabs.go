package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	elevenLabsBaseURL    = "https://api.elevenlabs.io"
	elevenLabsModel      = "eleven_flash_v2_5"
	elevenLabsSampleRate = 48000
)

// ElevenLabs synthesizes over the HTTP streaming endpoint and buffers the PCM.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	client  *resty.Client
}

func NewElevenLabs(apiKey, voiceID string) *ElevenLabs {
	client := resty.New()
	client.SetBaseURL(elevenLabsBaseURL)
	client.SetTimeout(30 * time.Second)
	return &ElevenLabs{apiKey: apiKey, voiceID: voiceID, client: client}
}

// WithBaseURL overrides the API host.
func (e *ElevenLabs) WithBaseURL(u string) *ElevenLabs {
	e.client.SetBaseURL(u)
	return e
}

func (e *ElevenLabs) fail(transient bool, err error) error {
	return &SynthesisFailure{Provider: "elevenlabs", Transient: transient, Err: err}
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string, voice VoiceProfile) (AudioHandle, error) {
	voiceID := e.voiceID
	if voice.Voice != "" {
		voiceID = voice.Voice
	}
	if e.apiKey == "" || voiceID == "" {
		return AudioHandle{}, e.fail(false, fmt.Errorf("api key or voice id missing"))
	}
	text = CleanForSpeech(text)
	if text == "" {
		return AudioHandle{}, e.fail(false, fmt.Errorf("empty text"))
	}

	settings := map[string]any{
		"stability":         0.4,
		"similarity_boost":  0.7,
		"style":             0.0,
		"use_speaker_boost": true,
	}
	if voice.Rate > 0 {
		settings["speed"] = voice.Rate
	}
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("xi-api-key", e.apiKey).
		SetPathParam("voice", voiceID).
		SetQueryParams(map[string]string{
			"model_id":      elevenLabsModel,
			"output_format": fmt.Sprintf("pcm_%d", elevenLabsSampleRate),
		}).
		SetBody(map[string]any{
			"model_id":       elevenLabsModel,
			"text":           text,
			"voice_settings": settings,
		}).
		Post("/v1/text-to-speech/{voice}/stream")
	if err != nil {
		if ctx.Err() != nil {
			return AudioHandle{}, ctx.Err()
		}
		return AudioHandle{}, e.fail(true, fmt.Errorf("http stream error: %w", err))
	}
	if resp.IsError() {
		return AudioHandle{}, e.fail(transientStatus(resp.StatusCode()),
			fmt.Errorf("http status=%d body=%s", resp.StatusCode(), resp.String()))
	}
	pcm := resp.Body()
	if len(pcm) == 0 {
		return AudioHandle{}, e.fail(true, fmt.Errorf("empty audio"))
	}
	return AudioHandle{
		ID:          uuid.NewString(),
		ContentType: "audio/wav",
		Data:        wavFromPCM(pcm, elevenLabsSampleRate),
		Duration:    pcmDuration(pcm, elevenLabsSampleRate),
	}, nil
}
