package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	silentSampleRate = 16000
	silentPerWord    = 350 * time.Millisecond
)

// Silent renders a WAV of silence sized to the text. It is the synthesizer used
// when no TTS provider is configured, so text-only shells still get an audio handle.
type Silent struct{}

func (Silent) Synthesize(ctx context.Context, text string, _ VoiceProfile) (AudioHandle, error) {
	if err := ctx.Err(); err != nil {
		return AudioHandle{}, err
	}
	words := len(strings.Fields(text))
	d := time.Duration(words) * silentPerWord
	samples := int(d.Seconds() * silentSampleRate)
	pcm := make([]byte, samples*2)
	return AudioHandle{
		ID:          uuid.NewString(),
		ContentType: "audio/wav",
		Data:        wavFromPCM(pcm, silentSampleRate),
		Duration:    d,
	}, nil
}

// NoTranscriber rejects audio input; sessions using it accept typed text only.
type NoTranscriber struct{}

func (NoTranscriber) Transcribe(context.Context, AudioStream, time.Duration) (Recognition, error) {
	return Recognition{}, &RecognitionFailure{Provider: "none", Err: errNoTranscriber}
}

var errNoTranscriber = errors.New("no speech recognizer configured")

// Composite pairs a synthesizer with a transcriber from different providers.
type Composite struct {
	Synthesizer
	Transcriber
}

// NewComposite returns a Gateway; nil halves fall back to Silent and NoTranscriber.
func NewComposite(s Synthesizer, t Transcriber) Composite {
	if s == nil {
		s = Silent{}
	}
	if t == nil {
		t = NoTranscriber{}
	}
	return Composite{Synthesizer: s, Transcriber: t}
}
