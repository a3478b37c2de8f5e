package speech

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// VoiceProfile selects how officer text is voiced.
type VoiceProfile struct {
	// Voice is a provider-specific voice or model id; empty means the provider default.
	Voice string
	// Rate is a speaking-rate multiplier; zero means normal speed.
	Rate float64
}

// AudioHandle is rendered officer audio.
type AudioHandle struct {
	ID          string
	ContentType string
	Data        []byte
	Duration    time.Duration
}

// Encoding names the format of submitted candidate audio.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm16"
	EncodingOpus  Encoding = "opus"
)

// AudioStream is candidate audio to be recognized. Frames for opus are
// individual packets; for pcm16 they are little-endian mono chunks.
type AudioStream struct {
	Encoding   Encoding
	SampleRate int
	Frames     [][]byte
}

// Recognition is the text recognized from an AudioStream.
type Recognition struct {
	Text       string
	Confidence float64
}

// Synthesizer renders text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (AudioHandle, error)
}

// Transcriber recognizes speech; it must give up after timeout.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioStream, timeout time.Duration) (Recognition, error)
}

// Gateway is the uniform speech capability the turn controller depends on.
type Gateway interface {
	Synthesizer
	Transcriber
}

// ErrRecognitionTimeout is returned when no recognition arrived in time.
var ErrRecognitionTimeout = errors.New("speech: recognition timeout")

// RecognitionFailure is a provider failure while transcribing.
type RecognitionFailure struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *RecognitionFailure) Error() string {
	return fmt.Sprintf("%s: recognition failed: %v", e.Provider, e.Err)
}

func (e *RecognitionFailure) Unwrap() error { return e.Err }

// SynthesisFailure is a provider failure while synthesizing.
type SynthesisFailure struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *SynthesisFailure) Error() string {
	return fmt.Sprintf("%s: synthesis failed: %v", e.Provider, e.Err)
}

func (e *SynthesisFailure) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var rf *RecognitionFailure
	if errors.As(err, &rf) {
		return rf.Transient
	}
	var sf *SynthesisFailure
	if errors.As(err, &sf) {
		return sf.Transient
	}
	return false
}

// transientStatus classifies an HTTP status for retry.
func transientStatus(code int) bool {
	return code == 429 || code == 408 || code >= 500
}
