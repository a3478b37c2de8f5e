package speech

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/google/uuid"
)

const deepgramDefaultModel = "aura-2-thalia-en"

// Deepgram renders officer lines over Deepgram's websocket speak API and returns
// the whole utterance as WAV.
type Deepgram struct {
	apiKey     string
	model      string
	sampleRate int
	idleWindow time.Duration
}

func NewDeepgram(apiKey, model string) *Deepgram {
	if model == "" {
		model = deepgramDefaultModel
	}
	return &Deepgram{apiKey: apiKey, model: model, sampleRate: 48000, idleWindow: 400 * time.Millisecond}
}

func (d *Deepgram) fail(transient bool, err error) error {
	return &SynthesisFailure{Provider: "deepgram", Transient: transient, Err: err}
}

func (d *Deepgram) Synthesize(ctx context.Context, text string, voice VoiceProfile) (AudioHandle, error) {
	if d.apiKey == "" {
		return AudioHandle{}, d.fail(false, fmt.Errorf("API key missing"))
	}
	text = CleanForSpeech(text)
	if text == "" {
		return AudioHandle{}, d.fail(false, fmt.Errorf("empty text"))
	}
	model := d.model
	if voice.Voice != "" {
		model = voice.Voice
	}

	cb := &speakCallback{}
	options := &clientinterfaces.WSSpeakOptions{
		Model:      model,
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return AudioHandle{}, d.fail(false, fmt.Errorf("create ws client: %w", err))
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return AudioHandle{}, d.fail(true, fmt.Errorf("connect failed"))
	}
	if err := dg.SpeakWithText(text); err != nil {
		return AudioHandle{}, d.fail(true, fmt.Errorf("speak text: %w", err))
	}
	if err := dg.Flush(); err != nil {
		log.Printf("deepgram: flush error: %v", err)
	}

	// audio is complete once the stream has been idle for idleWindow after the first bytes
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return AudioHandle{}, ctx.Err()
		case <-ticker.C:
			if err := cb.failure(); err != nil {
				return AudioHandle{}, d.fail(true, err)
			}
			pcm, last := cb.snapshot()
			if len(pcm) > 0 && time.Since(last) > d.idleWindow {
				return AudioHandle{
					ID:          uuid.NewString(),
					ContentType: "audio/wav",
					Data:        wavFromPCM(pcm, d.sampleRate),
					Duration:    pcmDuration(pcm, d.sampleRate),
				}, nil
			}
		}
	}
}

// speakCallback buffers binary audio frames from the SDK.
type speakCallback struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	last time.Time
	err  error
}

func (s *speakCallback) snapshot() ([]byte, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...), s.last
}

func (s *speakCallback) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }

func (s *speakCallback) Error(er *msginterfaces.ErrorResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if er != nil {
		s.err = fmt.Errorf("provider error: %+v", *er)
	}
	return nil
}

func (s *speakCallback) Binary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(data)
	s.last = time.Now()
	return nil
}
