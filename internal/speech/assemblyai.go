package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const assemblyAIEndpoint = "wss://streaming.assemblyai.com/v3/ws"

// chunkDuration is how much audio goes into one websocket frame. AssemblyAI
// accepts 50ms to 1000ms per message.
const chunkDuration = 100 * time.Millisecond

// AssemblyAI message types
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnWord struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type turnMessage struct {
	Type          string     `json:"type"`
	TurnOrder     int        `json:"turn_order"`
	Transcript    string     `json:"transcript"`
	EndOfTurn     bool       `json:"end_of_turn"`
	TurnFormatted bool       `json:"turn_is_formatted"`
	Words         []turnWord `json:"words"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// AssemblyAI transcribes a complete candidate answer over the v3 streaming API:
// one websocket per answer, audio streamed in chunks, then Terminate.
type AssemblyAI struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
}

// NewAssemblyAI creates a transcriber for the given API key.
func NewAssemblyAI(apiKey string) *AssemblyAI {
	return &AssemblyAI{
		apiKey:   apiKey,
		endpoint: assemblyAIEndpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// WithEndpoint points the client at a different websocket URL.
func (a *AssemblyAI) WithEndpoint(u string) *AssemblyAI {
	a.endpoint = u
	return a
}

func (a *AssemblyAI) fail(transient bool, err error) error {
	return &RecognitionFailure{Provider: "assemblyai", Transient: transient, Err: err}
}

// Transcribe streams audio and collects finished turns until the server terminates
// the session or timeout elapses.
func (a *AssemblyAI) Transcribe(ctx context.Context, audio AudioStream, timeout time.Duration) (Recognition, error) {
	if a.apiKey == "" {
		return Recognition{}, a.fail(false, fmt.Errorf("AssemblyAI API key is empty"))
	}
	pcm, sampleRate, err := audio.PCM16()
	if err != nil {
		return Recognition{}, a.fail(false, err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	params := url.Values{}
	params.Set("sample_rate", strconv.Itoa(sampleRate))
	params.Set("format_turns", "true")
	params.Set("encoding", "pcm_s16le")
	wsURL := a.endpoint + "?" + params.Encode()

	headers := http.Header{"Authorization": {a.apiKey}}
	conn, resp, err := a.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Recognition{}, ErrRecognitionTimeout
		}
		if ctx.Err() != nil {
			return Recognition{}, ctx.Err()
		}
		transient := true
		if resp != nil {
			transient = transientStatus(resp.StatusCode)
			log.Printf("AssemblyAI connection failed with status: %d", resp.StatusCode)
		}
		return Recognition{}, a.fail(transient, fmt.Errorf("failed to connect to AssemblyAI: %w", err))
	}
	defer conn.Close()

	// unblock reads and writes when the deadline passes or the session is cancelled
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- a.sendAudio(conn, pcm, sampleRate)
	}()

	turns := map[int]turnMessage{}
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return Recognition{}, ErrRecognitionTimeout
			}
			if ctx.Err() != nil {
				return Recognition{}, ctx.Err()
			}
			if werr := drain(writeErr); werr != nil {
				err = werr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return collect(turns), nil
			}
			return Recognition{}, a.fail(true, fmt.Errorf("read: %w", err))
		}
		done, err := processMessage(message, turns)
		if err != nil {
			return Recognition{}, a.fail(false, err)
		}
		if done {
			return collect(turns), nil
		}
	}
}

func (a *AssemblyAI) sendAudio(conn *websocket.Conn, pcm []byte, sampleRate int) error {
	chunk := int(chunkDuration.Seconds()*float64(sampleRate)) * 2
	if chunk <= 0 {
		return fmt.Errorf("sample rate %d too low to stream", sampleRate)
	}
	for len(pcm) > 0 {
		n := chunk
		if n > len(pcm) {
			n = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[:n]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		pcm = pcm[n:]
	}
	return conn.WriteJSON(map[string]string{"type": "Terminate"})
}

func drain(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	default:
		return nil
	}
}

// processMessage records finished turns and reports whether the session ended.
func processMessage(message []byte, turns map[int]turnMessage) (bool, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("AssemblyAI: error unmarshaling message: %v", err)
		return false, nil
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("AssemblyAI session began: ID=%s", msg.ID)
		}
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("AssemblyAI: error unmarshaling Turn message: %v", err)
			return false, nil
		}
		if !msg.EndOfTurn {
			return false, nil
		}
		// a formatted turn supersedes the unformatted one with the same order
		if prev, ok := turns[msg.TurnOrder]; ok && prev.TurnFormatted && !msg.TurnFormatted {
			return false, nil
		}
		turns[msg.TurnOrder] = msg
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("AssemblyAI session terminated: AudioDuration=%.2fs, SessionDuration=%.2fs", msg.AudioDurationSeconds, msg.SessionDurationSeconds)
		}
		return true, nil
	case "Error":
		var msg errorMessage
		_ = json.Unmarshal(message, &msg)
		return false, errors.New("AssemblyAI error: " + msg.Error)
	default:
		log.Printf("AssemblyAI: unknown message type: %s", base.Type)
	}
	return false, nil
}

// collect joins turns in order; confidence is the mean word confidence.
func collect(turns map[int]turnMessage) Recognition {
	orders := make([]int, 0, len(turns))
	for o := range turns {
		orders = append(orders, o)
	}
	sort.Ints(orders)
	var parts []string
	var sum float64
	var words int
	for _, o := range orders {
		t := turns[o]
		if s := strings.TrimSpace(t.Transcript); s != "" {
			parts = append(parts, s)
		}
		for _, w := range t.Words {
			sum += w.Confidence
			words++
		}
	}
	rec := Recognition{Text: strings.Join(parts, " ")}
	if words > 0 {
		rec.Confidence = sum / float64(words)
	} else if rec.Text != "" {
		rec.Confidence = 1
	}
	return rec
}
