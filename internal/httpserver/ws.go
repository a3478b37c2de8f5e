package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/PROX-GOD/mockdeu/internal/agent"
	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/speech"
)

// wsMessage is the live session protocol.
// Client types: "answer" (text), "bye". Binary frames carry one PCM16 answer.
// Server types: "state", "result", "error".
type wsMessage struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Snapshot *agent.Snapshot `json:"snapshot,omitempty"`
	Result   any             `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

const (
	wsPollInterval   = 50 * time.Millisecond
	wsPCMSampleRate  = 16000
	wsWriteDeadline  = 5 * time.Second
	wsReadBufferSize = 65536
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  wsReadBufferSize,
	WriteBufferSize: wsReadBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		// Auth is enforced by the token middleware before the upgrade.
		return true
	},
}

// live streams session state changes to the client and forwards its answers.
// The connection closes after the result is sent or the client says bye.
func (h Handlers) live(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.Interviews.GetSessionState(id); err != nil {
		return fail(c, err)
	}
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("[%s] ws upgrade error: %v", id, err)
		return nil
	}
	defer func() { _ = conn.Close() }()

	errs := make(chan error, 8)
	bye := make(chan struct{})
	go h.readLive(conn, id, errs, bye)

	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()
	var last *agent.Snapshot
	for {
		snap, err := h.Interviews.GetSessionState(id)
		if err != nil {
			_ = writeWS(conn, wsMessage{Type: "error", Error: err.Error()})
			return nil
		}
		if last == nil || last.State != snap.State || last.TurnIndex != snap.TurnIndex {
			if err := writeWS(conn, wsMessage{Type: "state", Snapshot: &snap}); err != nil {
				return nil
			}
			last = &snap
		}
		if snap.State.Final() {
			if res, ready, err := h.Interviews.Result(id); err == nil && ready {
				_ = writeWS(conn, wsMessage{Type: "result", Result: res})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "interview ended"),
					time.Now().Add(wsWriteDeadline))
				return nil
			}
		}
		select {
		case err := <-errs:
			if err := writeWS(conn, wsMessage{Type: "error", Error: err.Error()}); err != nil {
				return nil
			}
		case <-bye:
			return nil
		case <-ticker.C:
		}
	}
}

// readLive submits client answers until the connection drops. A "bye" cancels
// the session; a dropped connection leaves it running for other clients.
func (h Handlers) readLive(conn *websocket.Conn, id string, errs chan<- error, bye chan<- struct{}) {
	defer close(bye)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in agent.Input
		switch mt {
		case websocket.BinaryMessage:
			in = agent.AudioInput(speech.AudioStream{Encoding: speech.EncodingPCM16, SampleRate: wsPCMSampleRate, Frames: [][]byte{data}})
		case websocket.TextMessage:
			var m wsMessage
			if err := json.Unmarshal(data, &m); err != nil {
				report(errs, errors.New("invalid message"))
				continue
			}
			switch strings.ToLower(m.Type) {
			case "bye":
				if err := h.Interviews.CancelSession(id); err != nil {
					report(errs, err)
				}
				return
			case "answer":
				in = agent.TextInput(m.Text)
			default:
				report(errs, errors.New("unknown message type "+m.Type))
				continue
			}
		default:
			continue
		}
		if err := h.Interviews.SubmitCandidateInput(id, in); err != nil {
			if errors.Is(err, interview.ErrSessionClosed) {
				log.Printf("[%s] ws answer after session closed", id)
			}
			report(errs, err)
		}
	}
}

func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

func writeWS(conn *websocket.Conn, m wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return conn.WriteJSON(m)
}
