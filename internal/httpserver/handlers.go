package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/PROX-GOD/mockdeu/internal/agent"
	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/persona"
	"github.com/PROX-GOD/mockdeu/internal/speech"
	"github.com/PROX-GOD/mockdeu/internal/usecase"
)

type Handlers struct {
	Interviews usecase.InterviewService
	Catalog    *persona.Catalog
}

func NewHandlers(svc usecase.InterviewService, catalog *persona.Catalog) Handlers {
	return Handlers{Interviews: svc, Catalog: catalog}
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/personas", h.personas)
	e.POST("/sessions", h.start)
	e.GET("/sessions/:id", h.state)
	e.DELETE("/sessions/:id", h.cancel)
	e.POST("/sessions/:id/input", h.input)
	e.GET("/sessions/:id/result", h.result)
	e.GET("/sessions/:id/audio", h.audio)
	e.GET("/sessions/:id/ws", h.live)
}

type startRequest struct {
	Category string `json:"category"`
	Style    string `json:"style"`
	Embassy  string `json:"embassy"`
}

// inputRequest carries typed text or audio frames; frames are base64 in JSON.
type inputRequest struct {
	Text       string   `json:"text"`
	Encoding   string   `json:"encoding"`
	SampleRate int      `json:"sample_rate"`
	Frames     [][]byte `json:"frames"`
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

// fail maps service errors onto status codes.
func fail(c echo.Context, err error) error {
	var unknown *interview.UnknownPersonaError
	switch {
	case errors.Is(err, interview.ErrSessionNotFound):
		return errorJSON(c, http.StatusNotFound, err.Error())
	case errors.Is(err, interview.ErrSessionClosed):
		return errorJSON(c, http.StatusConflict, err.Error())
	case errors.As(err, &unknown):
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, usecase.ErrNoAudio):
		return errorJSON(c, http.StatusNotFound, err.Error())
	}
	c.Logger().Errorf("request failed: %v", err)
	return errorJSON(c, http.StatusBadRequest, err.Error())
}

func (h Handlers) personas(c echo.Context) error {
	if h.Catalog == nil {
		return errorJSON(c, http.StatusNotFound, "no catalog")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"templates": h.Catalog.Entries(),
		"embassies": h.Catalog.Embassies(),
	})
}

func (h Handlers) start(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid JSON body")
	}
	category, err := interview.ParseVisaCategory(req.Category)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	style, err := interview.ParseOfficerStyle(req.Style)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	id, err := h.Interviews.StartSession(c.Request().Context(), agent.Request{Category: category, Style: style, Embassy: req.Embassy})
	if err != nil {
		return fail(c, err)
	}
	snap, err := h.Interviews.GetSessionState(id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}

func (h Handlers) state(c echo.Context) error {
	snap, err := h.Interviews.GetSessionState(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h Handlers) cancel(c echo.Context) error {
	if err := h.Interviews.CancelSession(c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h Handlers) input(c echo.Context) error {
	var req inputRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid JSON body")
	}
	in := agent.TextInput(req.Text)
	if len(req.Frames) > 0 {
		enc := speech.Encoding(req.Encoding)
		if enc == "" {
			enc = speech.EncodingPCM16
		}
		if enc != speech.EncodingPCM16 && enc != speech.EncodingOpus {
			return errorJSON(c, http.StatusBadRequest, "unsupported encoding "+strconv.Quote(req.Encoding))
		}
		if req.SampleRate != 0 && req.SampleRate < speech.MinSampleRate {
			return errorJSON(c, http.StatusBadRequest, "sample_rate must be at least "+strconv.Itoa(speech.MinSampleRate))
		}
		in = agent.AudioInput(speech.AudioStream{Encoding: enc, SampleRate: req.SampleRate, Frames: req.Frames})
	}
	if err := h.Interviews.SubmitCandidateInput(c.Param("id"), in); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h Handlers) result(c echo.Context) error {
	res, ready, err := h.Interviews.Result(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	if !ready {
		snap, err := h.Interviews.GetSessionState(c.Param("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusAccepted, snap)
	}
	return c.JSON(http.StatusOK, res)
}

func (h Handlers) audio(c echo.Context) error {
	a, err := h.Interviews.OfficerAudio(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	c.Response().Header().Set("X-Audio-Id", a.ID)
	return c.Blob(http.StatusOK, a.ContentType, a.Data)
}
