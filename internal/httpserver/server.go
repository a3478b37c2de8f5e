package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/PROX-GOD/mockdeu/internal/middleware"
	"github.com/PROX-GOD/mockdeu/internal/persona"
	"github.com/PROX-GOD/mockdeu/internal/usecase"
)

// Options configures the HTTP shell.
type Options struct {
	// APIToken guards every route except health and metrics. Empty disables auth.
	APIToken string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Catalog, when set, is listed at /personas.
	Catalog *persona.Catalog
}

// Server bundles HTTP router and dependencies.
type Server struct {
	Router http.Handler
}

// New constructs the HTTP server with routes.
func New(svc usecase.InterviewService, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(mw.TokenAuth(func() string { return opts.APIToken }, "/healthz", "/metrics"))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	NewHandlers(svc, opts.Catalog).Register(e)
	return &Server{Router: e}
}
