package httpserver

import (
	"net/http"

	"github.com/pageforge/docserve/internal/health"
	"github.com/pageforge/docserve/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	Health    health.Probe
	Readiness health.Probe

	// Docs serves every request no explicit route claims: bundle
	// assets and route-shaped documentation paths alike.
	Docs http.Handler

	// ExtraRoutes lets callers bolt additional endpoints onto the
	// router before the catch-all takes over.
	ExtraRoutes func(r Router)
}

// Router is the subset of chi.Router the extra-route hook needs.
type Router interface {
	Get(pattern string, h http.HandlerFunc)
	Head(pattern string, h http.HandlerFunc)
}
