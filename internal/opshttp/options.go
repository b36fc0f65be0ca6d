package opshttp

import (
	"net/http"

	"github.com/pageforge/docserve/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
}
