package resolver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/pageforge/docserve/internal/provider"
	"github.com/pageforge/docserve/internal/registry"
	"github.com/pageforge/docserve/internal/router"
)

// ErrorHeader names the underlying cause on error responses so the
// boundary stays diagnosable without leaking stack detail into bodies.
const ErrorHeader = "X-Docserve-Error"

// addressParam lets callers resolve a full doc:// address through the
// HTTP boundary: GET /?address=doc://com.example.docs/data/x.json
const addressParam = "address"

// ServeHTTP serves one content request. Route-shaped paths always get
// the shell with status 200; real lookups 404 when absent. The
// request is tracked as a cancellable task for its lifetime and a
// cancelled request never has a response delivered.
func (r *Resolver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ctx := r.tasks.begin(req.Context())
	defer r.tasks.finish(id)

	target := req.URL.Path
	if addr := req.URL.Query().Get(addressParam); addr != "" {
		target = addr
	}

	result, err := r.Resolve(ctx, target)

	// transport cancelled mid-flight: discard whatever was computed
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		r.writeError(ctx, w, target, err)
		return
	}

	if result.ETag != "" {
		w.Header().Set("ETag", result.ETag)
		if req.Header.Get("If-None-Match") == result.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Content-Type", result.ContentType)
	if result.Shell {
		// the shell stands in for many routes; clients must revalidate
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Body)))
	if req.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(result.Body)
}

// Inflight reports the number of requests currently tracked.
func (r *Resolver) Inflight() int { return r.tasks.len() }

func (r *Resolver) writeError(ctx context.Context, w http.ResponseWriter, target string, err error) {
	status := http.StatusNotFound
	switch {
	case errors.Is(err, ErrMalformedRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ErrOutOfScope):
		status = http.StatusForbidden
	case errors.Is(err, router.ErrMisconfigured):
		// should have been caught by startup validation
		status = http.StatusInternalServerError
		r.logger.Error(ctx, err, "router misconfigured at request time", "path", target)
	case errors.Is(err, registry.ErrUnknownBundle),
		errors.Is(err, provider.ErrNotFound):
		status = http.StatusNotFound
	}

	w.Header().Set(ErrorHeader, rootCauseMessage(err))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
}

// rootCauseMessage flattens the deepest cause into a single header
// value.
func rootCauseMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

var _ http.Handler = (*Resolver)(nil)
