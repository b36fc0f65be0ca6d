package httpmw

import "net/http"

// Middleware is a standard net/http wrapping function.
type Middleware = func(http.Handler) http.Handler

// Chain wraps h with mws, first entry outermost. Nil entries are
// allowed so callers can pass conditionally-built middleware without
// branching at the call site.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws); i > 0; i-- {
		if mw := mws[i-1]; mw != nil {
			h = mw(h)
		}
	}
	return h
}
