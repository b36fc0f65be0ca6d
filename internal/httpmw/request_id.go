package httpmw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

const defaultRequestIDHeader = "X-Request-Id"

// maxInboundIDLen bounds what we accept from clients; anything longer
// is replaced rather than echoed into logs and headers.
const maxInboundIDLen = 64

type requestIDKey struct{}

// WithRequestID attaches a request ID to the context. Empty ids are
// dropped so downstream lookups stay unambiguous.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID reuses a sane inbound id from headerName or mints a fresh
// one, stores it in the context, and echoes it on the response so
// clients can quote it when reporting problems.
func RequestID(headerName string) Middleware {
	if headerName == "" {
		headerName = defaultRequestIDHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerName)
			if id == "" || len(id) > maxInboundIDLen {
				id = newRequestID()
			}

			w.Header().Set(headerName, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

func newRequestID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; here an
		// empty id just degrades log correlation
		return ""
	}
	return hex.EncodeToString(b[:])
}
