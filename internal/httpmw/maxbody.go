package httpmw

import "net/http"

// MaxBody caps the readable request body at n bytes. The documentation
// server accepts no uploads, so the cap is tiny and exists mostly to
// bound memory on malformed requests. MaxBytesReader answers 413 when
// a handler reads past the limit.
func MaxBody(n int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
