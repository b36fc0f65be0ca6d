package log

import "context"

// ctxKey is unexported so only this package can stash a Logger.
type ctxKey struct{}

// WithContext returns a child context carrying l. Request middleware
// uses this to hand each handler a logger pre-tagged with request
// identity.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the Logger placed by WithContext. Callers
// never get nil: a missing or mistyped value yields the no-op logger.
func FromContext(ctx context.Context) Logger {
	l, ok := ctx.Value(ctxKey{}).(Logger)
	if !ok || l == nil {
		return Nop()
	}
	return l
}
