package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pageforge/docserve/internal/xerrors"
)

// Probe is evaluated at request time. nil means serving, a non-nil
// error carries the reason it is not.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

var pass CheckFunc = func(context.Context) error { return nil }

func fail(reason string) CheckFunc {
	err := xerrors.New(reason)
	return func(context.Context) error { return err }
}

// Fixed returns a probe whose answer never changes. Useful for tests
// and for endpoints that have no real condition to evaluate.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return pass
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return fail(reason)
}

// All passes only when every probe passes, short-circuiting on the
// first failure. Nil probes are skipped.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes when at least one probe passes. If none do, the last
// failure is returned so the reason survives.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var last error
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			last = err
		}
		if last == nil {
			last = xerrors.New("no healthy probes")
		}
		return last
	}
}

// Validator reports whether a component can serve requests. The
// content router satisfies this.
type Validator interface{ Validate() error }

// Serviceable adapts a Validator into a readiness probe.
func Serviceable(v Validator) CheckFunc {
	return func(context.Context) error {
		if v == nil {
			return xerrors.New("no content router configured")
		}
		return v.Validate()
	}
}

// Freshness fails once lastOK (unix seconds, stored atomically by the
// bundle watcher) is older than maxAge. A zero lastOK means no
// successful poll yet and fails immediately.
func Freshness(lastOK *atomic.Int64, maxAge time.Duration) CheckFunc {
	return func(context.Context) error {
		last := lastOK.Load()
		if last == 0 {
			return xerrors.New("no successful release poll yet")
		}
		age := time.Since(time.Unix(last, 0))
		if age > maxAge {
			return xerrors.Newf("last successful release poll was %s ago", age.Truncate(time.Second))
		}
		return nil
	}
}

// ShutdownGate flips readiness off while the server drains so load
// balancers stop sending new traffic before listeners close.
type ShutdownGate struct {
	draining atomic.Bool
	reason   atomic.Value
}

func (g *ShutdownGate) Set(reason string) {
	g.draining.Store(true)
	g.reason.Store(reason)
}

func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
	g.reason.Store("")
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		reason, _ := g.reason.Load().(string)
		if reason == "" {
			reason = "draining"
		}
		return xerrors.New(reason)
	}
}
