package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Fixed / CheckFunc

func TestFixed(t *testing.T) {
	if err := Fixed(true, "ignored").Check(context.Background()); err != nil {
		t.Fatalf("Fixed(true) should pass, got %v", err)
	}
	err := Fixed(false, "bundle offline").Check(context.Background())
	if err == nil || err.Error() != "bundle offline" {
		t.Fatalf("Fixed(false) = %v, want 'bundle offline'", err)
	}
	if err := Fixed(false, "").Check(context.Background()); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("empty reason should default to 'unhealthy', got %v", err)
	}
}

func TestCheckFuncImplementsProbe(t *testing.T) {
	var _ Probe = CheckFunc(func(ctx context.Context) error { return nil })
}

// All

func TestAll(t *testing.T) {
	if err := All(Fixed(true, ""), Fixed(true, "")).Check(context.Background()); err != nil {
		t.Fatalf("All(pass, pass) should pass, got %v", err)
	}
	err := All(Fixed(false, "first"), Fixed(false, "second")).Check(context.Background())
	if err == nil || err.Error() != "first" {
		t.Fatalf("All should return first error, got %v", err)
	}
	if err := All().Check(context.Background()); err != nil {
		t.Fatalf("All() with no probes should pass, got %v", err)
	}
	if err := All(nil, Fixed(true, ""), nil).Check(context.Background()); err != nil {
		t.Fatalf("All should skip nil probes, got %v", err)
	}
}

func TestAllShortCircuits(t *testing.T) {
	secondCalled := false
	p := All(
		Fixed(false, "stop here"),
		CheckFunc(func(ctx context.Context) error {
			secondCalled = true
			return nil
		}),
	)
	p.Check(context.Background())
	if secondCalled {
		t.Fatal("All should short-circuit after first failure")
	}
}

// Any

func TestAny(t *testing.T) {
	if err := Any(Fixed(false, "down"), Fixed(true, "")).Check(context.Background()); err != nil {
		t.Fatalf("Any should pass if one passes, got %v", err)
	}
	err := Any(Fixed(false, "first"), Fixed(false, "last")).Check(context.Background())
	if err == nil || err.Error() != "last" {
		t.Fatalf("Any should return last error, got %v", err)
	}
	err = Any().Check(context.Background())
	if err == nil || err.Error() != "no healthy probes" {
		t.Fatalf("Any() = %v, want 'no healthy probes'", err)
	}
	if err := Any(nil, nil).Check(context.Background()); err == nil {
		t.Fatal("Any with only nil probes should fail")
	}
}

// Serviceable

type fakeValidator struct{ err error }

func (f fakeValidator) Validate() error { return f.err }

func TestServiceable(t *testing.T) {
	if err := Serviceable(fakeValidator{}).Check(context.Background()); err != nil {
		t.Fatalf("valid router should pass, got %v", err)
	}
	if err := Serviceable(fakeValidator{err: fmt.Errorf("no root")}).Check(context.Background()); err == nil {
		t.Fatal("invalid router should fail")
	}
	if err := Serviceable(nil).Check(context.Background()); err == nil {
		t.Fatal("nil validator should fail")
	}
}

// Freshness

func TestFreshness(t *testing.T) {
	var lastOK atomic.Int64
	p := Freshness(&lastOK, 10*time.Minute)

	if err := p.Check(context.Background()); err == nil {
		t.Fatal("zero lastOK should fail")
	}

	lastOK.Store(time.Now().Unix())
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("fresh poll should pass, got %v", err)
	}

	lastOK.Store(time.Now().Add(-time.Hour).Unix())
	if err := p.Check(context.Background()); err == nil {
		t.Fatal("hour-old poll should fail a 10m threshold")
	}
}

// ShutdownGate

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("new gate should be open, got %v", err)
	}

	g.Set("shutting down")
	err := p.Check(context.Background())
	if err == nil || err.Error() != "shutting down" {
		t.Fatalf("closed gate = %v, want 'shutting down'", err)
	}

	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("should be open after Clear, got %v", err)
	}
}

func TestShutdownGateEmptyReason(t *testing.T) {
	var g ShutdownGate
	g.Set("")
	err := g.Probe().Check(context.Background())
	if err == nil || err.Error() != "draining" {
		t.Fatalf("empty reason should default to 'draining', got %v", err)
	}
}

func TestShutdownGateConcurrentAccess(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			g.Set("draining")
		}()
		go func() {
			defer wg.Done()
			g.Clear()
		}()
		go func() {
			defer wg.Done()
			p.Check(context.Background()) // must not panic
		}()
	}
	wg.Wait()
}

func TestAllWithShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := All(g.Probe(), Serviceable(fakeValidator{}))

	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("should pass when gate open and router valid, got %v", err)
	}

	g.Set("draining")
	err := p.Check(context.Background())
	if err == nil || err.Error() != "draining" {
		t.Fatalf("should fail on gate, got %v", err)
	}
}

// Handlers

func TestHealthzHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthzHandler(Fixed(true, "")).ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthy: status=%d body=%q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	HealthzHandler(Fixed(false, "watcher stalled")).ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "watcher stalled") {
		t.Fatalf("unhealthy: status=%d body=%q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	HealthzHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("nil probe: status=%d, want 200", rec.Code)
	}
}

func TestReadyzHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadyzHandler(Fixed(true, "")).ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ready") {
		t.Fatalf("ready: status=%d body=%q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	ReadyzHandler(Fixed(false, "no bundle loaded")).ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "no bundle loaded") {
		t.Fatalf("not ready: status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestHandlerPassesRequestContext(t *testing.T) {
	type ctxKey string
	var gotCtx context.Context

	probe := CheckFunc(func(ctx context.Context) error {
		gotCtx = ctx
		return nil
	})

	ctx := context.WithValue(context.Background(), ctxKey("test"), "value")
	req := httptest.NewRequest("GET", "/healthz", nil).WithContext(ctx)
	HealthzHandler(probe).ServeHTTP(httptest.NewRecorder(), req)

	if gotCtx.Value(ctxKey("test")) != "value" {
		t.Fatal("request context not passed to probe")
	}
}
