package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTestLimiter creates a limiter with a short TTL and cancellable context for tests.
// Returns the limiter and a cancel func to stop the cleanup goroutine.
func newTestLimiter(opts ...Option) (*IPLimiter, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defaults := []Option{
		WithRate(10, 5), // 10/sec, burst of 5 - small burst makes tests fast
		WithTTL(100 * time.Millisecond),
	}
	all := append(defaults, opts...)
	l := New(ctx, all...)
	return l, cancel
}

func TestAllowBurstThenReject(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1, 5)) // 1/sec refill, burst of 5
	defer cancel()

	ip := "10.0.0.1"

	// first 5 requests should all be allowed (burst)
	for i := 0; i < 5; i++ {
		if !l.allow(ip) {
			t.Fatalf("request %d should be allowed (within burst)", i+1)
		}
	}

	// next request should be denied (burst exhausted, refill too slow)
	if l.allow(ip) {
		t.Fatal("request 6 should be denied (burst exhausted)")
	}
}

func TestAllowSeparateIPsGetSeparateBuckets(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1, 3))
	defer cancel()

	for i := 0; i < 3; i++ {
		l.allow("10.0.0.1")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("ip1 should be denied after burst")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("ip2 should have its own fresh bucket")
	}
}

func TestOnFirstDeniedCalledOnce(t *testing.T) {
	var firstCalls, allCalls atomic.Int64
	l, cancel := newTestLimiter(
		WithRate(1, 1),
		WithOnFirstDenied(func(ip string) { firstCalls.Add(1) }),
		WithOnDenied(func(ip string) { allCalls.Add(1) }),
	)
	defer cancel()

	l.allow("10.0.0.1") // uses the burst token
	for i := 0; i < 4; i++ {
		l.allow("10.0.0.1") // denied
	}

	if got := firstCalls.Load(); got != 1 {
		t.Errorf("OnFirstDenied called %d times, want 1", got)
	}
	if got := allCalls.Load(); got != 4 {
		t.Errorf("OnDenied called %d times, want 4", got)
	}
}

func TestCleanupEvictsIdleVisitors(t *testing.T) {
	l, cancel := newTestLimiter(WithTTL(50 * time.Millisecond))
	defer cancel()

	l.allow("10.0.0.1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		n := len(l.visitors)
		l.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("idle visitor not evicted within deadline")
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1, 1))
	defer cancel()

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	mkReq := func() *http.Request {
		r := httptest.NewRequest("GET", "/docs/index.html", nil)
		r.RemoteAddr = "10.0.0.9:1234"
		return r
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, mkReq())
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, mkReq())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header on 429")
	}
}

func TestClientIPKeying(t *testing.T) {
	cases := []struct {
		name       string
		trust      bool
		remote     string
		forwarded  string
		wantedKey  string
	}{
		{"peer address", false, "192.0.2.1:5000", "", "192.0.2.1"},
		{"forwarded ignored when untrusted", false, "192.0.2.1:5000", "198.51.100.7", "192.0.2.1"},
		{"forwarded used when trusted", true, "192.0.2.1:5000", "198.51.100.7", "198.51.100.7"},
		{"first forwarded hop wins", true, "192.0.2.1:5000", "198.51.100.7, 203.0.113.2", "198.51.100.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, cancel := newTestLimiter(WithTrustForwarded(tc.trust))
			defer cancel()

			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := l.clientIP(r); got != tc.wantedKey {
				t.Errorf("clientIP = %q, want %q", got, tc.wantedKey)
			}
		})
	}
}

func TestMaxVisitorsCapRejectsNewIPs(t *testing.T) {
	var capHits atomic.Int64
	l, cancel := newTestLimiter(
		WithRate(100, 100),
		WithMaxVisitors(2),
		WithOnCapacity(func() { capHits.Add(1) }),
	)
	defer cancel()

	if !l.allow("10.0.0.1") || !l.allow("10.0.0.2") {
		t.Fatal("first two visitors should be allowed")
	}
	if l.allow("10.0.0.3") {
		t.Error("third visitor should be rejected at the cap")
	}
	if capHits.Load() != 1 {
		t.Errorf("OnCapacity calls = %d, want 1", capHits.Load())
	}
	// known visitors keep working at the cap
	if !l.allow("10.0.0.1") {
		t.Error("existing visitor rejected while at cap")
	}
}

func TestAllowConcurrent(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1000, 1000))
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ip := fmt.Sprintf("10.0.0.%d", n%5)
			for j := 0; j < 50; j++ {
				l.allow(ip)
			}
		}(i)
	}
	wg.Wait()
}
