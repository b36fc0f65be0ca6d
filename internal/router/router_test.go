package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pageforge/docserve/internal/provider"
)

func namedProvider(name string) *provider.MemProvider {
	return provider.NewMem(map[string][]byte{"name": []byte(name)})
}

func providerName(t *testing.T, p provider.Provider) string {
	t.Helper()
	data, err := p.Fetch(context.Background(), "name")
	if err != nil {
		t.Fatalf("fetch provider name: %v", err)
	}
	return string(data)
}

func TestLongestPrefixSelection(t *testing.T) {
	r := New()
	if err := r.Register(namedProvider("root"), "/"); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(namedProvider("data"), "data"); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(namedProvider("details"), "data/details"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path          string
		wantProvider  string
		wantRemaining string
	}{
		{"data/details/x.json", "details", "x.json"},
		{"data/other.json", "data", "other.json"},
		{"css/app.css", "root", "css/app.css"},
		{"/data/details/x.json", "details", "x.json"},
		{"data", "data", ""},
	}

	for _, tt := range tests {
		p, remaining, err := r.Resolve(tt.path)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.path, err)
		}
		if got := providerName(t, p); got != tt.wantProvider {
			t.Errorf("Resolve(%q) provider = %s, want %s", tt.path, got, tt.wantProvider)
		}
		if remaining != tt.wantRemaining {
			t.Errorf("Resolve(%q) remaining = %q, want %q", tt.path, remaining, tt.wantRemaining)
		}
	}
}

func TestResolveWithoutRootIsMisconfigured(t *testing.T) {
	r := New()
	if err := r.Register(namedProvider("data"), "data"); err != nil {
		t.Fatal(err)
	}

	if _, _, err := r.Resolve("css/app.css"); !errors.Is(err, ErrMisconfigured) {
		t.Errorf("Resolve outside mounts = %v, want ErrMisconfigured", err)
	}
	if err := r.Validate(); !errors.Is(err, ErrMisconfigured) {
		t.Errorf("Validate = %v, want ErrMisconfigured", err)
	}

	if err := r.Register(namedProvider("root"), "/"); err != nil {
		t.Fatal(err)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate after root registration: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New()

	if err := r.Register(namedProvider("x"), ""); !errors.Is(err, ErrEmptySubPath) {
		t.Errorf("empty subpath = %v, want ErrEmptySubPath", err)
	}
	if err := r.Register(namedProvider("x"), "   "); !errors.Is(err, ErrEmptySubPath) {
		t.Errorf("whitespace subpath = %v, want ErrEmptySubPath", err)
	}
	if err := r.Register(nil, "data"); !errors.Is(err, ErrNilProvider) {
		t.Errorf("nil provider = %v, want ErrNilProvider", err)
	}
}

func TestReRegisterReplaces(t *testing.T) {
	r := New()
	if err := r.Register(namedProvider("old"), "data"); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(namedProvider("new"), "/data/"); err != nil {
		t.Fatal(err)
	}

	p, _, err := r.Resolve("data/x.json")
	if err != nil {
		t.Fatal(err)
	}
	if got := providerName(t, p); got != "new" {
		t.Errorf("provider after re-register = %s, want new", got)
	}
	if got := len(r.SubPaths()); got != 1 {
		t.Errorf("registration count = %d, want 1", got)
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	if err := r.Register(namedProvider("root"), "/"); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(namedProvider("data"), "data"); err != nil {
		t.Fatal(err)
	}

	if err := r.Unregister("data"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	p, _, err := r.Resolve("data/x.json")
	if err != nil {
		t.Fatal(err)
	}
	if got := providerName(t, p); got != "root" {
		t.Errorf("provider after unregister = %s, want root", got)
	}

	if err := r.Unregister("data"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("double unregister = %v, want ErrNotRegistered", err)
	}
}

func TestConcurrentResolveDuringRegistration(t *testing.T) {
	r := New()
	if err := r.Register(namedProvider("root"), "/"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, _, err := r.Resolve("css/app.css"); err != nil {
					t.Errorf("Resolve during registration: %v", err)
					return
				}
			}
		}()
	}

	for i := range 200 {
		sub := "data"
		if i%2 == 1 {
			sub = "data/details"
		}
		if err := r.Register(namedProvider("p"), sub); err != nil {
			t.Errorf("Register: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
