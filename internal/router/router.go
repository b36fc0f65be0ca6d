// Package router maps request paths to content providers registered
// under subpaths of one shared address space. The most specific
// (longest) registered prefix wins, which lets a provider mounted at
// "data" override a root catch-all for everything under it.
package router

import (
	"sort"
	"strings"

	"github.com/pageforge/docserve/internal/provider"
	"github.com/pageforge/docserve/internal/syncval"
	"github.com/pageforge/docserve/internal/xerrors"
)

var (
	// ErrEmptySubPath is returned when registering a subpath that is
	// empty after trimming. Use Register with "/" for the root
	// catch-all.
	ErrEmptySubPath = xerrors.New("subpath cannot be empty")
	// ErrNilProvider rejects registration of a nil provider.
	ErrNilProvider = xerrors.New("provider cannot be nil")
	// ErrMisconfigured means no registered subpath matches and no root
	// provider exists. Every request depends on the root catch-all, so
	// this is a configuration error to surface at startup, not a
	// per-request condition.
	ErrMisconfigured = xerrors.New("no root content provider registered")
	// ErrNotRegistered is returned by Unregister for an unknown subpath.
	ErrNotRegistered = xerrors.New("subpath not registered")
)

// table is the immutable routing state swapped as a unit: the
// subpath→provider map plus its match ordering.
type table struct {
	providers map[string]provider.Provider
	// subpaths sorted longest first, lexicographic within a length,
	// so matching is deterministic
	ordered []string
}

// Router resolves request paths to providers via longest-prefix
// matching. Lookups read a consistent snapshot and never block behind
// registration.
type Router struct {
	state *syncval.Protected[table]
}

func New() *Router {
	return &Router{state: syncval.New(table{providers: map[string]provider.Provider{}})}
}

// Register mounts p under subPath. "/" mounts the root catch-all; an
// empty subPath is rejected. Re-registering a subpath replaces the
// prior provider.
func (r *Router) Register(p provider.Provider, subPath string) error {
	if p == nil {
		return ErrNilProvider
	}
	norm, ok := normalizeSubPath(subPath)
	if !ok {
		return ErrEmptySubPath
	}

	r.state.Mutate(func(t *table) {
		next := make(map[string]provider.Provider, len(t.providers)+1)
		for k, v := range t.providers {
			next[k] = v
		}
		next[norm] = p
		*t = rebuild(next)
	})
	return nil
}

// Unregister removes the provider mounted at subPath.
func (r *Router) Unregister(subPath string) error {
	norm, ok := normalizeSubPath(subPath)
	if !ok {
		return ErrEmptySubPath
	}

	return r.state.Update(func(t table) (table, error) {
		if _, exists := t.providers[norm]; !exists {
			return t, xerrors.Wrapf(ErrNotRegistered, "%q", subPath)
		}
		next := make(map[string]provider.Provider, len(t.providers))
		for k, v := range t.providers {
			if k != norm {
				next[k] = v
			}
		}
		return rebuild(next), nil
	})
}

// Resolve finds the provider whose registered subpath is the longest
// prefix of fullPath and returns it along with the remaining path
// (the request path with the matched prefix stripped). With no match
// at all, not even a root provider, it returns ErrMisconfigured.
func (r *Router) Resolve(fullPath string) (provider.Provider, string, error) {
	req := strings.Trim(fullPath, "/")
	t := r.state.Get()

	for _, sub := range t.ordered {
		if sub == "" {
			// root matches everything; ordered guarantees it is tried last
			return t.providers[sub], req, nil
		}
		if req == sub || strings.HasPrefix(req, sub+"/") {
			return t.providers[sub], strings.TrimPrefix(strings.TrimPrefix(req, sub), "/"), nil
		}
	}
	return nil, "", ErrMisconfigured
}

// Validate reports whether the router can serve arbitrary paths, i.e.
// a root provider exists. Called once at startup so misconfiguration
// aborts boot instead of failing every request.
func (r *Router) Validate() error {
	if _, ok := r.state.Get().providers[""]; !ok {
		return ErrMisconfigured
	}
	return nil
}

// SubPaths returns the registered subpaths in match order, for
// logging and tests.
func (r *Router) SubPaths() []string {
	t := r.state.Get()
	out := make([]string, len(t.ordered))
	copy(out, t.ordered)
	return out
}

func rebuild(providers map[string]provider.Provider) table {
	ordered := make([]string, 0, len(providers))
	for sub := range providers {
		ordered = append(ordered, sub)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})
	return table{providers: providers, ordered: ordered}
}

// normalizeSubPath trims surrounding slashes and whitespace. The root
// registration normalizes to ""; a non-root path that trims to
// nothing is rejected.
func normalizeSubPath(subPath string) (string, bool) {
	trimmed := strings.TrimSpace(subPath)
	if trimmed == "" {
		return "", false
	}
	return strings.Trim(trimmed, "/"), true
}
