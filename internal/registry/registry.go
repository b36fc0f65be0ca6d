// Package registry maps bundle identifiers to their descriptor and
// content provider, and resolves doc addresses to bytes by delegating
// to the registered provider.
package registry

import (
	"context"
	"fmt"

	"github.com/pageforge/docserve/internal/bundle"
	"github.com/pageforge/docserve/internal/docuri"
	"github.com/pageforge/docserve/internal/provider"
	"github.com/pageforge/docserve/internal/syncval"
	"github.com/pageforge/docserve/internal/xerrors"
)

var (
	// ErrUnknownBundle is returned for addresses naming a bundle that
	// was never registered (or has been unregistered).
	ErrUnknownBundle = xerrors.New("unknown bundle")
	// ErrIncompleteEntry rejects registration missing a descriptor
	// identifier or provider; entries are always complete or absent.
	ErrIncompleteEntry = xerrors.New("bundle registration requires identifier and provider")
)

// ProviderError wraps a provider failure so callers can tell "bundle
// unknown" apart from "bundle known but content missing", and still
// reach the original cause via errors.Is/As.
type ProviderError struct {
	BundleID string
	Path     string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("bundle %s: fetch %s: %v", e.BundleID, e.Path, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Entry pairs a bundle descriptor with its content provider. The
// provider is a capability reference: the registry calls Fetch and
// never inspects or mutates provider internals.
type Entry struct {
	Descriptor  bundle.Descriptor
	Provider    provider.Provider
	BaseAddress docuri.Address
}

// Registry is the bundle identifier → Entry map. All mutation goes
// through the protected value's exclusive write path, so a Lookup
// that observes an entry always observes a complete one.
type Registry struct {
	entries *syncval.Protected[map[string]Entry]
}

func New() *Registry {
	return &Registry{entries: syncval.New(map[string]Entry{})}
}

// Register adds or replaces the entry for desc.Identifier atomically.
func (r *Registry) Register(desc bundle.Descriptor, p provider.Provider) error {
	if desc.Identifier == "" || p == nil {
		return ErrIncompleteEntry
	}

	entry := Entry{
		Descriptor:  desc,
		Provider:    p,
		BaseAddress: docuri.New(desc.Identifier, "/"),
	}
	r.entries.Mutate(func(m *map[string]Entry) {
		next := make(map[string]Entry, len(*m)+1)
		for k, v := range *m {
			next[k] = v
		}
		next[desc.Identifier] = entry
		*m = next
	})
	return nil
}

// Unregister removes the entry for id; unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.entries.Mutate(func(m *map[string]Entry) {
		next := make(map[string]Entry, len(*m))
		for k, v := range *m {
			if k != id {
				next[k] = v
			}
		}
		*m = next
	})
}

// UnregisterAll empties the registry.
func (r *Registry) UnregisterAll() {
	r.entries.Set(map[string]Entry{})
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	e, ok := r.entries.Get()[id]
	return e, ok
}

// Len reports the number of registered bundles.
func (r *Registry) Len() int { return len(r.entries.Get()) }

// Identifiers returns the registered bundle identifiers in map order.
func (r *Registry) Identifiers() []string {
	m := r.entries.Get()
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

// ResolveContent fetches the bytes addressed by addr from the
// registered provider. The provider sees the address path relative to
// the bundle base. Provider failures come back as *ProviderError.
func (r *Registry) ResolveContent(ctx context.Context, addr docuri.Address) ([]byte, error) {
	entry, ok := r.Lookup(addr.BundleID)
	if !ok {
		return nil, xerrors.Wrapf(ErrUnknownBundle, "%s", addr.BundleID)
	}

	data, err := entry.Provider.Fetch(ctx, relativeTo(entry.BaseAddress, addr))
	if err != nil {
		return nil, &ProviderError{BundleID: addr.BundleID, Path: addr.Path, Err: err}
	}
	return data, nil
}

// relativeTo joins the bundle base path with the address path and
// strips the leading slash for the provider.
func relativeTo(base, addr docuri.Address) string {
	p := addr.Path
	if base.Path != "/" {
		p = base.Path + p
	}
	if len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}
