// Package docuri implements the doc:// addressing scheme used to
// request documentation content: a bundle identifier plus a logical
// path inside that bundle.
package docuri

import (
	"net/url"
	"strings"

	"github.com/pageforge/docserve/internal/xerrors"
)

// Scheme is the URI scheme for documentation content addresses.
const Scheme = "doc"

// ErrMalformedAddress is returned by Parse for input that is not a
// valid doc address (wrong scheme, or no bundle identifier).
var ErrMalformedAddress = xerrors.New("malformed doc address")

// Address identifies content as a (bundle identifier, logical path)
// pair. Path always begins with "/" and has no trailing slash beyond
// root. Addresses are immutable value types; build them with New or
// Parse.
type Address struct {
	BundleID string
	Path     string
}

// New builds an Address with a normalized path.
func New(bundleID, path string) Address {
	return Address{BundleID: bundleID, Path: normalizePath(path)}
}

// Parse interprets raw as a doc address. Both authority and
// authority-less forms are accepted and are equivalent:
//
//	doc://com.example.docs/css/app.css
//	doc:/com.example.docs/css/app.css
//
// When the authority component is absent the bundle identifier is the
// first path segment.
func Parse(raw string) (Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, xerrors.Wrapf(ErrMalformedAddress, "parse %q", raw)
	}
	if u.Scheme != Scheme {
		return Address{}, xerrors.Wrapf(ErrMalformedAddress, "scheme %q", u.Scheme)
	}

	bundleID := u.Host
	p := u.Path
	if bundleID == "" {
		// doc:/bundle/path form: first segment is the bundle.
		trimmed := strings.TrimLeft(p, "/")
		if trimmed == "" {
			return Address{}, xerrors.Wrapf(ErrMalformedAddress, "no bundle identifier in %q", raw)
		}
		bundleID, p, _ = strings.Cut(trimmed, "/")
	}

	return New(bundleID, p), nil
}

// String renders the canonical wire form doc://{bundle}{/path}.
// Parse(a.String()) == a for every valid Address.
func (a Address) String() string {
	return Scheme + "://" + a.BundleID + a.Path
}

// LastPathComponent returns the final path segment, or "" for the
// root path.
func (a Address) LastPathComponent() string {
	if a.Path == "/" {
		return ""
	}
	return a.Path[strings.LastIndexByte(a.Path, '/')+1:]
}

// normalizePath trims surrounding slashes and re-prefixes exactly one.
// The empty path maps to "/".
func normalizePath(p string) string {
	return "/" + strings.Trim(p, "/")
}
