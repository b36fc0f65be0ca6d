// Package provider defines the content-provider capability: a source
// of bytes addressed by a relative path. Distinct backends (local
// disk, in-memory maps, remote object storage) implement the same
// interface and are selected at registration time.
package provider

import (
	"context"

	"github.com/pageforge/docserve/internal/xerrors"
)

// ErrNotFound is returned by Fetch when no content exists at the
// requested path. Callers match it with errors.Is.
var ErrNotFound = xerrors.New("content not found")

// Provider returns the bytes stored at a relative path ("css/app.css",
// no leading slash). Implementations own their internal concurrency;
// callers never lock around a Provider.
type Provider interface {
	Fetch(ctx context.Context, relPath string) ([]byte, error)
}
