package bundle

import (
	"context"

	"github.com/pageforge/docserve/internal/provider"
	"github.com/pageforge/docserve/internal/xerrors"
)

// ValidationOptions controls the sanity checks run on an extracted
// bundle before it is swapped live. The zero value requires a
// non-empty index.html and nothing else.
type ValidationOptions struct {
	// MinFiles rejects bundles with fewer than this many entries.
	// 0 disables the check.
	MinFiles int

	// RequireEntry names a file that must exist and be non-empty.
	// Empty defaults to index.html.
	RequireEntry string
}

// DefaultValidationOptions returns the recommended production defaults.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MinFiles:     10,
		RequireEntry: "index.html",
	}
}

// ValidateBundle checks an extracted bundle before the watcher
// installs it, so a truncated or empty archive can never replace
// content that is currently serving.
func ValidateBundle(ctx context.Context, p *provider.MemProvider, opts ValidationOptions) error {
	if p == nil {
		return xerrors.New("validate: bundle provider is nil")
	}

	if opts.MinFiles > 0 && p.Len() < opts.MinFiles {
		return xerrors.Newf("validate: bundle has %d files, minimum is %d", p.Len(), opts.MinFiles)
	}

	entry := opts.RequireEntry
	if entry == "" {
		entry = "index.html"
	}
	data, err := p.Fetch(ctx, entry)
	if err != nil {
		return xerrors.Wrapf(err, "validate: required entry %s missing", entry)
	}
	if len(data) == 0 {
		return xerrors.Newf("validate: required entry %s is empty", entry)
	}

	return nil
}
