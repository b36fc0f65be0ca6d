package provider

import (
	"context"
	"strings"

	"github.com/pageforge/docserve/internal/syncval"
	"github.com/pageforge/docserve/internal/xerrors"
)

// MemProvider is an in-memory provider backed by a path→bytes map.
// Writes are allowed after construction, so it doubles as the backing
// store for hot-swapped seed content and for tests.
type MemProvider struct {
	files *syncval.Protected[map[string][]byte]
}

func NewMem(files map[string][]byte) *MemProvider {
	m := make(map[string][]byte, len(files))
	for k, v := range files {
		m[strings.TrimPrefix(k, "/")] = v
	}
	return &MemProvider{files: syncval.New(m)}
}

func (p *MemProvider) Fetch(ctx context.Context, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimPrefix(relPath, "/")
	data, ok := p.files.Get()[name]
	if !ok {
		return nil, xerrors.Wrapf(ErrNotFound, "%s", name)
	}
	return data, nil
}

// Put stores or replaces a single entry.
func (p *MemProvider) Put(relPath string, data []byte) {
	name := strings.TrimPrefix(relPath, "/")
	p.files.Mutate(func(m *map[string][]byte) {
		next := make(map[string][]byte, len(*m)+1)
		for k, v := range *m {
			next[k] = v
		}
		next[name] = data
		*m = next
	})
}

// Len reports the number of stored entries.
func (p *MemProvider) Len() int { return len(p.files.Get()) }
