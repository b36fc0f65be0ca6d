package provider

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/pageforge/docserve/internal/xerrors"
)

// FSProvider serves content out of any io/fs.FS: a local directory via
// os.DirFS, an extracted bundle in memory, or an embedded filesystem.
type FSProvider struct {
	fsys fs.FS
}

func NewFS(fsys fs.FS) *FSProvider {
	return &FSProvider{fsys: fsys}
}

func (p *FSProvider) Fetch(ctx context.Context, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimPrefix(relPath, "/")
	if name == "" || !fs.ValidPath(name) {
		return nil, xerrors.Wrapf(ErrNotFound, "invalid path %q", relPath)
	}

	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, xerrors.Wrapf(ErrNotFound, "%s", name)
		}
		return nil, xerrors.Wrapf(err, "read %s", name)
	}
	return data, nil
}
