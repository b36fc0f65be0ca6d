package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"path"
	"strings"

	"github.com/pageforge/docserve/internal/provider"
	"github.com/pageforge/docserve/internal/xerrors"
)

const (
	// maxArchiveSize caps the compressed bundle archive.
	maxArchiveSize int64 = 50 * 1024 * 1024

	// maxSingleFile caps one extracted file.
	maxSingleFile int64 = 10 * 1024 * 1024

	// maxTotalExtract caps the total extracted size, guarding against
	// decompression bombs.
	maxTotalExtract int64 = 200 * 1024 * 1024
)

// Extract unpacks a .tar.gz documentation bundle into an in-memory
// provider. Archive entries are validated the same way regardless of
// source: no absolute paths, no traversal, per-file and total size
// limits.
func Extract(archive []byte) (*provider.MemProvider, error) {
	if int64(len(archive)) > maxArchiveSize {
		return nil, xerrors.Newf("archive exceeds max size (%d bytes, limit %d)", len(archive), maxArchiveSize)
	}

	gr, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, xerrors.Wrap(err, "open gzip")
	}
	defer gr.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gr)

	var totalBytes int64
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(err, "read tar header")
		}

		name, err := cleanEntryName(hdr.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue

		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return nil, xerrors.Newf("file %s exceeds max size (%d > %d)", name, hdr.Size, maxSingleFile)
			}

			content, err := io.ReadAll(io.LimitReader(tr, maxSingleFile+1))
			if err != nil {
				return nil, xerrors.Wrapf(err, "read %s", name)
			}
			if int64(len(content)) > maxSingleFile {
				return nil, xerrors.Newf("file %s exceeds max size after read", name)
			}

			totalBytes += int64(len(content))
			if totalBytes > maxTotalExtract {
				return nil, xerrors.Newf("total extracted size exceeds limit (%d bytes, max %d)", totalBytes, maxTotalExtract)
			}

			files[name] = content

		default:
			return nil, xerrors.Newf("unsupported entry type in archive: %s (type=%d)", name, hdr.Typeflag)
		}
	}

	return provider.NewMem(files), nil
}

// cleanEntryName normalizes a tar entry name and rejects anything
// that could escape the extraction root. Returns "" for entries to
// skip.
func cleanEntryName(raw string) (string, error) {
	name := path.Clean(raw)
	if name == "." || name == "" {
		return "", nil
	}
	if path.IsAbs(name) {
		return "", xerrors.Newf("absolute path in archive: %s", raw)
	}
	if name == ".." || strings.HasPrefix(name, "../") || strings.Contains(name, "/../") {
		return "", xerrors.Newf("path traversal in archive: %s", raw)
	}
	return name, nil
}
