package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"testing"

	"github.com/pageforge/docserve/internal/provider"
)

func makeArchive(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, data := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("write body %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractRoundTrip(t *testing.T) {
	want := map[string][]byte{
		"index.html":         []byte("<html></html>"),
		"data/docs.json":     []byte(`{"ok":true}`),
		"css/app.css":        []byte("body{}"),
		"./js/nested/app.js": []byte("x"),
	}
	p, err := Extract(makeArchive(t, want))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	ctx := context.Background()
	for _, name := range []string{"index.html", "data/docs.json", "css/app.css", "js/nested/app.js"} {
		if _, err := p.Fetch(ctx, name); err != nil {
			t.Errorf("Fetch(%q): %v", name, err)
		}
	}
	if got, err := p.Fetch(ctx, "data/docs.json"); err != nil || string(got) != `{"ok":true}` {
		t.Errorf("Fetch content = %q, %v", got, err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../escape", "/abs/path", "a/../../b"} {
		_, err := Extract(makeArchive(t, map[string][]byte{name: []byte("x")}))
		if err == nil {
			t.Errorf("Extract accepted entry %q", name)
		}
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	if _, err := Extract([]byte("not a gzip stream")); err == nil {
		t.Fatal("Extract accepted non-gzip input")
	}
}

func TestExtractSkipsDirectories(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: "assets/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatal(err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: "assets/a.txt", Mode: 0o644, Size: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()

	p, err := Extract(buf.Bytes())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
	if _, err := p.Fetch(context.Background(), "assets/a.txt"); err != nil {
		t.Errorf("Fetch: %v", err)
	}
}

func TestExtractRejectsSymlinks(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()

	if _, err := Extract(buf.Bytes()); err == nil {
		t.Fatal("Extract accepted a symlink entry")
	}
}

func TestExtractEmptyArchive(t *testing.T) {
	p, err := Extract(makeArchive(t, map[string][]byte{}))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
	if _, err := p.Fetch(context.Background(), "anything"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("Fetch on empty bundle: err = %v, want ErrNotFound", err)
	}
}
