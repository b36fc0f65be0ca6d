package webassets

import (
	"bytes"
	"io/fs"
	"testing"
)

func TestShellHTML(t *testing.T) {
	b := ShellHTML()
	if len(b) == 0 {
		t.Fatal("shell document is empty")
	}
	if !bytes.Contains(b, []byte("<html")) {
		t.Error("shell document does not look like HTML")
	}
}

func TestMaintenanceHTML(t *testing.T) {
	b := MaintenanceHTML()
	if !bytes.Contains(b, []byte("unavailable")) {
		t.Error("maintenance page missing expected copy")
	}
}

func TestMaintenanceFS(t *testing.T) {
	sub := MaintenanceFS()
	if _, err := fs.Stat(sub, "index.html"); err != nil {
		t.Fatalf("maintenance fs missing index.html: %v", err)
	}
}
