package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// shell/ and maintenance/ must exist and have at least one file each to satisfy go:embed
//
//go:embed shell maintenance
var embedded embed.FS

// ShellHTML returns the built-in application shell, served for
// route-shaped paths when the active bundle does not ship its own.
func ShellHTML() []byte {
	b, err := embedded.ReadFile("shell/index.html")
	if err != nil {
		panic(fmt.Errorf("webassets: shell document: %w", err))
	}
	return b
}

// MaintenanceHTML is the page served while no bundle has loaded yet.
func MaintenanceHTML() []byte {
	b, err := embedded.ReadFile("maintenance/index.html")
	if err != nil {
		panic(fmt.Errorf("webassets: maintenance document: %w", err))
	}
	return b
}

// MaintenanceFS exposes the maintenance page as a filesystem so it can
// be mounted as a root content provider before the first bundle load.
func MaintenanceFS() fs.FS {
	sub, err := fs.Sub(embedded, "maintenance")
	if err != nil {
		panic(fmt.Errorf("webassets: maintenance subfs: %w", err))
	}
	return sub
}
