package resolver

import (
	"mime"
	"path"
	"strings"
)

// fallbackTypes covers extensions the platform mime database may not
// know, plus the handful the doc renderer depends on.
var fallbackTypes = map[string]string{
	".json":  "application/json",
	".js":    "text/javascript; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".svg":   "image/svg+xml",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".map":   "application/json",
	".md":    "text/markdown; charset=utf-8",
}

// contentTypeFor infers a MIME type from the real extension of an
// asset segment.
func contentTypeFor(segment string) string {
	ext := strings.ToLower(path.Ext(segment))
	if t, ok := fallbackTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
