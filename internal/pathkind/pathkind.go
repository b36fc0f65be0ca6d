// Package pathkind decides whether the trailing segment of a request
// path names a real file or a documentation symbol that merely looks
// like one.
//
// Symbol references frequently end in disambiguation suffixes such as
// "-swift.property" or a hash like "-6u3ic". The former has an
// apparent file extension ("property") that is perfectly alphanumeric,
// so extension sniffing alone would misroute the symbol page as a
// static-asset request.
package pathkind

import "strings"

// Kind classifies a trailing path segment.
type Kind int

const (
	// Route means the segment does not name a real file and the
	// application shell should be served instead.
	Route Kind = iota
	// Asset means the segment names a file to look up in a provider.
	Asset
)

func (k Kind) String() string {
	if k == Asset {
		return "asset"
	}
	return "route"
}

// symbolSuffixMarker introduces a symbol-kind disambiguation suffix.
const symbolSuffixMarker = "-swift."

// symbolKinds is the fixed set of known symbol-kind identifiers that
// may follow the suffix marker.
var symbolKinds = map[string]struct{}{
	"associatedtype": {},
	"class":          {},
	"deinit":         {},
	"enum":           {},
	"enum.case":      {},
	"func":           {},
	"init":           {},
	"method":         {},
	"operator":       {},
	"property":       {},
	"protocol":       {},
	"struct":         {},
	"subscript":      {},
	"typealias":      {},
	"type.method":    {},
	"type.property":  {},
	"type.subscript": {},
	"var":            {},
}

// Classify reports whether segment names a static asset or a
// route-shaped symbol reference. An empty segment is Route; the caller
// is expected to log a diagnostic for that case since it indicates a
// malformed request upstream.
func Classify(segment string) Kind {
	if segment == "" {
		return Route
	}

	dot := strings.LastIndexByte(segment, '.')
	if dot < 0 || dot == len(segment)-1 {
		return Route
	}
	if !isAlphanumeric(segment[dot+1:]) {
		return Route
	}
	if hasSymbolSuffix(segment) {
		return Route
	}
	return Asset
}

// hasSymbolSuffix reports whether segment ends in "-swift.<kind>" for
// a known symbol kind.
func hasSymbolSuffix(segment string) bool {
	idx := strings.LastIndex(segment, symbolSuffixMarker)
	if idx < 0 {
		return false
	}
	_, known := symbolKinds[segment[idx+len(symbolSuffixMarker):]]
	return known
}

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
