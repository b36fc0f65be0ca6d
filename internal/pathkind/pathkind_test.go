package pathkind

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		segment string
		want    Kind
	}{
		// real files
		{"css file", "app.css", Asset},
		{"js file", "topic.js", Asset},
		{"json data", "mytype.json", Asset},
		{"image", "card@2x.png", Asset},

		// route-shaped
		{"no extension", "tutorials", Route},
		{"empty segment", "", Route},
		{"trailing dot", "name.", Route},
		{"symbol with hash disambiguator", "MyType(_:)-6u3ic", Route},
		{"non-alphanumeric extension", "archive.tar-gz", Route},

		// symbol-kind suffixes that look like extensions
		{"property suffix", "uploadprogress-swift.property", Route},
		{"method suffix", "append(_:)-swift.method", Route},
		{"enum case suffix", "notfound-swift.enum.case", Route},
		{"type property suffix", "shared-swift.type.property", Route},

		// not a known symbol kind, so the extension wins
		{"unknown swift suffix", "release-swift.notes", Asset},
		{"swift marker with asset extension", "guide-swift.css", Asset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.segment); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.segment, got, tt.want)
			}
		})
	}
}
