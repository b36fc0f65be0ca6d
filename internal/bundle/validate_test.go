package bundle

import (
	"context"
	"strings"
	"testing"

	"github.com/pageforge/docserve/internal/provider"
)

func TestValidateBundle(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		files   map[string][]byte
		opts    ValidationOptions
		wantErr string
	}{
		{
			name:  "zero options accept non-empty index",
			files: map[string][]byte{"index.html": []byte("<html>")},
		},
		{
			name:    "empty bundle rejected",
			files:   map[string][]byte{},
			wantErr: "index.html missing",
		},
		{
			name:    "empty index rejected",
			files:   map[string][]byte{"index.html": nil},
			wantErr: "index.html is empty",
		},
		{
			name: "min files rejects undersized bundle",
			files: map[string][]byte{
				"index.html": []byte("x"),
				"a.css":      []byte("x"),
			},
			opts:    ValidationOptions{MinFiles: 3},
			wantErr: "2 files, minimum is 3",
		},
		{
			name: "min files satisfied",
			files: map[string][]byte{
				"index.html": []byte("x"),
				"a.css":      []byte("x"),
				"b.js":       []byte("x"),
			},
			opts: ValidationOptions{MinFiles: 3},
		},
		{
			name:    "custom required entry",
			files:   map[string][]byte{"index.html": []byte("x")},
			opts:    ValidationOptions{RequireEntry: "shell.html"},
			wantErr: "shell.html missing",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateBundle(ctx, provider.NewMem(tc.files), tc.opts)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateBundle: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ValidateBundle = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateBundleNilProvider(t *testing.T) {
	if err := ValidateBundle(context.Background(), nil, ValidationOptions{}); err == nil {
		t.Fatal("nil provider should fail validation")
	}
}
