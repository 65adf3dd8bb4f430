package imagery

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	jpg := testJPEG(t, 64, 64)
	png := testPNG(t, 32, 32)

	tests := []struct {
		name     string
		data     []byte
		minBytes int64
		wantExt  string
		wantErr  bool
	}{
		{"jpeg", jpg, 100, "jpg", false},
		{"png", png, 100, "png", false},
		{"html placeholder", []byte("<html><body>Service unavailable</body></html>"), 10, "", true},
		{"too small", jpg, int64(len(jpg)) + 1, "", true},
		{"empty", nil, 0, "", true},
		{"truncated jpeg header", jpg[:4], 1, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := Validate(tt.data, tt.minBytes)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidImage) {
					t.Errorf("Expected ErrInvalidImage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ext != tt.wantExt {
				t.Errorf("Expected ext %s, got %s", tt.wantExt, ext)
			}
		})
	}
}
