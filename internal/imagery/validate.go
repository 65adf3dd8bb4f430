package imagery

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"
	"net/http"
)

// Validate checks that data is a real JPEG or PNG of at least minBytes and
// returns the file extension to store it under.
func Validate(data []byte, minBytes int64) (string, error) {
	if int64(len(data)) < minBytes || len(data) == 0 {
		return "", fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidImage, len(data), minBytes)
	}

	var ext string
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg":
		ext = "jpg"
	case "image/png":
		ext = "png"
	default:
		return "", fmt.Errorf("%w: content type %s", ErrInvalidImage, ct)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return "", fmt.Errorf("%w: empty dimensions %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	return ext, nil
}
