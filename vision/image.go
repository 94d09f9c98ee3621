package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

const (
	MaxFrameBytes = 8 << 20
	// MaxFramePixels bounds the decoded size of a frame, whatever its
	// compressed size.
	MaxFramePixels = 4096 * 4096
)

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// DecodeFrame decodes a JPEG or PNG camera frame. The header is read first so
// oversized dimensions are rejected before any pixel buffer is allocated.
func DecodeFrame(data []byte) (image.Image, error) {
	if len(data) > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxFramePixels {
		return nil, fmt.Errorf("%w: %dx%d pixels", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
