package qrpayload

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultImageSize is the edge length in pixels of rendered QR codes.
const DefaultImageSize = 512

// PNG renders the structured payload for a session as a PNG image.
func PNG(sessionID, subjectCode string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(Encode(sessionID, subjectCode), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("error rendering qr code: %w", err)
	}
	return png, nil
}
