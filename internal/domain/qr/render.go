package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DefaultImageSize is the PNG edge length used when none is given.
const DefaultImageSize = 256

// RenderPNG draws a payload as a QR code image, for printing test sheets.
func RenderPNG(data string, size int) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if size <= 0 {
		size = DefaultImageSize
	}
	return qrcode.Encode(data, qrcode.Medium, size)
}
