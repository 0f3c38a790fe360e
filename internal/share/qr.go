// Package share renders share cards for finished renders.
package share

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the QR image edge in pixels.
const DefaultSize = 256

// QRCode encodes the output reference as a PNG.
func QRCode(ref string, size int) ([]byte, error) {
	if ref == "" {
		return nil, errors.New("empty output reference")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(ref, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// WriteQRCode writes the PNG for ref to path.
func WriteQRCode(ref, path string, size int) error {
	png, err := QRCode(ref, size)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create qr dir: %w", err)
	}
	return os.WriteFile(path, png, 0o644)
}
