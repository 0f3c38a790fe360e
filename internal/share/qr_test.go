package share

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestQRCode(t *testing.T) {
	data, err := QRCode("file:///tmp/output/story.webm", 128)
	if err != nil {
		t.Fatalf("QRCode failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 128 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}

	if _, err := QRCode("", 0); err == nil {
		t.Error("expected error for empty reference")
	}
}

func TestWriteQRCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "share", "qr.png")
	if err := WriteQRCode("file:///x.mp4", path, 0); err != nil {
		t.Fatalf("WriteQRCode failed: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("qr file missing: %v", err)
	}
}
