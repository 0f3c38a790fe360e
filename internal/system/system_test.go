package system

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (codec h264)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libopus              libopus Opus (codec opus)
`

func TestParseEncoders(t *testing.T) {
	got := ParseEncoders([]byte(encodersOutput))
	for _, name := range []string{"libx264", "libvpx-vp9", "aac", "libopus"} {
		if !got[name] {
			t.Errorf("missing encoder %s", name)
		}
	}
	if got["="] || got["Video"] || len(got) != 4 {
		t.Errorf("legend parsed as encoders: %v", got)
	}
}

func TestFindLatestClip(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp4")
	newer := filepath.Join(dir, "new.WEBM")
	notes := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, newer, notes} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	os.Chtimes(old, past, past)
	future := time.Now().Add(time.Hour)
	os.Chtimes(notes, future, future)

	got, err := FindLatestClip(dir)
	if err != nil {
		t.Fatalf("FindLatestClip failed: %v", err)
	}
	if got != newer {
		t.Errorf("got %s, want %s", got, newer)
	}

	if _, err := FindLatestClip(t.TempDir()); err == nil {
		t.Error("expected error for empty dir")
	}
}

func TestImagePoolReuse(t *testing.T) {
	p := NewImagePool()
	img := p.Get(image.Pt(4, 2))
	if img.Bounds() != image.Rect(0, 0, 4, 2) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	p.Put(img)
	p.Put(nil)
	p.Get(image.Pt(4, 2))
	if st := p.Stats(); st.Gets != 2 || st.Allocs < 1 || st.Allocs > 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestTailBuffer(t *testing.T) {
	b := NewTailBuffer(5)
	b.Write([]byte("abc"))
	b.Write([]byte("defgh"))
	if got := b.String(); got != "defgh" {
		t.Errorf("tail = %q", got)
	}
}

func TestCollectHostStats(t *testing.T) {
	st := CollectHostStats(context.Background())
	if st.NumCPU <= 0 {
		t.Errorf("NumCPU = %d", st.NumCPU)
	}
}
