package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func pcm(samples, channels int, value int16) []byte {
	buf := new(bytes.Buffer)
	for i := 0; i < samples*channels; i++ {
		binary.Write(buf, binary.LittleEndian, value)
	}
	return buf.Bytes()
}

func TestAdvanceIsFrameLocked(t *testing.T) {
	tests := []struct {
		rate, fps int
	}{
		{48000, 30},
		{44100, 24},
		{48000, 29},
		{8000, 60},
	}
	for _, tt := range tests {
		out := new(bytes.Buffer)
		r, err := NewRouter(out, tt.rate, 2, tt.fps)
		if err != nil {
			t.Fatal(err)
		}
		r.Switch(bytes.NewReader(pcm(tt.rate*10, 2, 7)))
		for n := int64(1); n <= 200; n++ {
			if err := r.Advance(); err != nil {
				t.Fatal(err)
			}
			want := n * int64(tt.rate) / int64(tt.fps)
			if got := r.Stats().Samples; got != want {
				t.Fatalf("%d Hz @ %d fps: after %d frames wrote %d samples, want %d", tt.rate, tt.fps, n, got, want)
			}
		}
		if int64(out.Len()) != r.Stats().Samples*4 {
			t.Errorf("output %d bytes for %d samples", out.Len(), r.Stats().Samples)
		}
	}
}

func TestSpliceTruncatesAndPads(t *testing.T) {
	out := new(bytes.Buffer)
	r, _ := NewRouter(out, 100, 1, 10) // 10 samples per frame

	// First clip: 2 frames of video, 25 samples of audio. 5 excess samples dropped.
	r.Switch(bytes.NewReader(pcm(25, 1, 1)))
	r.Advance()
	r.Advance()

	// Second clip: 3 frames of video, 15 samples of audio. 15 samples padded.
	r.Switch(bytes.NewReader(pcm(15, 1, 2)))
	r.Advance()
	r.Advance()
	r.Advance()

	// Third clip: no audio track.
	r.Switch(nil)
	r.Advance()

	samples := make([]int16, out.Len()/2)
	if err := binary.Read(bytes.NewReader(out.Bytes()), binary.LittleEndian, samples); err != nil {
		t.Fatal(err)
	}
	if len(samples) != 60 {
		t.Fatalf("wrote %d samples, want 60", len(samples))
	}
	for i, s := range samples {
		var want int16
		switch {
		case i < 20:
			want = 1
		case i < 35:
			want = 2
		}
		if s != want {
			t.Fatalf("sample %d = %d, want %d", i, s, want)
		}
	}
	if st := r.Stats(); st.Padded != 25 || st.Frames != 6 {
		t.Errorf("stats = %+v", st)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestBrokenSourceIsSilent(t *testing.T) {
	out := new(bytes.Buffer)
	r, _ := NewRouter(out, 100, 2, 10)
	r.Switch(failingReader{})
	if err := r.Advance(); err != nil {
		t.Fatalf("broken source should not fail the render: %v", err)
	}
	if out.Len() != 40 || bytes.Count(out.Bytes(), []byte{0}) != 40 {
		t.Errorf("expected 40 zero bytes, got %v", out.Bytes())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestWriteErrorPropagates(t *testing.T) {
	r, _ := NewRouter(failingWriter{}, 100, 1, 10)
	if err := r.Advance(); err == nil {
		t.Error("expected write error")
	}
}

func TestNewRouterValidates(t *testing.T) {
	if _, err := NewRouter(new(bytes.Buffer), 0, 2, 30); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
