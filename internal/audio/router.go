// Package audio splices per-clip audio into the single track of a render.
package audio

import (
	"errors"
	"fmt"
	"io"
)

const bytesPerSample = 2 // s16le

// Router feeds exactly one source at a time into the mix destination. It is
// driven by the video side: every Advance covers one output frame, so the
// audio track never drifts from the frames already written.
type Router struct {
	dst        io.Writer
	src        io.Reader
	sampleRate int64
	channels   int
	fps        int64

	frames  int64
	written int64
	padded  int64
	buf     []byte
}

// Stats summarises what the router wrote.
type Stats struct {
	Frames  int64
	Samples int64
	Padded  int64
}

// NewRouter writes interleaved s16le PCM to dst.
func NewRouter(dst io.Writer, sampleRate, channels, fps int) (*Router, error) {
	if sampleRate <= 0 || channels <= 0 || fps <= 0 {
		return nil, fmt.Errorf("invalid audio layout: %d Hz, %d channels, %d fps", sampleRate, channels, fps)
	}
	return &Router{
		dst:        dst,
		sampleRate: int64(sampleRate),
		channels:   channels,
		fps:        int64(fps),
	}, nil
}

// Switch makes src the active source. Audio the previous source had not yet
// delivered is dropped. A nil source plays silence.
func (r *Router) Switch(src io.Reader) {
	r.src = src
}

// Advance writes the audio that belongs to the next video frame.
func (r *Router) Advance() error {
	r.frames++
	target := r.frames * r.sampleRate / r.fps
	samples := target - r.written
	if samples <= 0 {
		return nil
	}

	frameBytes := r.channels * bytesPerSample
	size := int(samples) * frameBytes
	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	chunk := r.buf[:size]

	n := 0
	if r.src != nil {
		var err error
		n, err = io.ReadFull(r.src, chunk)
		if err != nil {
			// End of the clip's audio, or a broken track: the rest of the
			// segment is silent.
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				n = 0
			}
			r.src = nil
		}
		n -= n % frameBytes
	}
	if n < size {
		clear(chunk[n:])
		r.padded += int64((size - n) / frameBytes)
	}

	if _, err := r.dst.Write(chunk); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	r.written = target
	return nil
}

// Stats returns totals so far.
func (r *Router) Stats() Stats {
	return Stats{Frames: r.frames, Samples: r.written, Padded: r.padded}
}
