// Package source decodes recorded clips into canvas-ready RGBA frames and
// interleaved 16-bit PCM audio.
package source

import (
	"context"
	"errors"
	"image"
	"io"
	"time"
)

// ErrDecodeFailure marks any failure to open or play back a clip.
var ErrDecodeFailure = errors.New("decode failure")

// Info describes a clip as it will be displayed.
type Info struct {
	Width    int
	Height   int
	Rotation int
	Duration time.Duration
	FPS      float64
	HasAudio bool
}

// Clip is an open clip being played back at the output frame rate.
type Clip interface {
	Info() Info
	// NextFrame returns the next frame, or io.EOF once the clip has been
	// played to the end. The returned image is reused by the next call.
	NextFrame() (image.Image, error)
	// Audio streams the clip's audio as interleaved signed 16-bit little
	// endian samples. It is nil when the clip has no audio track.
	Audio() io.Reader
	Close() error
}

// Decoder opens clips for playback.
type Decoder interface {
	Open(ctx context.Context, path string) (Clip, error)
}

// Options configure decoded output.
type Options struct {
	FPS        int
	SampleRate int
	Channels   int
}
