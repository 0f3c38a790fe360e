package engine

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/ivlev/grimwire/internal/recipe"
	"github.com/ivlev/grimwire/internal/source"
	"github.com/ivlev/grimwire/internal/video"
)

var clipColor = color.RGBA{G: 200, A: 255}

// clipSpec describes what a fake clip plays back.
type clipSpec struct {
	frames   int
	width    int
	height   int
	samples  int // per channel; 0 means no audio track
	failAt   int // frame index that fails; 0 disables
	blocking bool
}

type fakeDecoder struct {
	mu      sync.Mutex
	specs   map[string]clipSpec
	opened  []string
	release chan struct{}
	started chan struct{}
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		specs:   make(map[string]clipSpec),
		release: make(chan struct{}),
		started: make(chan struct{}, 16),
	}
}

func (d *fakeDecoder) Open(ctx context.Context, path string) (source.Clip, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, path)
	spec, ok := d.specs[path]
	if !ok {
		return nil, fmt.Errorf("%w: unknown media %s", source.ErrDecodeFailure, path)
	}
	w, h := spec.width, spec.height
	if w == 0 {
		w, h = 64, 36
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = clipColor.R, clipColor.G, clipColor.B, clipColor.A
	}
	c := &fakeClip{ctx: ctx, spec: spec, img: img, decoder: d}
	if spec.samples > 0 {
		c.audio = io.LimitReader(constReader(3), int64(spec.samples*2*2))
	}
	return c, nil
}

func (d *fakeDecoder) openedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opened)
}

type constReader byte

func (r constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

type fakeClip struct {
	ctx     context.Context
	spec    clipSpec
	img     *image.RGBA
	audio   io.Reader
	n       int
	decoder *fakeDecoder
}

func (c *fakeClip) Info() source.Info {
	b := c.img.Bounds()
	return source.Info{Width: b.Dx(), Height: b.Dy(), HasAudio: c.audio != nil}
}

func (c *fakeClip) NextFrame() (image.Image, error) {
	if c.spec.blocking {
		c.decoder.started <- struct{}{}
		select {
		case <-c.decoder.release:
			c.spec.blocking = false
		case <-c.ctx.Done():
			return nil, fmt.Errorf("%w: %v", source.ErrDecodeFailure, c.ctx.Err())
		}
	}
	if c.spec.failAt > 0 && c.n == c.spec.failAt {
		return nil, fmt.Errorf("%w: corrupt packet", source.ErrDecodeFailure)
	}
	if c.n >= c.spec.frames {
		return nil, io.EOF
	}
	c.n++
	return c.img, nil
}

func (c *fakeClip) Audio() io.Reader { return c.audio }
func (c *fakeClip) Close() error     { return nil }

// fakeEncoder records what it was fed instead of encoding.
type fakeEncoder struct {
	mu       sync.Mutex
	failOn   bool
	sessions []*fakeSession
	sampleAt image.Point
}

func (e *fakeEncoder) Format() video.Format {
	return video.Format{Name: "fake-webm", Container: "webm", Extension: "webm"}
}

func (e *fakeEncoder) Start(ctx context.Context, p video.Params) (video.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &fakeSession{params: p, fail: e.failOn, sampleAt: e.sampleAt, format: e.Format()}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *fakeEncoder) last() *fakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

type fakeSession struct {
	params     video.Params
	format     video.Format
	fail       bool
	sampleAt   image.Point
	frames     int
	audioBytes int
	sizes      map[image.Point]int
	sampled    []color.RGBA
	finished   bool
	aborted    bool
}

func (s *fakeSession) WriteFrame(img *image.RGBA) error {
	if s.sizes == nil {
		s.sizes = make(map[image.Point]int)
	}
	s.sizes[img.Bounds().Size()]++
	s.sampled = append(s.sampled, img.RGBAAt(s.sampleAt.X, s.sampleAt.Y))
	s.frames++
	return nil
}

func (s *fakeSession) Write(p []byte) (int, error) {
	s.audioBytes += len(p)
	return len(p), nil
}

func (s *fakeSession) Finish() (*video.Blob, error) {
	s.finished = true
	if s.frames == 0 || s.fail {
		return nil, fmt.Errorf("%w: fake", video.ErrEncodingFailure)
	}
	data := fmt.Sprintf("frames=%d audio=%d size=%dx%d", s.frames, s.audioBytes, s.params.Width, s.params.Height)
	return &video.Blob{
		Format:   s.format,
		Data:     []byte(data),
		Frames:   s.frames,
		Duration: secondsOf(s.frames, s.params.FPS),
	}, nil
}

func (s *fakeSession) Abort() { s.aborted = true }

type recipeMap map[string]*recipe.Recipe

func (m recipeMap) Get(id string) (*recipe.Recipe, error) {
	r, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", recipe.ErrNotFound, id)
	}
	return r, nil
}
