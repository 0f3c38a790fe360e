// Package renderer composes decoded clip frames onto the fixed output canvas.
package renderer

import (
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/ivlev/grimwire/internal/config"
	"github.com/ivlev/grimwire/internal/system"
)

// Scaler resolves an interpolator by config name.
func Scaler(name string) (draw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return draw.NearestNeighbor, nil
	case "", "bilinear":
		return draw.ApproxBiLinear, nil
	case "catmullrom":
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("unknown scaler %q", name)
	}
}

// CoverRect returns where a fw×fh frame lands on the canvas when scaled by
// max(cw/fw, ch/fh) and centered. The rectangle covers the whole canvas and
// may extend past it on one axis; the overflow is clipped when drawing.
func CoverRect(canvas image.Rectangle, fw, fh int) image.Rectangle {
	cw, ch := canvas.Dx(), canvas.Dy()
	if fw <= 0 || fh <= 0 {
		return canvas
	}
	// Compare cw/fw with ch/fh in integers so exact fits stay exact.
	w, h := cw, ch
	if cw*fh >= ch*fw {
		h = (fh*cw + fw - 1) / fw
	} else {
		w = (fw*ch + fh - 1) / fh
	}
	x0 := canvas.Min.X + int(math.Floor(float64(cw-w)/2))
	y0 := canvas.Min.Y + int(math.Floor(float64(ch-h)/2))
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Compositor owns one canvas for the duration of a render job.
type Compositor struct {
	canvas *image.RGBA
	scaler draw.Interpolator

	lastSrc image.Rectangle
	dst     image.Rectangle
	frames  int
}

// NewCompositor takes a canvas of the given size from the shared pool.
func NewCompositor(size config.Size, scaler string) (*Compositor, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", size.Width, size.Height)
	}
	interp, err := Scaler(scaler)
	if err != nil {
		return nil, err
	}
	return &Compositor{
		canvas: system.GetImage(image.Pt(size.Width, size.Height)),
		scaler: interp,
	}, nil
}

// Frames counts composed frames.
func (c *Compositor) Frames() int {
	return c.frames
}

// Compose cover-fits frame onto the canvas.
func (c *Compositor) Compose(frame image.Image) *image.RGBA {
	src := frame.Bounds()
	if src != c.lastSrc {
		c.lastSrc = src
		c.dst = CoverRect(c.canvas.Bounds(), src.Dx(), src.Dy())
	}
	if src.Size() == c.dst.Size() {
		draw.Draw(c.canvas, c.dst, frame, src.Min, draw.Src)
	} else {
		c.scaler.Scale(c.canvas, c.dst, frame, src, draw.Src, nil)
	}
	c.frames++
	return c.canvas
}

// Release hands the canvas back to the pool. The compositor must not be used
// afterwards.
func (c *Compositor) Release() {
	if c.canvas != nil {
		system.PutImage(c.canvas)
		c.canvas = nil
	}
}
