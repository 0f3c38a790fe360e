package effects

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const maxCaptionLines = 4

var (
	parsedFont    *opentype.Font
	parsedFontErr error
	parseOnce     sync.Once
)

func captionFont() (*opentype.Font, error) {
	parseOnce.Do(func() {
		parsedFont, parsedFontErr = opentype.Parse(goregular.TTF)
	})
	return parsedFont, parsedFontErr
}

// Caption is a fixed-position text block in the bottom third of the canvas.
// The block is rasterized once and composited over every frame.
type Caption struct {
	block *image.RGBA
	at    image.Rectangle
}

// NewCaption lays out text for a canvas of the given bounds.
func NewCaption(text string, canvas image.Rectangle, fontSize float64) (*Caption, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil, errors.New("empty caption")
	}
	if fontSize <= 0 {
		fontSize = 40
	}

	f, err := captionFont()
	if err != nil {
		return nil, fmt.Errorf("parse caption font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: fontSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("caption face: %w", err)
	}
	defer face.Close()

	cw, ch := canvas.Dx(), canvas.Dy()
	pad := int(fontSize / 2)
	maxText := cw*9/10 - 2*pad
	measure := func(s string) int { return font.MeasureString(face, s).Ceil() }
	lines := wrapLines(text, maxText, measure, maxCaptionLines)

	m := face.Metrics()
	lineHeight := m.Height.Ceil()
	textWidth := 0
	for _, l := range lines {
		textWidth = max(textWidth, measure(l))
	}
	bw := min(textWidth+2*pad, cw)
	bh := min(lineHeight*len(lines)+2*pad, ch)

	block := image.NewRGBA(image.Rect(0, 0, bw, bh))
	draw.Draw(block, block.Bounds(), image.NewUniform(color.RGBA{A: 150}), image.Point{}, draw.Src)

	d := &font.Drawer{Dst: block, Src: image.White, Face: face}
	for i, l := range lines {
		x := (bw - measure(l)) / 2
		y := pad + i*lineHeight + m.Ascent.Ceil()
		d.Dot = fixed.P(x, y)
		d.DrawString(l)
	}

	// Centered horizontally, centered on the 5/6 line vertically.
	x0 := canvas.Min.X + (cw-bw)/2
	y0 := canvas.Min.Y + ch*5/6 - bh/2
	if y0+bh > canvas.Max.Y-ch/20 {
		y0 = canvas.Max.Y - ch/20 - bh
	}
	y0 = max(y0, canvas.Min.Y+ch*2/3)
	return &Caption{block: block, at: image.Rect(x0, y0, x0+bw, y0+bh)}, nil
}

// Bounds is where the caption lands on the canvas.
func (c *Caption) Bounds() image.Rectangle {
	return c.at
}

func (c *Caption) Apply(dst draw.Image) {
	draw.Draw(dst, c.at, c.block, image.Point{}, draw.Over)
}

// wrapLines greedily fills lines up to maxWidth. Words wider than a line get
// a line of their own. Text beyond maxLines is cut with an ellipsis.
func wrapLines(text string, maxWidth int, measure func(string) int, maxLines int) []string {
	var lines []string
	line := ""
	for _, w := range strings.Fields(text) {
		candidate := w
		if line != "" {
			candidate = line + " " + w
		}
		if line == "" || measure(candidate) <= maxWidth {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = w
	}
	if line != "" {
		lines = append(lines, line)
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] += "…"
	}
	return lines
}
