package effects

import (
	"image"
	"image/draw"
)

// Effect draws an overlay onto a composed canvas frame.
type Effect interface {
	Apply(dst draw.Image)
}

// SegmentParams describes one clip segment on the output canvas.
type SegmentParams struct {
	Width, Height int
	FPS           int
	SlotIndex     int
	SlotID        string
	Caption       string
}

// ForSegment builds the overlay for one segment. It returns nil when the
// segment carries no caption.
func ForSegment(p SegmentParams, fontSize float64) (Effect, error) {
	if p.Caption == "" {
		return nil, nil
	}
	c, err := NewCaption(p.Caption, image.Rect(0, 0, p.Width, p.Height), fontSize)
	if err != nil {
		return nil, err
	}
	return c, nil
}
