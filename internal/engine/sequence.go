package engine

import (
	"github.com/ivlev/grimwire/internal/project"
	"github.com/ivlev/grimwire/internal/recipe"
)

// Segment is one recorded clip placed at its slot's position.
type Segment struct {
	Index int
	Slot  recipe.Slot
	Clip  project.Clip
}

// Sequence walks the recipe's slots in order and pairs each with its clip.
// Slots without a clip are skipped; completeness is the caller's concern.
func Sequence(r *recipe.Recipe, clips map[string]project.Clip) []Segment {
	var out []Segment
	for _, slot := range r.Slots {
		clip, ok := clips[slot.ID]
		if !ok {
			continue
		}
		out = append(out, Segment{Index: len(out), Slot: slot, Clip: clip})
	}
	return out
}

// Caption is the text burned into a segment: the transcript, or the slot
// description when nothing was transcribed. Empty when the slot has no
// subtitles.
func (s Segment) Caption() string {
	if !s.Slot.HasSubtitles {
		return ""
	}
	if s.Clip.Transcript != "" {
		return s.Clip.Transcript
	}
	return s.Slot.Description
}
