package engine

import (
	"testing"

	"github.com/ivlev/grimwire/internal/project"
	"github.com/ivlev/grimwire/internal/recipe"
)

func TestSequence(t *testing.T) {
	r := &recipe.Recipe{ID: "r", Slots: []recipe.Slot{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}}
	tests := []struct {
		name  string
		clips []string
		want  []string
	}{
		{"complete", []string{"d", "a", "c", "b"}, []string{"a", "b", "c", "d"}},
		{"gaps", []string{"d", "b"}, []string{"b", "d"}},
		{"empty", nil, nil},
		{"unknown slot ignored", []string{"a", "zzz"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clips := make(map[string]project.Clip)
			for _, id := range tt.clips {
				clips[id] = project.Clip{SlotID: id, MediaPath: "/m/" + id}
			}
			got := Sequence(r, clips)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d segments, want %d", len(got), len(tt.want))
			}
			for i, seg := range got {
				if seg.Index != i || seg.Slot.ID != tt.want[i] || seg.Clip.SlotID != tt.want[i] {
					t.Errorf("segment %d = %+v", i, seg)
				}
			}
		})
	}
}

func TestSegmentCaption(t *testing.T) {
	slot := recipe.Slot{ID: "hook", Description: "Grab attention", HasSubtitles: true}
	tests := []struct {
		name string
		seg  Segment
		want string
	}{
		{"transcript wins", Segment{Slot: slot, Clip: project.Clip{Transcript: "Hello"}}, "Hello"},
		{"description fallback", Segment{Slot: slot}, "Grab attention"},
		{"no subtitles", Segment{Slot: recipe.Slot{Description: "x"}, Clip: project.Clip{Transcript: "y"}}, ""},
	}
	for _, tt := range tests {
		if got := tt.seg.Caption(); got != tt.want {
			t.Errorf("%s: Caption() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
