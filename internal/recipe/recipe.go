package recipe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ivlev/grimwire/internal/config"
)

var (
	// ErrNotFound is returned when a recipe id is unknown to the catalog.
	ErrNotFound = errors.New("recipe not found")
	// ErrInvalid wraps every recipe validation failure.
	ErrInvalid = errors.New("invalid recipe")
)

// Recipe is an ordered template of slots. Slot order is the final video order.
type Recipe struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Slots       []Slot `yaml:"slots"`
}

// Slot is one required segment of the final video.
type Slot struct {
	ID                  string `yaml:"id"`
	Name                string `yaml:"name"`
	Description         string `yaml:"description"`
	DurationHint        string `yaml:"duration_hint,omitempty"`
	RequiredAspectRatio string `yaml:"required_aspect_ratio,omitempty"`
	HasSubtitles        bool   `yaml:"has_subtitles,omitempty"`
}

// AspectRatio returns the slot's required aspect ratio, portrait when unset.
func (s Slot) AspectRatio() string {
	if s.RequiredAspectRatio == "" {
		return config.AspectPortrait
	}
	return s.RequiredAspectRatio
}

// AspectRatio is the aspect the whole render uses: the first slot decides.
func (r *Recipe) AspectRatio() string {
	if len(r.Slots) == 0 {
		return config.AspectPortrait
	}
	return r.Slots[0].AspectRatio()
}

// Slot looks up a slot by id.
func (r *Recipe) Slot(id string) (Slot, bool) {
	for _, s := range r.Slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// Validate checks ids, slot uniqueness and aspect ratios.
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if len(r.Slots) == 0 {
		return fmt.Errorf("%w: %s has no slots", ErrInvalid, r.ID)
	}
	seen := make(map[string]struct{}, len(r.Slots))
	for i, s := range r.Slots {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: %s slot %d has no id", ErrInvalid, r.ID, i+1)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: %s has duplicate slot %q", ErrInvalid, r.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		switch s.AspectRatio() {
		case config.AspectPortrait, config.AspectLandscape:
		default:
			return fmt.Errorf("%w: slot %q has unsupported aspect ratio %q", ErrInvalid, s.ID, s.RequiredAspectRatio)
		}
	}
	return nil
}
