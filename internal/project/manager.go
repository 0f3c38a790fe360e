package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ivlev/grimwire/internal/recipe"
)

// ErrUnknownSlot is returned when a clip targets a slot the recipe lacks.
var ErrUnknownSlot = errors.New("slot not in recipe")

// Media imports and releases clip recordings.
type Media interface {
	ImportClip(projectID, slotID, src string) (string, error)
	Release(path string) error
	ReleaseProject(projectID string) error
}

// Recipes resolves recipe ids.
type Recipes interface {
	Get(id string) (*recipe.Recipe, error)
}

// Manager is the capture-side entry point: it creates projects and swaps
// clips in and out while keeping media ownership consistent.
type Manager struct {
	store   *Store
	media   Media
	recipes Recipes
	logger  *slog.Logger
}

// NewManager wires a manager.
func NewManager(store *Store, media Media, recipes Recipes, logger *slog.Logger) *Manager {
	return &Manager{store: store, media: media, recipes: recipes, logger: logger}
}

// Store exposes the underlying metadata store.
func (m *Manager) Store() *Store {
	return m.store
}

// CreateProject starts a draft project for a recipe.
func (m *Manager) CreateProject(ctx context.Context, recipeID, title string) (*Project, error) {
	if _, err := m.recipes.Get(recipeID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	p, err := m.store.Create(ctx, recipeID, title)
	if err != nil {
		return nil, err
	}
	m.logger.Info("project created", "project_id", p.ID, "recipe", recipeID)
	return p, nil
}

// AddClip imports the recording at clip.MediaPath for clip.SlotID, replacing
// and releasing any earlier recording for that slot. A zero timestamp means
// now.
func (m *Manager) AddClip(ctx context.Context, projectID string, clip Clip) (*Project, error) {
	p, err := m.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	r, err := m.recipes.Get(p.RecipeID)
	if err != nil {
		return nil, err
	}
	if _, ok := r.Slot(clip.SlotID); !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownSlot, clip.SlotID, r.ID)
	}

	stored, err := m.media.ImportClip(projectID, clip.SlotID, clip.MediaPath)
	if err != nil {
		return nil, err
	}
	clip.MediaPath = stored
	if clip.Timestamp.IsZero() {
		clip.Timestamp = time.Now()
	}

	replaced, err := m.store.PutClip(ctx, projectID, clip)
	if err != nil {
		_ = m.media.Release(stored)
		return nil, err
	}
	if replaced != nil {
		if err := m.media.Release(replaced.MediaPath); err != nil {
			m.logger.Warn("failed to release replaced clip", "project_id", projectID, "slot", clip.SlotID, "error", err)
		}
	}
	m.logger.Info("clip stored", "project_id", projectID, "slot", clip.SlotID, "replaced", replaced != nil)
	return m.store.Get(ctx, projectID)
}

// DeleteProject removes the project and all of its clip media. Rendered
// outputs are not touched.
func (m *Manager) DeleteProject(ctx context.Context, projectID string) error {
	clips, err := m.store.Delete(ctx, projectID)
	if err != nil {
		return err
	}
	for _, c := range clips {
		if err := m.media.Release(c.MediaPath); err != nil {
			m.logger.Warn("failed to release clip", "project_id", projectID, "slot", c.SlotID, "error", err)
		}
	}
	return m.media.ReleaseProject(projectID)
}

// MissingSlots lists the recipe slots that have no clip yet, in recipe order.
func MissingSlots(r *recipe.Recipe, p *Project) []string {
	var missing []string
	for _, s := range r.Slots {
		if _, ok := p.Clips[s.ID]; !ok {
			missing = append(missing, s.ID)
		}
	}
	return missing
}
