package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivlev/grimwire/internal/logging"
	"github.com/ivlev/grimwire/internal/recipe"
)

type fakeMedia struct {
	imported []string
	released []string
	projects []string
}

func (f *fakeMedia) ImportClip(projectID, slotID, src string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	stored := filepath.Join("/store", projectID, slotID+"-"+filepath.Base(src))
	f.imported = append(f.imported, stored)
	return stored, nil
}

func (f *fakeMedia) Release(path string) error {
	f.released = append(f.released, path)
	return nil
}

func (f *fakeMedia) ReleaseProject(projectID string) error {
	f.projects = append(f.projects, projectID)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeMedia) {
	t.Helper()
	store, _ := openTestStore(t)
	catalog, err := recipe.LoadCatalog(t.TempDir())
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	media := &fakeMedia{}
	return NewManager(store, media, catalog, logging.Discard()), media
}

func writeClip(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateProjectRequiresKnownRecipe(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateProject(ctx, "nope", "x"); !errors.Is(err, recipe.ErrNotFound) {
		t.Errorf("expected recipe.ErrNotFound, got %v", err)
	}

	p, err := m.CreateProject(ctx, "hero-journey", "  ")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if p.Title != "Untitled" {
		t.Errorf("blank title should default, got %q", p.Title)
	}
}

func TestAddClipReleasesReplacedMedia(t *testing.T) {
	m, media := newTestManager(t)
	ctx := context.Background()
	p, _ := m.CreateProject(ctx, "hero-journey", "story")

	first := writeClip(t, "a.webm")
	second := writeClip(t, "b.webm")

	got, err := m.AddClip(ctx, p.ID, Clip{SlotID: "hook", MediaPath: first, Transcript: "hi"})
	if err != nil {
		t.Fatalf("AddClip failed: %v", err)
	}
	if got.Clips["hook"].Timestamp.IsZero() {
		t.Errorf("timestamp should default to now")
	}
	if len(media.released) != 0 {
		t.Errorf("nothing should be released yet: %v", media.released)
	}

	if _, err := m.AddClip(ctx, p.ID, Clip{SlotID: "hook", MediaPath: second, Timestamp: time.Now()}); err != nil {
		t.Fatalf("AddClip failed: %v", err)
	}
	if len(media.released) != 1 || media.released[0] != media.imported[0] {
		t.Errorf("expected first import released, got %v", media.released)
	}
}

func TestAddClipRejectsUnknownSlot(t *testing.T) {
	m, media := newTestManager(t)
	ctx := context.Background()
	p, _ := m.CreateProject(ctx, "hero-journey", "story")

	_, err := m.AddClip(ctx, p.ID, Clip{SlotID: "outro", MediaPath: writeClip(t, "a.webm")})
	if !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("expected ErrUnknownSlot, got %v", err)
	}
	if len(media.imported) != 0 {
		t.Errorf("media imported for rejected clip")
	}
}

func TestDeleteProjectReleasesMedia(t *testing.T) {
	m, media := newTestManager(t)
	ctx := context.Background()
	p, _ := m.CreateProject(ctx, "hero-journey", "story")
	m.AddClip(ctx, p.ID, Clip{SlotID: "hook", MediaPath: writeClip(t, "a.webm")})
	m.AddClip(ctx, p.ID, Clip{SlotID: "climax", MediaPath: writeClip(t, "b.webm")})

	if err := m.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	if len(media.released) != 2 {
		t.Errorf("expected both clips released, got %v", media.released)
	}
	if len(media.projects) != 1 || media.projects[0] != p.ID {
		t.Errorf("project dir not released: %v", media.projects)
	}
	if err := m.DeleteProject(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should fail with ErrNotFound, got %v", err)
	}
}

func TestMissingSlots(t *testing.T) {
	r := &recipe.Recipe{ID: "r", Slots: []recipe.Slot{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	p := &Project{Clips: map[string]Clip{"b": {SlotID: "b"}}}

	got := MissingSlots(r, p)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("MissingSlots = %v", got)
	}
}
