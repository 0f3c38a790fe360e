package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grimwire.db")
	s, err := Open(path, locksDirFor(path), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func locksDirFor(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "locks")
}

func TestCreateAndGet(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	p, err := s.Create(ctx, "hero-journey", "My Story")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.ID == "" || p.Status != StatusDraft {
		t.Fatalf("unexpected project %+v", p)
	}
	if len(p.Clips) != 0 {
		t.Errorf("new project should have no clips")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutClipReplaces(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	p, _ := s.Create(ctx, "r", "t")

	first := Clip{SlotID: "hook", MediaPath: "/clips/a.webm", Timestamp: time.Now(), Transcript: "hello"}
	replaced, err := s.PutClip(ctx, p.ID, first)
	if err != nil {
		t.Fatalf("PutClip failed: %v", err)
	}
	if replaced != nil {
		t.Fatalf("first clip should not replace anything")
	}

	second := Clip{SlotID: "hook", MediaPath: "/clips/b.webm", Timestamp: time.Now()}
	replaced, err = s.PutClip(ctx, p.ID, second)
	if err != nil {
		t.Fatalf("PutClip failed: %v", err)
	}
	if replaced == nil || replaced.MediaPath != "/clips/a.webm" || replaced.Transcript != "hello" {
		t.Fatalf("expected first clip returned as replaced, got %+v", replaced)
	}

	got, _ := s.Get(ctx, p.ID)
	if len(got.Clips) != 1 {
		t.Fatalf("expected one clip per slot, got %d", len(got.Clips))
	}
	if c := got.Clips["hook"]; c.MediaPath != "/clips/b.webm" || c.Transcript != "" {
		t.Errorf("slot holds %+v", c)
	}

	if _, err := s.PutClip(ctx, "missing", first); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown project, got %v", err)
	}
}

func TestUpdateStatusKeepsOutputOnFailure(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	p, _ := s.Create(ctx, "r", "t")

	if err := s.UpdateStatus(ctx, p.ID, StatusCompleted, "file:///out/a.webm", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, p.ID, StatusUploading, "", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, p.ID, StatusFailed, "", "decode failure"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, p.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s", got.Status)
	}
	if got.OutputURL != "file:///out/a.webm" {
		t.Errorf("previous output lost: %q", got.OutputURL)
	}
	if got.LastError != "decode failure" {
		t.Errorf("last error = %q", got.LastError)
	}

	if err := s.UpdateStatus(ctx, "missing", StatusFailed, "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReopenMarksInterrupted(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	p, _ := s.Create(ctx, "r", "t")
	if err := s.UpdateStatus(ctx, p.ID, StatusProcessing, "", ""); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := Open(path, locksDirFor(path), nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, _ := reopened.Get(ctx, p.ID)
	if got.Status != StatusFailed || got.LastError != "interrupted by restart" {
		t.Errorf("expected interrupted render marked failed, got %s (%q)", got.Status, got.LastError)
	}
}

func TestOpenLeavesLockedRenderRunning(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	live, _ := s.Create(ctx, "r", "live")
	stale, _ := s.Create(ctx, "r", "stale")
	for _, id := range []string{live.ID, stale.ID} {
		if err := s.UpdateStatus(ctx, id, StatusProcessing, "", ""); err != nil {
			t.Fatal(err)
		}
	}

	if err := os.MkdirAll(locksDirFor(path), 0o755); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(LockPath(locksDirFor(path), live.ID))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("could not take render lock: ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	// A second store on the same database, as a CLI command would open
	// while the render runs.
	other, err := Open(path, locksDirFor(path), nil)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer other.Close()

	got, _ := s.Get(ctx, live.ID)
	if got.Status != StatusProcessing {
		t.Errorf("running render changed to %s (%q)", got.Status, got.LastError)
	}
	got, _ = s.Get(ctx, stale.ID)
	if got.Status != StatusFailed {
		t.Errorf("unlocked render should be marked failed, got %s", got.Status)
	}
}

func TestOpenWithoutLocksDirMarksNothing(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	p, _ := s.Create(ctx, "r", "t")
	if err := s.UpdateStatus(ctx, p.ID, StatusUploading, "", ""); err != nil {
		t.Fatal(err)
	}

	other, err := Open(path, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	if got, _ := s.Get(ctx, p.ID); got.Status != StatusUploading {
		t.Errorf("status = %s, want %s", got.Status, StatusUploading)
	}
}

func TestListAndDelete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, "r", "a")
	b, _ := s.Create(ctx, "r", "b")
	s.PutClip(ctx, a.ID, Clip{SlotID: "hook", MediaPath: "/x", Timestamp: time.Now()})

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(list))
	}

	clips, err := s.Delete(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 1 || clips[0].MediaPath != "/x" {
		t.Errorf("delete returned %+v", clips)
	}
	if _, err := s.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("project still present")
	}
	if _, err := s.Get(ctx, b.ID); err != nil {
		t.Errorf("other project affected: %v", err)
	}
}
