// Package engine turns a project's recorded clips into one output video and
// drives the project's render lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ivlev/grimwire/internal/config"
	"github.com/ivlev/grimwire/internal/logging"
	"github.com/ivlev/grimwire/internal/project"
	"github.com/ivlev/grimwire/internal/recipe"
	"github.com/ivlev/grimwire/internal/source"
	"github.com/ivlev/grimwire/internal/video"
)

var (
	// ErrIncompleteSequence rejects a render while some slot has no clip.
	ErrIncompleteSequence = errors.New("incomplete sequence")
	// ErrRenderInProgress rejects a second render of the same project.
	ErrRenderInProgress = errors.New("render already in progress")
)

// Projects is the project persistence the orchestrator reads and updates.
type Projects interface {
	Get(ctx context.Context, id string) (*project.Project, error)
	UpdateStatus(ctx context.Context, id string, status project.Status, outputURL, cause string) error
}

// Recipes resolves a project's recipe.
type Recipes interface {
	Get(id string) (*recipe.Recipe, error)
}

// Outputs publishes finished renders and returns their references.
type Outputs interface {
	WriteOutput(title, ext string, data []byte) (string, error)
	CopyOutput(ctx context.Context, title, src string) (string, error)
}

// Update is one lifecycle notification.
type Update struct {
	ProjectID string
	Status    project.Status
	OutputURL string
	Err       error
	// Report is set on COMPLETED.
	Report *Report
}

// StatusFunc receives lifecycle notifications synchronously.
type StatusFunc func(Update)

// Progress is reported after each segment has been written.
type Progress struct {
	ProjectID string
	Index     int
	Total     int
	SlotID    string
	Frames    int
}

// ProgressFunc receives per-segment progress.
type ProgressFunc func(Progress)

// Options configure rendering.
type Options struct {
	Render     config.Render
	LocksDir   string
	ScratchDir string
}

// Orchestrator runs renders. It is safe for concurrent use; renders of
// different projects may run in parallel, a project renders once at a time.
type Orchestrator struct {
	projects Projects
	recipes  Recipes
	outputs  Outputs
	decoder  source.Decoder
	encoder  video.Encoder
	opts     Options
	logger   *slog.Logger

	// Progress is optional.
	Progress ProgressFunc

	mu     sync.Mutex
	active map[string]bool
	now    func() time.Time
}

// New wires an orchestrator.
func New(projects Projects, recipes Recipes, outputs Outputs, decoder source.Decoder, encoder video.Encoder, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		projects: projects,
		recipes:  recipes,
		outputs:  outputs,
		decoder:  decoder,
		encoder:  encoder,
		opts:     opts,
		logger:   logging.WithComponent(logger, "engine"),
		active:   make(map[string]bool),
		now:      time.Now,
	}
}

// RenderStream runs Render in the background and delivers its notifications
// on the returned channel, which is closed when the attempt ends. A render
// that cannot start delivers a single FAILED update carrying the error.
func (o *Orchestrator) RenderStream(ctx context.Context, projectID string) <-chan Update {
	ch := make(chan Update, 4)
	go func() {
		defer close(ch)
		terminal := false
		_, err := o.Render(ctx, projectID, func(u Update) {
			terminal = terminal || u.Status.IsTerminal()
			ch <- u
		})
		if err != nil && !terminal {
			ch <- Update{ProjectID: projectID, Status: project.StatusFailed, Err: err}
		}
	}()
	return ch
}

// Render assembles the project's clips and returns the output reference.
// Every state change is persisted and passed to notify before Render moves
// on. Incomplete projects fail without entering UPLOADING.
func (o *Orchestrator) Render(ctx context.Context, projectID string, notify StatusFunc) (string, error) {
	if notify == nil {
		notify = func(Update) {}
	}
	release, err := o.acquire(projectID)
	if err != nil {
		return "", err
	}
	defer release()

	p, err := o.projects.Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	logger := logging.WithProject(o.logger, projectID)
	started := o.now()

	r, err := o.recipes.Get(p.RecipeID)
	if err != nil {
		return "", o.fail(ctx, logger, p.ID, notify, err)
	}
	segments := Sequence(r, p.Clips)
	if len(segments) < len(r.Slots) {
		missing := project.MissingSlots(r, p)
		return "", o.fail(ctx, logger, p.ID, notify, fmt.Errorf("%w: missing clips for %v", ErrIncompleteSequence, missing))
	}

	o.transition(ctx, logger, p.ID, project.StatusUploading, notify)
	job, stageErr := o.stage(p, r, segments)
	if job != nil {
		defer job.cleanup()
		job.report.Staging = o.now().Sub(started)
	}

	// Staging problems surface as processing failures.
	o.transition(ctx, logger, p.ID, project.StatusProcessing, notify)
	if stageErr != nil {
		return "", o.fail(ctx, logger, p.ID, notify, stageErr)
	}
	processing := o.now()

	var outputURL string
	if len(segments) == 1 && o.opts.Render.PassthroughSingleClip {
		outputURL, err = o.passthrough(ctx, job)
	} else {
		outputURL, err = o.compose(ctx, logger, job)
	}
	if err != nil {
		return "", o.fail(ctx, logger, p.ID, notify, err)
	}

	report := job.report
	report.Processing = o.now().Sub(processing)
	report.Total = o.now().Sub(started)
	o.publishReport(ctx, &report)

	if err := o.projects.UpdateStatus(context.WithoutCancel(ctx), p.ID, project.StatusCompleted, outputURL, ""); err != nil {
		logger.Warn("failed to persist status", "status", project.StatusCompleted, "error", err)
	}
	logger.Info("render completed", "output", outputURL, "frames", report.Frames)
	notify(Update{ProjectID: p.ID, Status: project.StatusCompleted, OutputURL: outputURL, Report: &report})
	return outputURL, nil
}

// acquire takes the in-process guard and the cross-process lock file.
func (o *Orchestrator) acquire(projectID string) (func(), error) {
	o.mu.Lock()
	if o.active[projectID] {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRenderInProgress, projectID)
	}
	o.active[projectID] = true
	o.mu.Unlock()

	done := func() {
		o.mu.Lock()
		delete(o.active, projectID)
		o.mu.Unlock()
	}
	if o.opts.LocksDir == "" {
		return done, nil
	}

	if err := os.MkdirAll(o.opts.LocksDir, 0o755); err != nil {
		done()
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	lock := flock.New(project.LockPath(o.opts.LocksDir, projectID))
	ok, err := lock.TryLock()
	if err != nil {
		done()
		return nil, fmt.Errorf("acquire render lock: %w", err)
	}
	if !ok {
		done()
		return nil, fmt.Errorf("%w: %s (held by another process)", ErrRenderInProgress, projectID)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release render lock", "project_id", projectID, "error", err)
		}
		done()
	}, nil
}

func (o *Orchestrator) transition(ctx context.Context, logger *slog.Logger, id string, status project.Status, notify StatusFunc) {
	if err := o.projects.UpdateStatus(context.WithoutCancel(ctx), id, status, "", ""); err != nil {
		logger.Warn("failed to persist status", "status", status, "error", err)
	}
	logger.Info("render status", "status", status)
	notify(Update{ProjectID: id, Status: status})
}

// fail records the single FAILED notification for this attempt. The
// previous output reference is left in place.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, id string, notify StatusFunc, cause error) error {
	if err := o.projects.UpdateStatus(context.WithoutCancel(ctx), id, project.StatusFailed, "", cause.Error()); err != nil {
		logger.Warn("failed to persist status", "status", project.StatusFailed, "error", err)
	}
	logger.Error("render failed", "error", cause)
	notify(Update{ProjectID: id, Status: project.StatusFailed, Err: cause})
	return cause
}
