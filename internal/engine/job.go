package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ivlev/grimwire/internal/audio"
	"github.com/ivlev/grimwire/internal/config"
	"github.com/ivlev/grimwire/internal/effects"
	"github.com/ivlev/grimwire/internal/project"
	"github.com/ivlev/grimwire/internal/recipe"
	"github.com/ivlev/grimwire/internal/renderer"
	"github.com/ivlev/grimwire/internal/source"
	"github.com/ivlev/grimwire/internal/video"
)

// renderJob is the state owned by one render attempt. Nothing in it is
// shared with other renders.
type renderJob struct {
	project  *project.Project
	recipe   *recipe.Recipe
	segments []Segment
	canvas   config.Size
	scratch  string

	compositor *renderer.Compositor
	session    video.Session
	router     *audio.Router

	report Report
}

// stage checks every clip's media before any decoding starts and prepares
// the scratch directory.
func (o *Orchestrator) stage(p *project.Project, r *recipe.Recipe, segments []Segment) (*renderJob, error) {
	job := &renderJob{
		project:  p,
		recipe:   r,
		segments: segments,
		canvas:   o.canvasFor(r.AspectRatio()),
		report:   Report{ProjectID: p.ID, Segments: len(segments)},
	}
	for _, seg := range segments {
		f, err := os.Open(seg.Clip.MediaPath)
		if err != nil {
			return nil, fmt.Errorf("%w: clip for slot %s: %v", source.ErrDecodeFailure, seg.Slot.ID, err)
		}
		info, err := f.Stat()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: clip for slot %s: %v", source.ErrDecodeFailure, seg.Slot.ID, err)
		}
		if info.Size() == 0 {
			return nil, fmt.Errorf("%w: clip for slot %s is empty", source.ErrDecodeFailure, seg.Slot.ID)
		}
		job.report.InputBytes += info.Size()
	}

	if o.opts.ScratchDir != "" {
		if err := os.MkdirAll(o.opts.ScratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		dir, err := os.MkdirTemp(o.opts.ScratchDir, "render-"+p.ID+"-")
		if err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		job.scratch = dir
	}
	return job, nil
}

func (j *renderJob) cleanup() {
	if j.session != nil {
		j.session.Abort()
	}
	if j.compositor != nil {
		j.compositor.Release()
	}
	if j.scratch != "" {
		os.RemoveAll(j.scratch)
	}
}

func (o *Orchestrator) canvasFor(aspect string) config.Size {
	if size, ok := o.opts.Render.Canvas[aspect]; ok {
		return size
	}
	if size, ok := o.opts.Render.Canvas[config.AspectPortrait]; ok {
		return size
	}
	if aspect == config.AspectLandscape {
		return config.Size{Width: 1280, Height: 720}
	}
	return config.Size{Width: 720, Height: 1280}
}

// passthrough publishes a single clip as recorded.
func (o *Orchestrator) passthrough(ctx context.Context, job *renderJob) (string, error) {
	seg := job.segments[0]
	ref, err := o.outputs.CopyOutput(ctx, job.project.Title, seg.Clip.MediaPath)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("render cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("publish clip: %w", err)
	}
	job.report.Passthrough = true
	job.report.Format = "source"
	job.report.OutputBytes = job.report.InputBytes
	return ref, nil
}

// compose plays every segment through the compositor and router into one
// encoder session, then publishes the finished blob.
func (o *Orchestrator) compose(ctx context.Context, logger *slog.Logger, job *renderJob) (string, error) {
	rc := o.opts.Render
	comp, err := renderer.NewCompositor(job.canvas, rc.Scaler)
	if err != nil {
		return "", err
	}
	job.compositor = comp

	session, err := o.encoder.Start(ctx, video.Params{
		Width:      job.canvas.Width,
		Height:     job.canvas.Height,
		FPS:        rc.FPS,
		SampleRate: rc.SampleRate,
		Channels:   rc.Channels,
	})
	if err != nil {
		return "", err
	}
	job.session = session

	router, err := audio.NewRouter(session, rc.SampleRate, rc.Channels, rc.FPS)
	if err != nil {
		return "", err
	}
	job.router = router

	logger.Info("composing",
		"segments", len(job.segments),
		"canvas", fmt.Sprintf("%dx%d", job.canvas.Width, job.canvas.Height),
		"fps", rc.FPS,
		"format", o.encoder.Format().Name,
	)

	for _, seg := range job.segments {
		frames, err := o.playSegment(ctx, job, seg)
		if err != nil {
			return "", err
		}
		logger.Debug("segment done", "index", seg.Index, "slot", seg.Slot.ID, "frames", frames)
		if o.Progress != nil {
			o.Progress(Progress{
				ProjectID: job.project.ID,
				Index:     seg.Index,
				Total:     len(job.segments),
				SlotID:    seg.Slot.ID,
				Frames:    frames,
			})
		}
	}

	logger.Debug("segments composed", "frames", comp.Frames())

	job.session = nil
	blob, err := session.Finish()
	if err != nil {
		return "", err
	}

	ref, err := o.outputs.WriteOutput(job.project.Title, blob.Format.Extension, blob.Data)
	if err != nil {
		return "", fmt.Errorf("publish output: %w", err)
	}
	job.report.Format = blob.Format.Name
	job.report.Frames = blob.Frames
	job.report.Duration = blob.Duration
	job.report.OutputBytes = int64(len(blob.Data))
	job.report.PaddedAudio = router.Stats().Padded
	return ref, nil
}

// playSegment pulls one clip to its end. The clip's audio is routed only
// while its frames are being written.
func (o *Orchestrator) playSegment(ctx context.Context, job *renderJob, seg Segment) (int, error) {
	clipCtx := ctx
	if t := o.opts.Render.ClipTimeout; t > 0 {
		var cancel context.CancelFunc
		clipCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	clip, err := o.decoder.Open(clipCtx, seg.Clip.MediaPath)
	if err != nil {
		return 0, segmentError(ctx, clipCtx, seg, err)
	}
	defer clip.Close()

	fx, err := effects.ForSegment(effects.SegmentParams{
		Width:     job.canvas.Width,
		Height:    job.canvas.Height,
		FPS:       o.opts.Render.FPS,
		SlotIndex: seg.Index,
		SlotID:    seg.Slot.ID,
		Caption:   seg.Caption(),
	}, o.opts.Render.CaptionFontSize)
	if err != nil {
		return 0, fmt.Errorf("caption for slot %s: %w", seg.Slot.ID, err)
	}

	job.router.Switch(clip.Audio())
	frames := 0
	for {
		if clipCtx.Err() != nil {
			return frames, segmentError(ctx, clipCtx, seg, clipCtx.Err())
		}
		img, err := clip.NextFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return frames, segmentError(ctx, clipCtx, seg, err)
		}

		canvas := job.compositor.Compose(img)
		if fx != nil {
			fx.Apply(canvas)
		}
		if err := job.session.WriteFrame(canvas); err != nil {
			return frames, err
		}
		if err := job.router.Advance(); err != nil {
			return frames, err
		}
		frames++
	}
	job.router.Switch(nil)
	return frames, nil
}

// segmentError attributes a decode-side error. Cancellation of the render
// wins; a clip deadline is a decode failure.
func segmentError(ctx, clipCtx context.Context, seg Segment, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("render cancelled: %w", ctx.Err())
	}
	if errors.Is(clipCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: clip for slot %s timed out", source.ErrDecodeFailure, seg.Slot.ID)
	}
	if errors.Is(err, source.ErrDecodeFailure) {
		return fmt.Errorf("slot %s: %w", seg.Slot.ID, err)
	}
	return fmt.Errorf("%w: slot %s: %v", source.ErrDecodeFailure, seg.Slot.ID, err)
}
