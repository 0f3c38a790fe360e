package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivlev/grimwire/internal/system"
)

// Report summarises one completed render.
type Report struct {
	ProjectID   string
	Format      string
	Passthrough bool
	Segments    int
	Frames      int
	Duration    time.Duration
	InputBytes  int64
	OutputBytes int64
	Staging     time.Duration
	Processing  time.Duration
	Total       time.Duration
	PaddedAudio int64
	// Pool is the canvas pool usage of the process so far.
	Pool system.PoolStats
	Host system.HostStats
}

// EffectiveFPS is frames composed per wall-clock second.
func (r Report) EffectiveFPS() float64 {
	if r.Processing <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Processing.Seconds()
}

// LogLine is the single-line benchmark entry.
func (r Report) LogLine(at time.Time) string {
	return fmt.Sprintf("[%s] Project: %s | Format: %s | Segments: %d | Frames: %d | Output: %s | Total: %.2fs | Processing: %.2fs | FPS: %.2f | CPU: %.0f%% | RSS: %s\n",
		at.Format("2006-01-02 15:04:05"),
		r.ProjectID,
		r.Format,
		r.Segments,
		r.Frames,
		humanize.Bytes(uint64(r.OutputBytes)),
		r.Total.Seconds(),
		r.Processing.Seconds(),
		r.EffectiveFPS(),
		r.Host.CPUPercent,
		humanize.Bytes(r.Host.ProcessRSS),
	)
}

func (o *Orchestrator) publishReport(ctx context.Context, r *Report) {
	r.Host = system.CollectHostStats(ctx)
	r.Pool = system.GlobalPoolStats()
	o.logger.Info("render report",
		"project_id", r.ProjectID,
		"format", r.Format,
		"passthrough", r.Passthrough,
		"segments", r.Segments,
		"frames", r.Frames,
		"duration", r.Duration,
		"input_bytes", r.InputBytes,
		"output_bytes", r.OutputBytes,
		"staging", r.Staging,
		"processing", r.Processing,
		"total", r.Total,
		"padded_audio_samples", r.PaddedAudio,
		"effective_fps", r.EffectiveFPS(),
		"canvas_gets", r.Pool.Gets,
		"canvas_allocs", r.Pool.Allocs,
	)
	if !o.opts.Render.ShowStats || o.opts.Render.StatsLog == "" {
		return
	}
	f, err := os.OpenFile(o.opts.Render.StatsLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		o.logger.Warn("failed to open stats log", "path", o.opts.Render.StatsLog, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(r.LogLine(o.now())); err != nil {
		o.logger.Warn("failed to write stats log", "path", o.opts.Render.StatsLog, "error", err)
	}
}
