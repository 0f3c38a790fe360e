package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/ivlev/grimwire/internal/system"
)

// FFmpegDecoder plays clips back through ffmpeg. Video and audio are decoded
// by two processes so each can be pulled at its own pace.
type FFmpegDecoder struct {
	Binary      string
	ProbeBinary string
	Options     Options
	Logger      *slog.Logger
}

// NewFFmpegDecoder returns a decoder using the given binaries.
func NewFFmpegDecoder(binary, probeBinary string, opts Options, logger *slog.Logger) *FFmpegDecoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if probeBinary == "" {
		probeBinary = "ffprobe"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FFmpegDecoder{Binary: binary, ProbeBinary: probeBinary, Options: opts, Logger: logger}
}

// Open probes the clip and starts playback. Cancelling ctx stops playback.
func (d *FFmpegDecoder) Open(ctx context.Context, path string) (Clip, error) {
	probe, err := Probe(ctx, d.ProbeBinary, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	info, err := probe.Info()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, path, err)
	}

	video, err := startProcess(ctx, d.Binary, d.videoArgs(path, info))
	if err != nil {
		return nil, fmt.Errorf("%w: start video decode: %v", ErrDecodeFailure, err)
	}

	c := &ffmpegClip{
		path:  path,
		info:  info,
		frame: image.NewRGBA(image.Rect(0, 0, info.Width, info.Height)),
		video: video,
	}

	if info.HasAudio {
		audio, err := startProcess(ctx, d.Binary, d.audioArgs(path))
		if err != nil {
			// Video-only playback still produces a valid segment.
			d.Logger.Warn("audio decode unavailable, segment will be silent", "path", path, "error", err)
		} else {
			c.audio = audio
		}
	}

	d.Logger.Debug("clip opened",
		"path", path,
		"size", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"rotation", info.Rotation,
		"duration", info.Duration,
		"audio", info.HasAudio,
	)
	return c, nil
}

func (d *FFmpegDecoder) videoArgs(path string, info Info) []string {
	fps := d.Options.FPS
	if fps <= 0 {
		fps = 30
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", path,
		"-an", "-sn",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fps, info.Width, info.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}

func (d *FFmpegDecoder) audioArgs(path string) []string {
	rate := d.Options.SampleRate
	if rate <= 0 {
		rate = 48000
	}
	channels := d.Options.Channels
	if channels <= 0 {
		channels = 2
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", path,
		"-vn", "-sn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	}
}

type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *system.TailBuffer
	done   bool
	err    error
}

func startProcess(ctx context.Context, binary string, args []string) (*process, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := system.NewTailBuffer(4096)
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &process{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// wait reaps the process once its output has been drained.
func (p *process) wait() error {
	if p.done {
		return p.err
	}
	p.done = true
	if err := p.cmd.Wait(); err != nil {
		p.err = fmt.Errorf("%v: %s", err, p.stderr.String())
	}
	return p.err
}

func (p *process) stop() {
	if p.done {
		return
	}
	_ = p.stdout.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.wait()
}

type ffmpegClip struct {
	path   string
	info   Info
	frame  *image.RGBA
	video  *process
	audio  *process
	frames int
	eof    bool
}

func (c *ffmpegClip) Info() Info {
	return c.info
}

func (c *ffmpegClip) NextFrame() (image.Image, error) {
	if c.eof {
		return nil, io.EOF
	}
	_, err := io.ReadFull(c.video.stdout, c.frame.Pix)
	if err == nil {
		c.frames++
		return c.frame, nil
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %s: read frame: %v", ErrDecodeFailure, c.path, err)
	}

	c.eof = true
	if werr := c.video.wait(); werr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, c.path, werr)
	}
	if c.frames == 0 {
		return nil, fmt.Errorf("%w: %s: no frames decoded", ErrDecodeFailure, c.path)
	}
	return nil, io.EOF
}

func (c *ffmpegClip) Audio() io.Reader {
	if c.audio == nil {
		return nil
	}
	return c.audio.stdout
}

func (c *ffmpegClip) Close() error {
	c.video.stop()
	if c.audio != nil {
		c.audio.stop()
	}
	return nil
}
