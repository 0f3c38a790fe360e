package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/grimwire/internal/system"
)

// Params describe the stream a session produces.
type Params struct {
	Width, Height int
	FPS           int
	SampleRate    int
	Channels      int
}

// Blob is a finalized output stream.
type Blob struct {
	Format   Format
	Data     []byte
	Frames   int
	Duration time.Duration
}

// Encoder starts encoding sessions in the format it was built for.
type Encoder interface {
	Format() Format
	Start(ctx context.Context, p Params) (Session, error)
}

// Session receives frames and audio for one render. Write takes interleaved
// s16le PCM. Finish may only be called once all input has been written;
// Abort discards everything.
type Session interface {
	WriteFrame(img *image.RGBA) error
	Write(pcm []byte) (int, error)
	Finish() (*Blob, error)
	Abort()
}

// FFmpegEncoder encodes through an ffmpeg process per session.
type FFmpegEncoder struct {
	binary  string
	format  Format
	quality int
	logger  *slog.Logger
}

// NewFFmpegEncoder resolves the output format once from the preference list
// and the encoders ffmpeg reports.
func NewFFmpegEncoder(binary string, available map[string]bool, preference []string, quality int, logger *slog.Logger) (*FFmpegEncoder, error) {
	f, err := SelectFormat(preference, available)
	if err != nil {
		return nil, err
	}
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FFmpegEncoder{binary: binary, format: f, quality: quality, logger: logger}, nil
}

// Unavailable stands in for an encoder that could not be set up. Every
// Start returns err, so the failure lands on the render that needed it.
func Unavailable(err error) Encoder {
	if err == nil {
		err = ErrEncodingFailure
	}
	return unavailableEncoder{err: err}
}

type unavailableEncoder struct {
	err error
}

func (u unavailableEncoder) Format() Format {
	return Format{}
}

func (u unavailableEncoder) Start(context.Context, Params) (Session, error) {
	return nil, u.err
}

func (e *FFmpegEncoder) Format() Format {
	return e.format
}

// Start launches ffmpeg. Video goes to stdin, audio to an extra pipe on fd 3
// and the encoded stream comes back on stdout.
func (e *FFmpegEncoder) Start(ctx context.Context, p Params) (Session, error) {
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 || p.SampleRate <= 0 || p.Channels <= 0 {
		return nil, fmt.Errorf("%w: invalid params %+v", ErrEncodingFailure, p)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, e.binary, e.buildFFmpegArgs(p)...)
	stderr := system.NewTailBuffer(4096)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audio pipe error: %w", err)
	}
	cmd.ExtraFiles = []*os.File{audioR}

	if err := cmd.Start(); err != nil {
		cancel()
		audioR.Close()
		audioW.Close()
		return nil, fmt.Errorf("%w: ffmpeg start error: %v", ErrEncodingFailure, err)
	}
	audioR.Close()

	group, gctx := errgroup.WithContext(ctx)
	s := &ffmpegSession{
		format:    e.format,
		params:    p,
		cmd:       cmd,
		cancel:    cancel,
		stdin:     stdin,
		stderr:    stderr,
		audio:     make(chan []byte, 256),
		group:     group,
		gctx:      gctx,
		frameSize: p.Width * p.Height * 4,
		logger:    e.logger,
	}

	group.Go(func() error {
		defer audioW.Close()
		for buf := range s.audio {
			if _, err := audioW.Write(buf); err != nil {
				return fmt.Errorf("audio pipe: %w", err)
			}
		}
		return nil
	})
	group.Go(func() error {
		return s.collect(stdout)
	})

	e.logger.Debug("encoder started", "format", e.format.Name, "video_codec", e.format.VideoCodec, "audio_codec", e.format.AudioCodec)
	return s, nil
}

func (e *FFmpegEncoder) buildFFmpegArgs(p Params) []string {
	f := e.format
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-thread_queue_size", "64",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", strconv.Itoa(p.FPS),
		"-i", "pipe:0",
		"-thread_queue_size", "1024",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.SampleRate),
		"-ac", strconv.Itoa(p.Channels),
		"-i", "pipe:3",
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", f.VideoCodec,
		"-pix_fmt", "yuv420p",
	}
	args = append(args, qualityArgs(f.VideoCodec, e.quality)...)
	args = append(args, "-c:a", f.AudioCodec, "-b:a", "128k")
	if f.Container == "mp4" {
		// Non-seekable output needs a fragmented file.
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	}
	args = append(args, "-f", f.Container, "pipe:1")
	return args
}

type ffmpegSession struct {
	format Format
	params Params
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stderr *system.TailBuffer
	logger *slog.Logger

	audio     chan []byte
	audioOnce sync.Once
	group     *errgroup.Group
	gctx      context.Context

	// chunks is owned by the collector until group.Wait returns.
	chunks    [][]byte
	frames    int
	frameSize int
	done      bool
}

func (s *ffmpegSession) collect(r io.Reader) error {
	for {
		buf := make([]byte, 64*1024)
		n, err := r.Read(buf)
		if n > 0 {
			s.chunks = append(s.chunks, buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read encoded stream: %w", err)
		}
	}
}

func (s *ffmpegSession) WriteFrame(img *image.RGBA) error {
	if s.done {
		return fmt.Errorf("%w: session closed", ErrEncodingFailure)
	}
	if err := s.writeRawRGBA(s.stdin, img); err != nil {
		return fmt.Errorf("%w: write frame %d: %v: %s", ErrEncodingFailure, s.frames, err, s.stderr.String())
	}
	s.frames++
	return nil
}

func (s *ffmpegSession) writeRawRGBA(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	if bounds.Dx()*bounds.Dy()*4 != s.frameSize {
		return fmt.Errorf("frame is %dx%d, session expects %dx%d", bounds.Dx(), bounds.Dy(), s.params.Width, s.params.Height)
	}
	// Проверяем стандартный шаг (stride), иначе копируем в плотный буфер.
	if img.Stride != bounds.Dx()*4 || img.Rect.Min.X != 0 || img.Rect.Min.Y != 0 {
		dense := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(dense, dense.Bounds(), img, bounds.Min, draw.Src)
		img = dense
	}
	_, err := w.Write(img.Pix[:s.frameSize])
	return err
}

// Write queues audio for the pump. The buffer is copied.
func (s *ffmpegSession) Write(pcm []byte) (int, error) {
	if s.done {
		return 0, fmt.Errorf("%w: session closed", ErrEncodingFailure)
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	select {
	case s.audio <- buf:
		return len(pcm), nil
	case <-s.gctx.Done():
		return 0, fmt.Errorf("%w: audio pipe closed: %s", ErrEncodingFailure, s.stderr.String())
	}
}

func (s *ffmpegSession) closeInputs() {
	s.audioOnce.Do(func() { close(s.audio) })
	_ = s.stdin.Close()
}

func (s *ffmpegSession) Finish() (*Blob, error) {
	if s.done {
		return nil, fmt.Errorf("%w: session closed", ErrEncodingFailure)
	}
	if s.frames == 0 {
		s.Abort()
		return nil, fmt.Errorf("%w: no frames written", ErrEncodingFailure)
	}
	s.done = true
	s.closeInputs()

	groupErr := s.group.Wait()
	waitErr := s.cmd.Wait()
	s.cancel()
	if groupErr != nil || waitErr != nil {
		cause := errors.Join(groupErr, waitErr)
		return nil, fmt.Errorf("%w: %v: %s", ErrEncodingFailure, cause, s.stderr.String())
	}

	data := bytes.Join(s.chunks, nil)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: encoder produced no output", ErrEncodingFailure)
	}
	s.chunks = nil
	return &Blob{
		Format:   s.format,
		Data:     data,
		Frames:   s.frames,
		Duration: time.Duration(s.frames) * time.Second / time.Duration(s.params.FPS),
	}, nil
}

func (s *ffmpegSession) Abort() {
	if s.done {
		return
	}
	s.done = true
	s.cancel()
	s.closeInputs()
	_ = s.group.Wait()
	_ = s.cmd.Wait()
	s.chunks = nil
	s.logger.Debug("encoder session aborted", "frames", s.frames)
}
