package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Aspect ratios a slot may require.
const (
	AspectPortrait  = "9:16"
	AspectLandscape = "16:9"
)

// Size is a canvas resolution in pixels.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Log contains log output settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json or auto
}

// FFmpeg names the binaries used for decoding, probing and encoding.
type FFmpeg struct {
	Binary      string `yaml:"binary"`
	ProbeBinary string `yaml:"probe_binary"`
}

// Render contains the assembly pipeline knobs.
type Render struct {
	FPS        int `yaml:"fps"`
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	// Formats is the ordered output format preference, best first.
	Formats []string `yaml:"formats"`
	// Quality 0 picks a codec-specific default.
	Quality               int             `yaml:"quality"`
	Scaler                string          `yaml:"scaler"`
	Canvas                map[string]Size `yaml:"canvas"`
	CaptionFontSize       float64         `yaml:"caption_font_size"`
	PassthroughSingleClip bool            `yaml:"passthrough_single_clip"`
	// ClipTimeout bounds one clip decode; 0 disables it.
	ClipTimeout time.Duration `yaml:"clip_timeout"`
	ShowStats   bool          `yaml:"show_stats"`
	StatsLog    string        `yaml:"stats_log"`
}

// Config is everything the CLI and the render engine need.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	InputDir   string `yaml:"input_dir"`
	OutputDir  string `yaml:"output_dir"`
	RecipesDir string `yaml:"recipes_dir"`
	Log        Log    `yaml:"log"`
	FFmpeg     FFmpeg `yaml:"ffmpeg"`
	Render     Render `yaml:"render"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:    "data",
		InputDir:   filepath.Join("input", "clips"),
		OutputDir:  "output",
		RecipesDir: filepath.Join("data", "recipes"),
		Log: Log{
			Level:  "info",
			Format: "auto",
		},
		FFmpeg: FFmpeg{
			Binary:      "ffmpeg",
			ProbeBinary: "ffprobe",
		},
		Render: Render{
			FPS:        30,
			SampleRate: 48000,
			Channels:   2,
			Formats:    []string{"webm-vp9", "webm-vp8", "mp4-h264"},
			Scaler:     "bilinear",
			Canvas: map[string]Size{
				AspectPortrait:  {Width: 720, Height: 1280},
				AspectLandscape: {Width: 1280, Height: 720},
			},
			CaptionFontSize:       40,
			PassthroughSingleClip: true,
			ClipTimeout:           10 * time.Minute,
			StatsLog:              "benchmark.log",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file in the working directory and GRIMWIRE_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GRIMWIRE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GRIMWIRE_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("GRIMWIRE_RECIPES_DIR"); v != "" {
		c.RecipesDir = v
	}
	if v := os.Getenv("GRIMWIRE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GRIMWIRE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("GRIMWIRE_FFMPEG"); v != "" {
		c.FFmpeg.Binary = v
	}
	if v := os.Getenv("GRIMWIRE_FFPROBE"); v != "" {
		c.FFmpeg.ProbeBinary = v
	}
	if v := os.Getenv("GRIMWIRE_FORMATS"); v != "" {
		c.Render.Formats = splitList(v)
	}
	if v := os.Getenv("GRIMWIRE_FPS"); v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRIMWIRE_FPS: %w", err)
		}
		c.Render.FPS = fps
	}
	return nil
}

func (c *Config) normalize() {
	c.DataDir = expandPath(c.DataDir)
	c.InputDir = expandPath(c.InputDir)
	c.OutputDir = expandPath(c.OutputDir)
	c.RecipesDir = expandPath(c.RecipesDir)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Render.Scaler = strings.ToLower(strings.TrimSpace(c.Render.Scaler))
	for i, f := range c.Render.Formats {
		c.Render.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
}

// DBPath is the SQLite file holding project metadata.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "grimwire.db")
}

// ClipsDir holds imported clip media.
func (c *Config) ClipsDir() string {
	return filepath.Join(c.DataDir, "clips")
}

// LocksDir holds per-project render locks.
func (c *Config) LocksDir() string {
	return filepath.Join(c.DataDir, "locks")
}

// ScratchDir holds per-render temporary files.
func (c *Config) ScratchDir() string {
	return filepath.Join(c.DataDir, "tmp")
}

// EnsureDirectories creates every directory the application writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.ClipsDir(), c.LocksDir(), c.ScratchDir(), c.OutputDir, c.InputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// CanvasFor returns the canvas size for an aspect ratio, falling back to
// portrait.
func (c *Config) CanvasFor(aspect string) Size {
	if size, ok := c.Render.Canvas[aspect]; ok {
		return size
	}
	return c.Render.Canvas[AspectPortrait]
}

func expandPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
