package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	size := cfg.CanvasFor(AspectPortrait)
	if size.Width != 720 || size.Height != 1280 {
		t.Errorf("portrait canvas = %dx%d, want 720x1280", size.Width, size.Height)
	}
	if got := cfg.CanvasFor("4:3"); got != size {
		t.Errorf("unknown aspect should fall back to portrait, got %+v", got)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grimwire.yaml")
	content := `
data_dir: ` + filepath.Join(dir, "data") + `
render:
  fps: 24
  formats: [mp4-h264]
  clip_timeout: 90s
  scaler: CatmullRom
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GRIMWIRE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Render.FPS != 24 {
		t.Errorf("fps = %d, want 24", cfg.Render.FPS)
	}
	if cfg.Render.ClipTimeout != 90*time.Second {
		t.Errorf("clip_timeout = %v, want 90s", cfg.Render.ClipTimeout)
	}
	if cfg.Render.Scaler != "catmullrom" {
		t.Errorf("scaler = %q, want catmullrom", cfg.Render.Scaler)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug from env", cfg.Log.Level)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Render.SampleRate != 48000 {
		t.Errorf("sample rate = %d, want default 48000", cfg.Render.SampleRate)
	}
	if !strings.HasSuffix(cfg.DBPath(), "grimwire.db") {
		t.Errorf("unexpected db path %s", cfg.DBPath())
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero fps", func(c *Config) { c.Render.FPS = 0 }, "render.fps"},
		{"no formats", func(c *Config) { c.Render.Formats = nil }, "render.formats"},
		{"odd canvas", func(c *Config) { c.Render.Canvas[AspectPortrait] = Size{Width: 721, Height: 1280} }, "even"},
		{"bad scaler", func(c *Config) { c.Render.Scaler = "lanczos" }, "render.scaler"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"three channels", func(c *Config) { c.Render.Channels = 3 }, "render.channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestFormatsFromEnv(t *testing.T) {
	t.Setenv("GRIMWIRE_FORMATS", "mp4-h264-nvenc, mp4-h264")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Render.Formats) != 2 || cfg.Render.Formats[0] != "mp4-h264-nvenc" {
		t.Errorf("formats = %v", cfg.Render.Formats)
	}
}
