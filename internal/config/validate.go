package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must be set")
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	return c.validateRender()
}

func (c *Config) validateLog() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unsupported value %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	return nil
}

func (c *Config) validateRender() error {
	r := c.Render
	if r.FPS <= 0 || r.FPS > 120 {
		return fmt.Errorf("render.fps must be between 1 and 120, got %d", r.FPS)
	}
	if r.SampleRate < 8000 || r.SampleRate > 192000 {
		return fmt.Errorf("render.sample_rate must be between 8000 and 192000, got %d", r.SampleRate)
	}
	if r.Channels != 1 && r.Channels != 2 {
		return fmt.Errorf("render.channels must be 1 or 2, got %d", r.Channels)
	}
	if len(r.Formats) == 0 {
		return errors.New("render.formats must list at least one output format")
	}
	switch r.Scaler {
	case "nearest", "bilinear", "catmullrom":
	default:
		return fmt.Errorf("render.scaler: unsupported value %q", r.Scaler)
	}
	if _, ok := r.Canvas[AspectPortrait]; !ok {
		return fmt.Errorf("render.canvas must define %s", AspectPortrait)
	}
	for aspect, size := range r.Canvas {
		if size.Width <= 0 || size.Height <= 0 {
			return fmt.Errorf("render.canvas[%s]: invalid size %dx%d", aspect, size.Width, size.Height)
		}
		// yuv420p needs even dimensions.
		if size.Width%2 != 0 || size.Height%2 != 0 {
			return fmt.Errorf("render.canvas[%s]: dimensions must be even, got %dx%d", aspect, size.Width, size.Height)
		}
	}
	if r.CaptionFontSize <= 0 {
		return errors.New("render.caption_font_size must be positive")
	}
	if r.ClipTimeout < 0 {
		return errors.New("render.clip_timeout must not be negative")
	}
	return nil
}
