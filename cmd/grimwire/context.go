package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ivlev/grimwire/internal/config"
	"github.com/ivlev/grimwire/internal/engine"
	"github.com/ivlev/grimwire/internal/logging"
	"github.com/ivlev/grimwire/internal/project"
	"github.com/ivlev/grimwire/internal/recipe"
	"github.com/ivlev/grimwire/internal/source"
	"github.com/ivlev/grimwire/internal/storage"
	"github.com/ivlev/grimwire/internal/system"
	"github.com/ivlev/grimwire/internal/video"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Log.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

// app is the set of collaborators one command invocation works with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  *recipe.Catalog
	store    *project.Store
	media    *storage.Store
	projects *project.Manager
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (c *commandContext) openApp() (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	catalog, err := recipe.LoadCatalog(cfg.RecipesDir)
	if err != nil {
		return nil, err
	}
	store, err := project.Open(cfg.DBPath(), cfg.LocksDir(), logging.WithComponent(c.logger, "store"))
	if err != nil {
		return nil, err
	}
	media := storage.New(cfg.ClipsDir(), cfg.OutputDir)
	return &app{
		cfg:      cfg,
		logger:   c.logger,
		catalog:  catalog,
		store:    store,
		media:    media,
		projects: project.NewManager(store, media, catalog, logging.WithComponent(c.logger, "projects")),
	}, nil
}

// orchestrator probes ffmpeg once and wires the render pipeline. An encoder
// that cannot be set up does not stop the render from starting: the failure
// is reported and persisted by the render itself.
func (a *app) orchestrator(ctx context.Context) *engine.Orchestrator {
	rc := a.cfg.Render
	encoder, err := a.encoder(ctx)
	if err != nil {
		a.logger.Warn("encoder unavailable", "error", err)
		encoder = video.Unavailable(err)
	}
	decoder := source.NewFFmpegDecoder(a.cfg.FFmpeg.Binary, a.cfg.FFmpeg.ProbeBinary, source.Options{
		FPS:        rc.FPS,
		SampleRate: rc.SampleRate,
		Channels:   rc.Channels,
	}, logging.WithComponent(a.logger, "decoder"))

	return engine.New(a.store, a.catalog, a.media, decoder, encoder, engine.Options{
		Render:     rc,
		LocksDir:   a.cfg.LocksDir(),
		ScratchDir: a.cfg.ScratchDir(),
	}, a.logger)
}

func (a *app) encoder(ctx context.Context) (video.Encoder, error) {
	available, err := system.ProbeEncoders(ctx, a.cfg.FFmpeg.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg unavailable: %v", video.ErrEncodingFailure, err)
	}
	enc, err := video.NewFFmpegEncoder(a.cfg.FFmpeg.Binary, available, a.cfg.Render.Formats, a.cfg.Render.Quality,
		logging.WithComponent(a.logger, "encoder"))
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
