package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/normanking/cortexsprite/internal/audio"
	"github.com/normanking/cortexsprite/internal/bus"
	"github.com/normanking/cortexsprite/internal/character"
	"github.com/normanking/cortexsprite/internal/config"
	"github.com/normanking/cortexsprite/internal/loader"
	"github.com/normanking/cortexsprite/internal/logging"
	"github.com/normanking/cortexsprite/internal/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// loadConfig reads the file named by --config, or the default one
func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.cfgFile != "" {
		cfg, err = config.LoadFile(opts.cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.verbose {
		cfg.Log.Level = logging.LevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configPath is the file the config watcher follows
func configPath(opts *options) (string, error) {
	if opts.cfgFile != "" {
		return opts.cfgFile, nil
	}
	dir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// app is one character with everything it runs on
type app struct {
	cfg    *config.Config
	syslog *logging.Logger
	sched  *scheduler.Scheduler
	bus    *bus.EventBus
	char   *character.Character
}

func newApp(cfg *config.Config) (*app, error) {
	syslog, err := logging.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zlog := syslog.Zerolog()

	syslog.Info("main", "CortexSprite starting", map[string]interface{}{
		"character": cfg.Character.ID,
		"endpoint":  cfg.Character.Endpoint,
		"size":      fmt.Sprintf("%dx%d", cfg.Character.Width, cfg.Character.Height),
	})

	fetcher, err := loader.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.CacheEntries, zlog)
	if err != nil {
		syslog.Close()
		return nil, err
	}

	sink, err := audio.NewSink(cfg.Audio.Output, cfg.Audio.SampleRate)
	if err != nil {
		syslog.Warn("audio", "Audio output unavailable, continuing silently", map[string]interface{}{
			"output": cfg.Audio.Output,
			"error":  err.Error(),
		})
		sink = audio.NewNullSink(cfg.Audio.SampleRate)
	}

	sched := scheduler.New(nil, zlog)
	eventBus := bus.NewEventBus()
	char, err := character.New(cfg.Character, character.Deps{
		Scheduler: sched,
		Fetcher:   fetcher,
		Sink:      sink,
		Bus:       eventBus,
		Volume:    cfg.Audio.Volume,
		Logger:    zlog,
	})
	if err != nil {
		sink.Close()
		syslog.Close()
		return nil, err
	}

	eventBus.Subscribe(bus.EventTypeServiceError, func(e bus.Event) {
		syslog.Warn("character", "Service error", e.Data)
	})

	return &app{
		cfg:    cfg,
		syslog: syslog,
		sched:  sched,
		bus:    eventBus,
		char:   char,
	}, nil
}

// run drives the scheduler until ctx is done. Cancellation is not an error.
func (a *app) run(ctx context.Context) error {
	refresh := time.Second / 60
	if hz := a.cfg.Character.RefreshHz; hz > 0 {
		refresh = time.Second / time.Duration(hz)
	}
	err := a.sched.Run(ctx, refresh)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyConfig takes the settings that may change while running from a
// reloaded configuration
func (a *app) applyConfig(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		a.syslog.Warn("config", "Ignoring invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := a.char.SetIdleType(cfg.Character.IdleType); err != nil {
		a.syslog.Warn("config", "Failed to apply idle type", map[string]interface{}{
			"error": err.Error(),
		})
	}
	a.char.SetVolume(cfg.Audio.Volume)
	a.syslog.Info("config", "Configuration applied", map[string]interface{}{
		"idleType": cfg.Character.IdleType,
		"volume":   cfg.Audio.Volume,
	})
}

func (a *app) Close() {
	if err := a.char.Close(); err != nil {
		a.syslog.Error("main", "Failed to close character", err, nil)
	}
	a.syslog.Info("main", "CortexSprite shutdown complete", nil)
	a.syslog.Close()
}
