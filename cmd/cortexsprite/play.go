package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/normanking/cortexsprite/internal/bus"
	"github.com/normanking/cortexsprite/internal/character"
	"github.com/normanking/cortexsprite/internal/idle"
	"github.com/spf13/cobra"
)

var errNothingToPlay = errors.New("script has nothing to play")

func newPlayCmd(opts *options) *cobra.Command {
	var (
		text  string
		out   string
		every int
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a script and exit when it completes",
		Example: `  cortexsprite play --text "[wave] Hello, I'm Susan. [look-left] Over there."
  cortexsprite play --text "Hi." --out ./frames --every 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if every < 1 {
				return errors.New("--every must be at least 1")
			}
			return runPlay(cmd.Context(), opts, text, out, every)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "script text: speech with [behavior] tags")
	cmd.Flags().StringVar(&out, "out", "", "directory to write composited frames to as PNG")
	cmd.Flags().IntVar(&every, "every", 1, "write every n-th frame")
	cmd.MarkFlagRequired("text")
	return cmd
}

func runPlay(ctx context.Context, opts *options, text, out string, every int) error {
	reqs := character.FromText(text)
	if len(reqs) == 0 {
		return errNothingToPlay
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	cfg.Character.IdleType = idle.TypeNone
	cfg.Character.PlayShield = false
	cfg.Character.Visible = true

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if out != "" {
		fw, err := newFrameWriter(out, every)
		if err != nil {
			return err
		}
		a.sched.OnFrame(func() { fw.capture(a.char) })
		defer func() {
			a.syslog.Info("play", "Frames written", map[string]interface{}{
				"dir":     out,
				"written": fw.written,
			})
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.bus.Subscribe(bus.EventTypeCharacterLoaded, func(bus.Event) {
		for i := range reqs {
			if err := a.char.DynamicPlay(&reqs[i]); err != nil {
				a.syslog.Error("play", "Failed to queue line", err, nil)
				cancel()
				return
			}
		}
	})
	a.bus.Subscribe(bus.EventTypePlayComplete, func(bus.Event) {
		a.syslog.Info("play", "Script complete", map[string]interface{}{"lines": len(reqs)})
		cancel()
	})
	a.bus.Subscribe(bus.EventTypeClosedCaption, func(e bus.Event) {
		fmt.Fprintln(os.Stdout, e.Data["text"])
	})

	if err := a.char.Start(); err != nil {
		return err
	}
	return a.run(ctx)
}

// frameWriter dumps every n-th newly drawn frame to numbered PNG files
type frameWriter struct {
	dir     string
	every   int
	last    int
	drawn   int
	written int
	failed  bool
}

func newFrameWriter(dir string, every int) (*frameWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	return &frameWriter{dir: dir, every: every, last: -1}, nil
}

// capture runs after the character's frame callback on the scheduler
func (fw *frameWriter) capture(c *character.Character) {
	frame := c.LastFrame()
	if frame == fw.last {
		return
	}
	fw.last = frame
	if frame < 0 || fw.failed {
		return
	}
	fw.drawn++
	if (fw.drawn-1)%fw.every != 0 {
		return
	}
	if err := fw.write(c); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fw.failed = true
	}
}

func (fw *frameWriter) write(c *character.Character) error {
	path := filepath.Join(fw.dir, fmt.Sprintf("frame-%05d.png", fw.written))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, c.Snapshot()); err != nil {
		return fmt.Errorf("failed to encode frame %s: %w", path, err)
	}
	fw.written++
	return nil
}
