package main

import (
	"context"

	"github.com/normanking/cortexsprite/internal/bus"
	"github.com/normanking/cortexsprite/internal/character"
	"github.com/spf13/cobra"
)

func newPreloadCmd(opts *options) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "preload",
		Short: "Fetch every asset a script needs and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreload(cmd.Context(), opts, text)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "script text: speech with [behavior] tags")
	cmd.MarkFlagRequired("text")
	return cmd
}

func runPreload(ctx context.Context, opts *options, text string) error {
	reqs := character.FromText(text)
	if len(reqs) == 0 {
		return errNothingToPlay
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	cfg.Character.Preload = true

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.bus.Subscribe(bus.EventTypePreloadComplete, func(bus.Event) {
		a.syslog.Info("preload", "Preload complete", map[string]interface{}{"lines": len(reqs)})
		cancel()
	})

	for _, r := range reqs {
		a.char.PreloadDynamicPlay(r)
	}
	if !a.char.Preloading() {
		return nil
	}
	return a.run(ctx)
}
