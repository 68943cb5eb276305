// CortexSprite - headless talking-sprite playback engine
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

type options struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "cortexsprite",
		Short: "CortexSprite - headless talking-sprite playback engine",
		Long: `CortexSprite loads a talking character from an animation service and
plays scripted lines: frames are composited off-screen, speech audio is
mixed to the speaker and lifecycle events go to the event relay.

Configuration:
  The engine reads $HOME/.cortexsprite/config.yaml unless --config is given.
  Every key can be overridden from the environment, e.g.
  CORTEXSPRITE_CHARACTER_ENDPOINT or CORTEXSPRITE_AUDIO_OUTPUT.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.cortexsprite/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newPlayCmd(opts))
	root.AddCommand(newPreloadCmd(opts))
	root.AddCommand(newServeCmd(opts))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
