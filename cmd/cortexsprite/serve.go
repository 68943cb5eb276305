package main

import (
	"context"
	"time"

	"github.com/normanking/cortexsprite/internal/character"
	"github.com/normanking/cortexsprite/internal/config"
	"github.com/normanking/cortexsprite/internal/relay"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// Control messages accepted from relay clients
const (
	controlPlay    = "play"    // data: a request
	controlScript  = "script"  // data: {"text": "..."}
	controlPreload = "preload" // data: a request
	controlStop    = "stop"
	controlVolume  = "volume"    // data: {"value": 0.5}
	controlIdle    = "idle_type" // data: {"value": "normal"}
	controlShow    = "show"
	controlHide    = "hide"
	controlDismiss = "dismiss_shield"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the character with idle behavior and the event relay",
		Long: `Run the character until interrupted. Overlay clients connect to the
relay WebSocket to receive lifecycle events and to send control messages
such as play and stop. Edits to the config file apply idle type and volume
without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	zlog := a.syslog.Zerolog()

	r := relay.New(a.bus, zlog)
	r.ForwardLogs(a.syslog)
	r.OnMessage(a.handleControl)
	if err := r.Start(cfg.Relay.Addr); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Stop(shutdownCtx); err != nil {
			a.syslog.Error("relay", "Failed to stop relay", err, nil)
		}
	}()

	if path, err := configPath(opts); err == nil {
		w, err := config.NewWatcher(path, zlog, a.applyConfig)
		if err != nil {
			a.syslog.Warn("config", "Config hot reload disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer w.Close()
		}
	}

	if err := a.char.Start(); err != nil {
		return err
	}
	a.syslog.Info("main", "Serving", map[string]interface{}{"relay": cfg.Relay.Addr})
	return a.run(ctx)
}

// handleControl applies one relay client message. It runs on the client's
// read goroutine.
func (a *app) handleControl(m relay.Message) {
	var err error
	switch m.Type {
	case controlPlay:
		var req character.Request
		if err = json.Unmarshal(m.Data, &req); err == nil {
			err = a.char.DynamicPlay(&req)
		}
	case controlScript:
		for _, req := range character.FromText(gjson.GetBytes(m.Data, "text").String()) {
			if err = a.char.DynamicPlay(&req); err != nil {
				break
			}
		}
	case controlPreload:
		var req character.Request
		if err = json.Unmarshal(m.Data, &req); err == nil {
			a.char.PreloadDynamicPlay(req)
		}
	case controlStop:
		a.char.Stop()
	case controlVolume:
		v := gjson.GetBytes(m.Data, "value")
		if v.Type == gjson.Number {
			a.char.SetVolume(v.Float())
		}
	case controlIdle:
		err = a.char.SetIdleType(gjson.GetBytes(m.Data, "value").String())
	case controlShow:
		a.char.Show()
	case controlHide:
		a.char.Hide()
	case controlDismiss:
		a.char.DismissPlayShield()
	default:
		a.syslog.Warn("relay", "Unknown control message", map[string]interface{}{"type": m.Type})
		return
	}
	if err != nil {
		a.syslog.Warn("relay", "Control message failed", map[string]interface{}{
			"type":  m.Type,
			"error": err.Error(),
		})
	}
}
