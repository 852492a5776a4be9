// Package station assembles the ground-control core: the run loop, the
// backend channel, the state service, manual control dispatch and the
// local API.
package station

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/backend"
	"github.com/autopeer-io/groundlink/internal/station/core/dispatch"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/internal/station/core/session"
	"github.com/autopeer-io/groundlink/internal/station/prefs"
	"github.com/autopeer-io/groundlink/internal/station/server"
	"github.com/autopeer-io/groundlink/internal/station/server/http"
	"github.com/autopeer-io/groundlink/internal/station/service"
	"github.com/autopeer-io/groundlink/internal/station/transport"
	"github.com/autopeer-io/groundlink/pkg/log"
)

// Station owns every component. Apart from Run, nothing here may be touched
// outside the loop.
type Station struct {
	loop    *runloop.Loop
	state   *session.State
	link    *transport.Transport
	control *dispatch.Loop
	service *service.Service
	params  *service.ParamPoller
	gamepad *service.GamepadPoller
	store   *prefs.FileStore
	watch   bool
	servers *server.Manager
	logger  log.Logger
}

// NewStation wires the components together. Nothing is started.
func (cfg *Config) NewStation() (*Station, error) {
	dialer, err := cfg.newDialer()
	if err != nil {
		return nil, err
	}
	inputCfg, err := cfg.inputConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid key bindings: %w", err)
	}
	api, err := backend.New(backend.Config{
		BaseURL: cfg.BackendOptions.BaseURL,
		Timeout: cfg.BackendOptions.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	loop := runloop.New(nil, log.Logr())
	store := prefs.NewFileStore(cfg.PreferenceOptions.File)

	sessionCfg := session.DefaultConfig()
	sessionCfg.Input = inputCfg
	state := session.New(loop, store, sessionCfg)

	link := transport.New(loop, dialer, transport.Options{
		ReconnectDelay: cfg.TransportOptions.ReconnectDelay,
		SendQueue:      cfg.TransportOptions.SendQueue,
	})
	control := dispatch.New(loop, link, state.Input, state.Vehicles, dispatch.Options{
		Period:      cfg.ControlOptions.Period,
		ManualModes: cfg.ControlOptions.ManualModes,
	})
	svc := service.New(loop, state, api)
	latch := &service.GamepadLatch{}

	s := &Station{
		loop:    loop,
		state:   state,
		link:    link,
		control: control,
		service: svc,
		params:  svc.NewParamPoller(state.Preferences().ParamPollInterval),
		gamepad: service.NewGamepadPoller(loop, state.Input, latch, cfg.ControlOptions.GamepadPeriod),
		store:   store,
		watch:   cfg.PreferenceOptions.Watch,
		logger:  log.WithName("station"),
	}
	s.servers = server.NewManager(cfg.HttpOptions, http.Deps{
		Loop:     loop,
		State:    state,
		Link:     link,
		Control:  control,
		Commands: svc,
		Gamepad:  latch,
	})
	s.wire()
	return s, nil
}

func (s *Station) wire() {
	s.link.OnFrame(s.state.HandleFrame)
	s.link.OnStateChange(func(up bool) {
		if !up {
			s.state.Alerts.Warn("Connection to the vehicle backend lost, reconnecting")
		}
		s.control.SetConnected(up)
	})
	s.state.OnInputChange(func() {
		s.control.InputChanged()
		s.gamepad.Sync()
	})
	s.control.OnModeWarning(func(id, mode string) {
		s.state.Alerts.Warn(fmt.Sprintf("%s is in %s, which may ignore manual control", id, mode))
	})
}

// applyPreferences puts preferences edited outside the station into effect.
func (s *Station) applyPreferences(p model.Preferences) {
	if p == s.state.Preferences() {
		return
	}
	s.logger.Info("Applying preferences from file")
	s.state.ApplyPreferences(p)
	s.params.SetInterval(p.ParamPollInterval)
}

// Run starts the station and blocks until ctx is cancelled or a server
// fails. Preferences are saved on the way out.
func (s *Station) Run(ctx context.Context) error {
	if err := s.state.Init(); err != nil {
		return err
	}
	s.params.SetInterval(s.state.Preferences().ParamPollInterval)

	if s.watch {
		s.store.Watch(func(p model.Preferences) {
			s.loop.Post(func() { s.applyPreferences(p) })
		})
	}

	s.loop.Post(func() {
		s.link.Connect()
		s.params.Start(ctx)
		s.control.InputChanged()
		s.gamepad.Sync()
	})

	s.logger.Info("Station starting", "servers", s.servers.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop.Run(gctx) })
	g.Go(func() error { return s.servers.Start(gctx) })
	err := g.Wait()

	// The loop has stopped; nothing else runs on it from here.
	s.control.Stop()
	s.gamepad.Stop()
	s.params.Stop()
	s.link.Close()
	if derr := s.state.Dispose(); derr != nil {
		s.logger.Error(derr, "Failed to save preferences on shutdown")
	}

	s.logger.Info("Station stopped")
	return err
}
