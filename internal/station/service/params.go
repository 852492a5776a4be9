package service

import (
	"context"
	"time"

	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

const (
	DefaultParamInterval = 2 * time.Second
	MinParamInterval     = time.Second
	MaxParamInterval     = 5 * time.Second
)

// ParamPoller refreshes the active vehicle's parameters on a fixed interval.
// A poll is skipped while the view is hidden, while no vehicle is active and
// while the previous request is still outstanding. Only the first failure
// of a run of failures raises an alert.
//
// All methods must be called on the loop.
type ParamPoller struct {
	svc      *Service
	interval time.Duration

	ctx      context.Context
	timer    *runloop.Timer
	inflight bool
	failing  bool
}

// NewParamPoller returns a stopped poller.
func (s *Service) NewParamPoller(interval time.Duration) *ParamPoller {
	return &ParamPoller{svc: s, interval: ClampParamInterval(interval)}
}

// ClampParamInterval bounds d to the supported refresh range.
func ClampParamInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultParamInterval
	case d < MinParamInterval:
		return MinParamInterval
	case d > MaxParamInterval:
		return MaxParamInterval
	}
	return d
}

// Start begins polling. Requests are bound to ctx.
func (p *ParamPoller) Start(ctx context.Context) {
	p.ctx = ctx
	p.restart()
}

func (p *ParamPoller) Stop() {
	p.timer.Stop()
	p.timer = nil
}

// Interval returns the current refresh interval.
func (p *ParamPoller) Interval() time.Duration { return p.interval }

// SetInterval changes the refresh interval, restarting the timer if running.
func (p *ParamPoller) SetInterval(d time.Duration) {
	d = ClampParamInterval(d)
	if d == p.interval {
		return
	}
	p.interval = d
	if p.timer != nil {
		p.restart()
	}
}

func (p *ParamPoller) restart() {
	p.timer.Stop()
	p.timer = p.svc.loop.Every(p.interval, p.poll)
}

func (p *ParamPoller) poll() {
	state := p.svc.state
	if p.inflight || !state.ViewVisible() {
		return
	}
	id := state.Vehicles.ActiveID()
	if id == "" {
		return
	}

	p.inflight = true
	ctx, cancel := context.WithTimeout(p.ctx, p.interval)
	go func() {
		defer cancel()
		params, err := p.svc.api.Params(ctx, id)
		p.svc.loop.Post(func() { p.done(id, params, err) })
	}()
}

func (p *ParamPoller) done(id string, params map[string]float64, err error) {
	p.inflight = false
	if err != nil {
		p.svc.logger.Debug("Parameter refresh failed", "vehicle", id, "error", err)
		if !p.failing {
			p.svc.state.Alerts.Warn("Parameter refresh for " + id + " failed: " + err.Error())
		}
		p.failing = true
		return
	}
	p.failing = false
	p.svc.state.Vehicles.Update(id, func(v *model.Vehicle) { v.Params = params })
}
