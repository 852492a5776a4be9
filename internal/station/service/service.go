// Package service issues commands to the vehicle backend on behalf of the
// operator. Requests run on the caller's goroutine; their outcome is applied
// to the session on the run loop, and failures surface as alerts.
package service

import (
	"context"
	"fmt"

	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/backend"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/internal/station/core/session"
	"github.com/autopeer-io/groundlink/pkg/log"
)

// Backend is the REST surface the service depends on.
type Backend interface {
	Connect(ctx context.Context, id string, req backend.ConnectRequest) error
	Disconnect(ctx context.Context, id string) error
	Arm(ctx context.Context, id string, arm bool) error
	SetMode(ctx context.Context, id, mode string) error
	Params(ctx context.Context, id string) (map[string]float64, error)
	SetParam(ctx context.Context, id, name string, value float64) (backend.Param, error)
	Mission(ctx context.Context, id string) ([]model.MissionItem, error)
	UploadMission(ctx context.Context, id string, items []model.MissionItem) error
	Fence(ctx context.Context, id string) ([]model.MissionItem, error)
	UploadFence(ctx context.Context, id string, items []model.MissionItem) error
	Calibrate(ctx context.Context, id, sensor string) error
	PointGimbal(ctx context.Context, id string, pitch, yaw float64) error
	SetServo(ctx context.Context, id string, channel, pwm int) error
	TestMotor(ctx context.Context, id string, t backend.MotorTest) error
	Weather(ctx context.Context, lat, lon float64) (backend.Weather, error)
	Terrain(ctx context.Context, lat, lon float64) (backend.Terrain, error)
}

var _ Backend = (*backend.Client)(nil)

// Service is safe for concurrent use. It only touches the session through
// closures posted to the loop.
type Service struct {
	loop   runloop.Scheduler
	state  *session.State
	api    Backend
	logger log.Logger
}

func New(loop runloop.Scheduler, state *session.State, api Backend) *Service {
	return &Service{
		loop:   loop,
		state:  state,
		api:    api,
		logger: log.WithName("service"),
	}
}

// fail reports a failed request and returns err unchanged.
func (s *Service) fail(sev model.Severity, what string, err error) error {
	s.logger.Warn("Backend request failed", "request", what, "error", err)
	msg := fmt.Sprintf("%s failed: %v", what, err)
	s.loop.Post(func() { s.state.Alerts.Push(msg, sev) })
	return err
}

// apply runs fn against vehicle id on the loop, unless the vehicle has been
// removed in the meantime.
func (s *Service) apply(id string, fn func(v *model.Vehicle)) {
	s.loop.Post(func() {
		if !s.state.Vehicles.Update(id, fn) {
			s.logger.Debug("Dropping result for removed vehicle", "vehicle", id)
		}
	})
}

func (s *Service) ConnectVehicle(ctx context.Context, id string, req backend.ConnectRequest) error {
	if err := s.api.Connect(ctx, id, req); err != nil {
		return s.fail(model.SeverityError, "Connect "+id, err)
	}
	s.logger.Info("Vehicle link requested", "vehicle", id, "endpoint", req.Endpoint)
	s.loop.Post(func() { s.state.Readmit(id) })
	return nil
}

func (s *Service) DisconnectVehicle(ctx context.Context, id string) error {
	if err := s.api.Disconnect(ctx, id); err != nil {
		return s.fail(model.SeverityError, "Disconnect "+id, err)
	}
	s.loop.Post(func() { s.state.RemoveVehicle(id) })
	return nil
}

func (s *Service) Arm(ctx context.Context, id string, arm bool) error {
	what := "Arm " + id
	if !arm {
		what = "Disarm " + id
	}
	if err := s.api.Arm(ctx, id, arm); err != nil {
		return s.fail(model.SeverityError, what, err)
	}
	return nil
}

func (s *Service) SetMode(ctx context.Context, id, mode string) error {
	if err := s.api.SetMode(ctx, id, mode); err != nil {
		return s.fail(model.SeverityError, fmt.Sprintf("Mode change of %s to %s", id, mode), err)
	}
	return nil
}

// RefreshParams downloads the full parameter table into the registry.
func (s *Service) RefreshParams(ctx context.Context, id string) error {
	params, err := s.api.Params(ctx, id)
	if err != nil {
		return s.fail(model.SeverityWarning, "Parameter download for "+id, err)
	}
	s.apply(id, func(v *model.Vehicle) { v.Params = params })
	return nil
}

// SetParam writes one parameter and caches the acknowledged value.
func (s *Service) SetParam(ctx context.Context, id, name string, value float64) (backend.Param, error) {
	p, err := s.api.SetParam(ctx, id, name, value)
	if err != nil {
		return p, s.fail(model.SeverityError, fmt.Sprintf("Setting %s on %s", name, id), err)
	}
	if p.Name == "" {
		p.Name = name
	}
	s.apply(id, func(v *model.Vehicle) {
		if v.Params == nil {
			v.Params = map[string]float64{}
		}
		v.Params[p.Name] = p.Value
	})
	return p, nil
}

func (s *Service) DownloadMission(ctx context.Context, id string) ([]model.MissionItem, error) {
	items, err := s.api.Mission(ctx, id)
	if err != nil {
		return nil, s.fail(model.SeverityWarning, "Mission download for "+id, err)
	}
	s.apply(id, func(v *model.Vehicle) { v.Mission = items })
	return items, nil
}

func (s *Service) UploadMission(ctx context.Context, id string, items []model.MissionItem) error {
	if err := s.api.UploadMission(ctx, id, items); err != nil {
		return s.fail(model.SeverityError, "Mission upload to "+id, err)
	}
	s.apply(id, func(v *model.Vehicle) { v.Mission = items })
	return nil
}

func (s *Service) DownloadFence(ctx context.Context, id string) ([]model.MissionItem, error) {
	items, err := s.api.Fence(ctx, id)
	if err != nil {
		return nil, s.fail(model.SeverityWarning, "Fence download for "+id, err)
	}
	s.apply(id, func(v *model.Vehicle) { v.Fence = items })
	return items, nil
}

func (s *Service) UploadFence(ctx context.Context, id string, items []model.MissionItem) error {
	if err := s.api.UploadFence(ctx, id, items); err != nil {
		return s.fail(model.SeverityError, "Fence upload to "+id, err)
	}
	s.apply(id, func(v *model.Vehicle) { v.Fence = items })
	return nil
}

func (s *Service) Calibrate(ctx context.Context, id, sensor string) error {
	if err := s.api.Calibrate(ctx, id, sensor); err != nil {
		return s.fail(model.SeverityError, fmt.Sprintf("%s calibration on %s", sensor, id), err)
	}
	s.loop.Post(func() { s.state.Alerts.Info(fmt.Sprintf("%s: %s calibration started", id, sensor)) })
	return nil
}

func (s *Service) PointGimbal(ctx context.Context, id string, pitch, yaw float64) error {
	if err := s.api.PointGimbal(ctx, id, pitch, yaw); err != nil {
		return s.fail(model.SeverityError, "Gimbal control on "+id, err)
	}
	return nil
}

func (s *Service) SetServo(ctx context.Context, id string, channel, pwm int) error {
	if err := s.api.SetServo(ctx, id, channel, pwm); err != nil {
		return s.fail(model.SeverityError, fmt.Sprintf("Servo %d on %s", channel, id), err)
	}
	return nil
}

func (s *Service) TestMotor(ctx context.Context, id string, t backend.MotorTest) error {
	if err := s.api.TestMotor(ctx, id, t); err != nil {
		return s.fail(model.SeverityError, fmt.Sprintf("Motor %d test on %s", t.Motor, id), err)
	}
	return nil
}

// Weather and Terrain are lookups; their failures are warnings.

func (s *Service) Weather(ctx context.Context, lat, lon float64) (backend.Weather, error) {
	w, err := s.api.Weather(ctx, lat, lon)
	if err != nil {
		return w, s.fail(model.SeverityWarning, "Weather lookup", err)
	}
	return w, nil
}

func (s *Service) Terrain(ctx context.Context, lat, lon float64) (backend.Terrain, error) {
	t, err := s.api.Terrain(ctx, lat, lon)
	if err != nil {
		return t, s.fail(model.SeverityWarning, "Terrain lookup", err)
	}
	return t, nil
}
