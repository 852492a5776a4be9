// Package http serves the station's local status and control API.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/groundlink/internal/pkg/metrics"
	middleware "github.com/autopeer-io/groundlink/internal/pkg/middleware/http"
	"github.com/autopeer-io/groundlink/internal/station/backend"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/internal/station/core/session"
	"github.com/autopeer-io/groundlink/internal/station/service"
	"github.com/autopeer-io/groundlink/internal/station/transport"
	"github.com/autopeer-io/groundlink/pkg/log"
	"github.com/autopeer-io/groundlink/pkg/options"
)

// Executor runs closures on the station's run loop.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Commands are the backend operations exposed to the operator.
type Commands interface {
	ConnectVehicle(ctx context.Context, id string, req backend.ConnectRequest) error
	DisconnectVehicle(ctx context.Context, id string) error
	Arm(ctx context.Context, id string, arm bool) error
	SetMode(ctx context.Context, id, mode string) error
	RefreshParams(ctx context.Context, id string) error
	SetParam(ctx context.Context, id, name string, value float64) (backend.Param, error)
	DownloadMission(ctx context.Context, id string) ([]model.MissionItem, error)
	UploadMission(ctx context.Context, id string, items []model.MissionItem) error
	DownloadFence(ctx context.Context, id string) ([]model.MissionItem, error)
	UploadFence(ctx context.Context, id string, items []model.MissionItem) error
	Calibrate(ctx context.Context, id, sensor string) error
	PointGimbal(ctx context.Context, id string, pitch, yaw float64) error
	SetServo(ctx context.Context, id string, channel, pwm int) error
	TestMotor(ctx context.Context, id string, t backend.MotorTest) error
	Weather(ctx context.Context, lat, lon float64) (backend.Weather, error)
	Terrain(ctx context.Context, lat, lon float64) (backend.Terrain, error)
}

var _ Commands = (*service.Service)(nil)

// Link reports the backend channel state. Read on the loop.
type Link interface {
	State() transport.State
}

// Control reports the manual control stream. Read on the loop.
type Control interface {
	Status() model.ManualControlState
}

// Deps are the components the API reads and drives.
type Deps struct {
	Loop     Executor
	State    *session.State
	Link     Link
	Control  Control
	Commands Commands
	Gamepad  *service.GamepadLatch
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	logger  log.Logger
	deps    Deps
}

func NewServer(opts *options.HttpOptions, deps Deps) *Server {
	s := &Server{
		options: opts,
		logger:  log.WithName("http"),
		deps:    deps,
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging(s.logger), middleware.Timeout(s.options.Timeout))

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/vehicles", s.listVehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}", s.getVehicle).Methods(http.MethodGet)
	v := api.PathPrefix("/vehicles/{id}").Subrouter()
	v.HandleFunc("/select", s.selectVehicle).Methods(http.MethodPost)
	v.HandleFunc("/identity", s.resolveIdentity).Methods(http.MethodPost)
	v.HandleFunc("/connect", s.connectVehicle).Methods(http.MethodPost)
	v.HandleFunc("/disconnect", s.disconnectVehicle).Methods(http.MethodPost)
	v.HandleFunc("/arm", s.arm(true)).Methods(http.MethodPost)
	v.HandleFunc("/disarm", s.arm(false)).Methods(http.MethodPost)
	v.HandleFunc("/mode", s.setMode).Methods(http.MethodPost)
	v.HandleFunc("/params/refresh", s.refreshParams).Methods(http.MethodPost)
	v.HandleFunc("/params/{name}", s.setParam).Methods(http.MethodPut)
	v.HandleFunc("/mission", s.downloadMission).Methods(http.MethodGet)
	v.HandleFunc("/mission", s.uploadMission).Methods(http.MethodPut)
	v.HandleFunc("/fence", s.downloadFence).Methods(http.MethodGet)
	v.HandleFunc("/fence", s.uploadFence).Methods(http.MethodPut)
	v.HandleFunc("/calibration", s.calibrate).Methods(http.MethodPost)
	v.HandleFunc("/gimbal", s.pointGimbal).Methods(http.MethodPost)
	v.HandleFunc("/servo", s.setServo).Methods(http.MethodPost)
	v.HandleFunc("/motor-test", s.testMotor).Methods(http.MethodPost)

	api.HandleFunc("/alerts", s.listAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}", s.dismissAlert).Methods(http.MethodDelete)

	api.HandleFunc("/control", s.controlStatus).Methods(http.MethodGet)
	api.HandleFunc("/input/keyboard", s.setKeyboard).Methods(http.MethodPut)
	api.HandleFunc("/input/gamepad", s.setGamepad).Methods(http.MethodPut)
	api.HandleFunc("/input/keys", s.setKey).Methods(http.MethodPut)
	api.HandleFunc("/input/axes", s.setAxes).Methods(http.MethodPut)
	api.HandleFunc("/view", s.setView).Methods(http.MethodPut)

	api.HandleFunc("/weather", s.weather).Methods(http.MethodGet)
	api.HandleFunc("/terrain", s.terrain).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
