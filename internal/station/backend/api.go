package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

// ConnectRequest asks the backend to open a link to a vehicle.
type ConnectRequest struct {
	// Endpoint is the vehicle link, e.g. "udp:127.0.0.1:14550".
	Endpoint string `json:"endpoint"`
	Name     string `json:"name,omitempty"`
}

// Param is one named vehicle parameter.
type Param struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// MotorTest spins one motor at a throttle percentage for a short time.
type MotorTest struct {
	Motor    int     `json:"motor"`
	Throttle float64 `json:"throttle"`
	Seconds  float64 `json:"seconds"`
}

// Weather at a location.
type Weather struct {
	TemperatureC float64 `json:"temperature_c"`
	WindSpeedMS  float64 `json:"wind_speed_ms"`
	WindDirDeg   float64 `json:"wind_dir_deg"`
	GustMS       float64 `json:"gust_ms"`
	Summary      string  `json:"summary"`
}

// Terrain elevation at a location.
type Terrain struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Elevation float64 `json:"elevation"`
}

func (c *Client) Connect(ctx context.Context, id string, req ConnectRequest) error {
	return c.do(ctx, "connect", http.MethodPost, vehiclePath(id, "connect"), nil, req, nil)
}

func (c *Client) Disconnect(ctx context.Context, id string) error {
	return c.do(ctx, "disconnect", http.MethodPost, vehiclePath(id, "disconnect"), nil, nil, nil)
}

// Arm arms or disarms the vehicle.
func (c *Client) Arm(ctx context.Context, id string, arm bool) error {
	op, action := "arm", "arm"
	if !arm {
		op, action = "disarm", "disarm"
	}
	return c.do(ctx, op, http.MethodPost, vehiclePath(id, action), nil, nil, nil)
}

func (c *Client) SetMode(ctx context.Context, id, mode string) error {
	in := struct {
		Mode string `json:"mode"`
	}{mode}
	return c.do(ctx, "set_mode", http.MethodPost, vehiclePath(id, "mode"), nil, in, nil)
}

// Params downloads the full parameter table.
func (c *Client) Params(ctx context.Context, id string) (map[string]float64, error) {
	var out map[string]float64
	if err := c.do(ctx, "get_params", http.MethodGet, vehiclePath(id, "params"), nil, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]float64{}
	}
	return out, nil
}

// SetParam writes one parameter and returns the value the vehicle acknowledged.
func (c *Client) SetParam(ctx context.Context, id, name string, value float64) (Param, error) {
	var out Param
	in := struct {
		Value float64 `json:"value"`
	}{value}
	err := c.do(ctx, "set_param", http.MethodPut, vehiclePath(id, "params", url.PathEscape(name)), nil, in, &out)
	return out, err
}

func (c *Client) Mission(ctx context.Context, id string) ([]model.MissionItem, error) {
	var out []model.MissionItem
	err := c.do(ctx, "get_mission", http.MethodGet, vehiclePath(id, "mission"), nil, nil, &out)
	return out, err
}

func (c *Client) UploadMission(ctx context.Context, id string, items []model.MissionItem) error {
	return c.do(ctx, "upload_mission", http.MethodPut, vehiclePath(id, "mission"), nil, items, nil)
}

func (c *Client) Fence(ctx context.Context, id string) ([]model.MissionItem, error) {
	var out []model.MissionItem
	err := c.do(ctx, "get_fence", http.MethodGet, vehiclePath(id, "fence"), nil, nil, &out)
	return out, err
}

func (c *Client) UploadFence(ctx context.Context, id string, items []model.MissionItem) error {
	return c.do(ctx, "upload_fence", http.MethodPut, vehiclePath(id, "fence"), nil, items, nil)
}

// Calibrate starts a sensor calibration, e.g. "accel", "compass", "level".
func (c *Client) Calibrate(ctx context.Context, id, sensor string) error {
	in := struct {
		Sensor string `json:"sensor"`
	}{sensor}
	return c.do(ctx, "calibrate", http.MethodPost, vehiclePath(id, "calibration"), nil, in, nil)
}

// PointGimbal sets gimbal pitch and yaw in degrees.
func (c *Client) PointGimbal(ctx context.Context, id string, pitch, yaw float64) error {
	in := struct {
		Pitch float64 `json:"pitch"`
		Yaw   float64 `json:"yaw"`
	}{pitch, yaw}
	return c.do(ctx, "gimbal", http.MethodPost, vehiclePath(id, "gimbal"), nil, in, nil)
}

// SetServo drives a servo output to a PWM value.
func (c *Client) SetServo(ctx context.Context, id string, channel, pwm int) error {
	in := struct {
		Channel int `json:"channel"`
		PWM     int `json:"pwm"`
	}{channel, pwm}
	return c.do(ctx, "servo", http.MethodPost, vehiclePath(id, "servo"), nil, in, nil)
}

func (c *Client) TestMotor(ctx context.Context, id string, t MotorTest) error {
	return c.do(ctx, "motor_test", http.MethodPost, vehiclePath(id, "motor-test"), nil, t, nil)
}

func (c *Client) Weather(ctx context.Context, lat, lon float64) (Weather, error) {
	var out Weather
	err := c.do(ctx, "weather", http.MethodGet, "/api/weather", latLon(lat, lon), nil, &out)
	return out, err
}

func (c *Client) Terrain(ctx context.Context, lat, lon float64) (Terrain, error) {
	var out Terrain
	err := c.do(ctx, "terrain", http.MethodGet, "/api/terrain", latLon(lat, lon), nil, &out)
	return out, err
}

func latLon(lat, lon float64) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
}
