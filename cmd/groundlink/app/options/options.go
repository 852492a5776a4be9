package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/groundlink/internal/station"
	"github.com/autopeer-io/groundlink/pkg/app"
	"github.com/autopeer-io/groundlink/pkg/log"
	"github.com/autopeer-io/groundlink/pkg/options"
)

type StationOptions struct {
	TransportOptions  *options.TransportOptions  `json:"transport" mapstructure:"transport"`
	MqttOptions       *options.MqttOptions       `json:"mqtt" mapstructure:"mqtt"`
	BackendOptions    *options.BackendOptions    `json:"backend" mapstructure:"backend"`
	HttpOptions       *options.HttpOptions       `json:"http" mapstructure:"http"`
	ControlOptions    *options.ControlOptions    `json:"control" mapstructure:"control"`
	PreferenceOptions *options.PreferenceOptions `json:"prefs" mapstructure:"prefs"`
	Log               *log.Options               `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*StationOptions)(nil)

func NewStationOptions() *StationOptions {
	return &StationOptions{
		TransportOptions:  options.NewTransportOptions(),
		MqttOptions:       options.NewMqttOptions(),
		BackendOptions:    options.NewBackendOptions(),
		HttpOptions:       options.NewHttpOptions(),
		ControlOptions:    options.NewControlOptions(),
		PreferenceOptions: options.NewPreferenceOptions(),
		Log:               log.NewOptions(),
	}
}

func (o *StationOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.TransportOptions.AddFlags(fss.FlagSet("transport"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.BackendOptions.AddFlags(fss.FlagSet("backend"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.ControlOptions.AddFlags(fss.FlagSet("control"))
	o.PreferenceOptions.AddFlags(fss.FlagSet("prefs"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *StationOptions) Complete() error {
	if o.Log.Name == "" {
		o.Log.Name = "groundlink"
	}
	return nil
}

func (o *StationOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.TransportOptions.Validate()...)
	if o.TransportOptions.Kind == options.TransportMQTT {
		errs = append(errs, o.MqttOptions.Validate()...)
	}
	errs = append(errs, o.BackendOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.ControlOptions.Validate()...)
	errs = append(errs, o.PreferenceOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *StationOptions) Config() (*station.Config, error) {
	return &station.Config{
		TransportOptions:  o.TransportOptions,
		MqttOptions:       o.MqttOptions,
		BackendOptions:    o.BackendOptions,
		HttpOptions:       o.HttpOptions,
		ControlOptions:    o.ControlOptions,
		PreferenceOptions: o.PreferenceOptions,
	}, nil
}
