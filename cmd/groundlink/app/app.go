package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/groundlink/cmd/groundlink/app/options"
	"github.com/autopeer-io/groundlink/pkg/app"
	"github.com/autopeer-io/groundlink/pkg/log"
)

const (
	commandName = "groundlink"
	commandDesc = `groundlink is the core of a ground-control station. It keeps one channel
open to the vehicle backend, tracks telemetry for every connected vehicle,
streams manual control from the keyboard or a gamepad and serves a local API
the operator's client talks to.`
)

func NewApp() *app.App {
	opts := options.NewStationOptions()
	application := app.NewApp(
		commandName,
		"Run the ground-control station core",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithSubCommands(newVehiclesCommand()),
	)
	return application
}

func run(opts *options.StationOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		st, err := cfg.NewStation()
		if err != nil {
			return fmt.Errorf("failed to create station: %w", err)
		}

		return st.Run(ctx)
	}
}
