// Package app builds the cobra command every station binary runs as.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"
)

// RunFunc is the body of the command, called once the options are loaded and
// valid.
type RunFunc func() error

// App is a command line application.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs
	subCommands []*cobra.Command

	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions sets the options the command's flags and config file bind to.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithSubCommands adds commands below the root command.
func WithSubCommands(cmds ...*cobra.Command) Option {
	return func(a *App) { a.subCommands = append(a.subCommands, cmds...) }
}

// NewApp creates a new application instance based on the given name and options.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{name: name, shortDesc: shortDesc}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the root cobra command.
func (a *App) Command() *cobra.Command { return a.cmd }

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:          a.name,
		Short:        a.shortDesc,
		Long:         a.description,
		SilenceUsage: true,
		Args:         a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true
	cmd.AddCommand(a.subCommands...)

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}

	v := viper.New()
	cfgFile := addConfigFlag(a.name, fss.FlagSet("global"), v)
	for _, f := range fss.FlagSets {
		cmd.Flags().AddFlagSet(f)
	}

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if a.options == nil {
			return nil
		}
		if err := loadConfig(v, *cfgFile, cmd.Flags(), a.options); err != nil {
			return err
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		return a.options.Validate()
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	return a.runFunc()
}
