package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configure the station's local status and control API.
type HttpOptions struct {
	// Network with server network.
	Network string `json:"network" mapstructure:"network"`

	// Address with server address.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout bounds each request, including the backend call it triggers.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network: "tcp",
		Addr:    "127.0.0.1:8480",
		Timeout: 10 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Addr != "" {
		if err := ValidateAddress(o.Addr); err != nil {
			errs = append(errs, err)
		}
	}
	if o.Timeout <= 0 {
		errs = append(errs, errors.New("--http.timeout must be positive"))
	}

	return errs
}

// AddFlags adds flags related to the status API to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, "http.network", o.Network, "Specify the network for the status API.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Specify the status API bind address and port. Empty disables the API.")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "Timeout for a single API request.")
}
