package options

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*BackendOptions)(nil)

// BackendOptions locate the vehicle backend's REST API.
type BackendOptions struct {
	BaseURL string        `json:"base-url" mapstructure:"base-url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

func NewBackendOptions() *BackendOptions {
	return &BackendOptions{
		BaseURL: "http://127.0.0.1:8000",
		Timeout: 10 * time.Second,
	}
}

func (o *BackendOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if u, err := url.Parse(o.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("--backend.base-url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("--backend.base-url must use http or https, got %q", u.Scheme))
	}
	if o.Timeout <= 0 {
		errs = append(errs, errors.New("--backend.timeout must be positive"))
	}
	return errs
}

func (o *BackendOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, "backend.base-url", o.BaseURL, "Base URL of the vehicle backend REST API.")
	fs.DurationVar(&o.Timeout, "backend.timeout", o.Timeout, "Timeout for one backend request.")
}
