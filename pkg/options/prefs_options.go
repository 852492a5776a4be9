package options

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PreferenceOptions)(nil)

// PreferenceOptions locate the operator preference file.
type PreferenceOptions struct {
	File  string `json:"file" mapstructure:"file"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

func NewPreferenceOptions() *PreferenceOptions {
	file := "groundlink-prefs.yaml"
	if dir, err := os.UserConfigDir(); err == nil {
		file = filepath.Join(dir, "groundlink", "prefs.yaml")
	}
	return &PreferenceOptions{File: file, Watch: true}
}

func (o *PreferenceOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.File == "" {
		return []error{errors.New("--prefs.file must not be empty")}
	}
	return nil
}

func (o *PreferenceOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.File, "prefs.file", o.File, "File the operator preferences are kept in (yaml, json or toml).")
	fs.BoolVar(&o.Watch, "prefs.watch", o.Watch, "Reload preferences when the file is edited.")
}
