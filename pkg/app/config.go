package app

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlagName = "config"

// addConfigFlag registers --config and prepares v to read environment
// variables named {PREFIX}_{FLAG}, with dots and dashes turned into
// underscores.
func addConfigFlag(name string, fs *pflag.FlagSet, v *viper.Viper) *string {
	cfgFile := fs.StringP(configFlagName, "c", "", "Read configuration from the specified file (yaml, json or toml). Flags override values from the file.")

	v.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return cfgFile
}

// loadConfig merges the config file, the environment and the flags into
// opts. Explicit flags win over the environment, which wins over the file.
func loadConfig(v *viper.Viper, cfgFile string, fs *pflag.FlagSet, opts any) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file %q: %w", cfgFile, err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}
