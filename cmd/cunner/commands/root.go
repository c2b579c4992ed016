package commands

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every flag when read from the environment, for
// example CUNNER_ENGINE or CUNNER_AVALANCHE_SAMPLES
const EnvPrefix = "CUNNER"

// RootCmd is the root command for cunner
var RootCmd = &cobra.Command{
	Use:          "cunner",
	Short:        "Pluggable blockchain consensus framework",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Path to a config file (toml, yaml or json)")
	RootCmd.PersistentFlags().String("log-level", "info", "trace, debug, info, warn, error")
}

// bindFlagsLoadViper registers the flags of the command with viper, followed
// by the environment and an optional config file, and decodes the result
// into out
func bindFlagsLoadViper(cmd *cobra.Command, out interface{}) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
	}
	return v.Unmarshal(out)
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}
