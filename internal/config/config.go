// Package config loads onvifctl settings from flags, environment and an
// optional YAML file
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ErrMissingAddress is returned when no camera address is configured
var ErrMissingAddress = errors.New("camera address is required")

// Setting keys
const (
	KeyAddress  = "address"
	KeyUsername = "username"
	KeyPassword = "password"
	KeyTimeout  = "timeout"
	KeyInsecure = "insecure"
	KeyLogLevel = "log_level"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultLogLevel = "info"
	envPrefix       = "ONVIF"
	fileName        = ".onvifctl"
)

// Config holds the settings of one run
type Config struct {
	Address  string
	Username string
	Password string
	Timeout  time.Duration
	Insecure bool
	LogLevel string
}

// Init points v at cfgFile, or at $HOME/.onvifctl.yaml when empty, and
// enables ONVIF_* environment variables. A missing file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(fileName)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyTimeout, defaultTimeout)
	v.SetDefault(KeyLogLevel, defaultLogLevel)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errors.Annotate(err, "reading config")
	}
	return nil
}

// Load reads a Config out of v and validates it
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Address:  v.GetString(KeyAddress),
		Username: v.GetString(KeyUsername),
		Password: v.GetString(KeyPassword),
		Timeout:  v.GetDuration(KeyTimeout),
		Insecure: v.GetBool(KeyInsecure),
		LogLevel: v.GetString(KeyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and fills defaults
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return errors.Trace(ErrMissingAddress)
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Annotatef(err, "log level %q", c.LogLevel)
	}
	return nil
}

// Level returns the configured zerolog level
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// String returns a representation of the configuration without the password
func (c *Config) String() string {
	password := ""
	if c.Password != "" {
		password = "********"
	}
	return fmt.Sprintf(
		"Configuration:\n  Address: %s\n  Username: %s\n  Password: %s\n  Timeout: %v\n  Insecure: %t\n  Log level: %s",
		c.Address, c.Username, password, c.Timeout, c.Insecure, c.LogLevel,
	)
}
