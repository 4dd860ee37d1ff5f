// Package cli implements the onvifctl command tree
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	onvif "github.com/SridarDhandapani/onvifstream"
	"github.com/SridarDhandapani/onvifstream/internal/config"
)

type app struct {
	v          *viper.Viper
	cfgFile    string
	jsonOutput bool
	out        io.Writer

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCommand builds the onvifctl command tree
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), out: os.Stdout}

	root := &cobra.Command{
		Use:   "onvifctl",
		Short: "Query an ONVIF camera and resolve its RTSP stream",
		Long: `Discovers the service endpoints of an ONVIF camera, authenticates with
HTTP Digest, lists media profiles and resolves a playable RTSP URI.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.onvifctl.yaml)")
	flags.BoolVar(&a.jsonOutput, "json", false, "Output results as JSON")
	flags.StringP("address", "a", "", "Camera address (host, host:port or device service URL)")
	flags.StringP("username", "u", "", "Camera username")
	flags.StringP("password", "p", "", "Camera password")
	flags.Duration("timeout", 10*time.Second, "Request timeout")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	for key, flag := range map[string]string{
		config.KeyAddress:  "address",
		config.KeyUsername: "username",
		config.KeyPassword: "password",
		config.KeyTimeout:  "timeout",
		config.KeyInsecure: "insecure",
		config.KeyLogLevel: "log-level",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.servicesCommand(),
		a.infoCommand(),
		a.profilesCommand(),
		a.streamURICommand(),
		a.probeCommand(),
		a.watchCommand(),
	)
	return root
}

// Execute runs the command tree and exits on error
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	if err := config.Init(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		Level(cfg.Level()).
		With().Timestamp().Logger()
	a.logger.Debug().Str("address", cfg.Address).Dur("timeout", cfg.Timeout).Msg("configuration loaded")
	return nil
}

func (a *app) client() *onvif.Client {
	c := onvif.NewClientWithTimeout(a.cfg.Username, a.cfg.Password, a.cfg.Timeout)
	c.InsecureTLS = a.cfg.Insecure
	c.Logger = a.logger
	return c
}

// device opens a session and runs GetServices so later calls use the
// advertised paths. Discovery failures fall back to the default paths.
func (a *app) device(ctx context.Context) *onvif.Device {
	device := a.client().Device(a.cfg.Address)
	resp := <-device.GetServices(ctx)
	if !resp.Parsed() {
		a.logger.Warn().Str("summary", resp.Summary).Msg("service discovery failed, using default paths")
	}
	return device
}

// await waits for an operation and turns a failed or unparsable response
// into an error
func await(ch <-chan *onvif.Response) (*onvif.Response, error) {
	resp := <-ch
	if !resp.Success {
		return resp, errors.Errorf("%s failed: %s", resp.Operation, resp.Error)
	}
	if resp.ParseErr != nil {
		return resp, errors.Annotatef(resp.ParseErr, "%s", resp.Operation)
	}
	return resp, nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}
