package cli

import (
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	onvif "github.com/SridarDhandapani/onvifstream"
	"github.com/SridarDhandapani/onvifstream/stream"
)

func (a *app) servicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "Show the service paths advertised by the camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			device := a.client().Device(a.cfg.Address)
			resp, err := await(device.GetServices(cmd.Context()))
			if err != nil {
				return err
			}

			paths := device.Paths()
			if a.jsonOutput {
				return a.printJSON(paths)
			}

			a.printf("%s\n\n", resp.Summary)
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			defer w.Flush()
			for _, op := range []onvif.Operation{
				onvif.OpGetServices, onvif.OpGetDeviceInformation, onvif.OpGetProfiles, onvif.OpGetStreamURI,
			} {
				_, _ = w.Write([]byte(op.String() + "\t" + paths.For(op) + "\n"))
			}
			return nil
		},
	}
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show manufacturer, model, firmware and serial number",
		RunE: func(cmd *cobra.Command, args []string) error {
			device := a.device(cmd.Context())
			if _, err := await(device.GetDeviceInformation(cmd.Context())); err != nil {
				return err
			}

			info := device.Information()
			if a.jsonOutput {
				return a.printJSON(info)
			}

			a.printf("Camera: %s\n", info.DisplayName())
			a.printf("  Address:      %s\n", device.Address())
			a.printf("  Manufacturer: %s\n", info.Manufacturer)
			a.printf("  Model:        %s\n", info.Model)
			a.printf("  Firmware:     %s\n", info.FirmwareVersion)
			a.printf("  Serial:       %s\n", info.SerialNumber)
			a.printf("  Hardware ID:  %s\n", info.HardwareID)
			return nil
		},
	}
}

func (a *app) profilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List media profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			device := a.device(cmd.Context())
			if _, err := await(device.GetProfiles(cmd.Context())); err != nil {
				return err
			}

			profiles := device.Profiles()
			if a.jsonOutput {
				return a.printJSON(profiles)
			}
			if len(profiles) == 0 {
				a.printf("No profiles available.\n")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			defer w.Flush()
			_, _ = w.Write([]byte("TOKEN\tNAME\n"))
			for _, p := range profiles {
				_, _ = w.Write([]byte(p.Token + "\t" + p.Name + "\n"))
			}
			return nil
		},
	}
}

func (a *app) streamURICommand() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "stream-uri",
		Short: "Resolve the RTSP URI of a profile, credentials included",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := a.resolve(cmd, token)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(map[string]string{"uri": uri})
			}
			a.printf("%s\n", uri)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "profile", "", "Profile token (default is the first profile)")
	return cmd
}

// resolve runs the sequence up to GetStreamUri, for the given profile token
// or the first profile when token is empty
func (a *app) resolve(cmd *cobra.Command, token string) (string, error) {
	ctx := cmd.Context()
	device := a.device(ctx)

	if _, err := await(device.GetDeviceInformation(ctx)); err != nil {
		return "", err
	}
	a.logger.Info().Str("camera", device.Information().DisplayName()).Msg("connected")

	if token == "" {
		if _, err := await(device.GetProfiles(ctx)); err != nil {
			return "", err
		}
		if _, err := await(device.GetStreamURI(ctx)); err != nil {
			return "", err
		}
	} else {
		profile := onvif.MediaProfile{Token: token}
		if _, err := await(device.GetStreamURIForProfile(ctx, profile)); err != nil {
			return "", err
		}
	}

	return device.StreamURI(), nil
}

func (a *app) probeCommand() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Resolve the stream URI and describe the RTSP stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := a.resolve(cmd, token)
			if err != nil {
				return err
			}

			info, err := stream.Describe(cmd.Context(), uri, a.cfg.Timeout)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(info)
			}

			a.printf("Stream: %s\n", info.Title)
			for i, m := range info.Medias {
				a.printf("  %d. %s %s\n", i+1, m.Type, strings.Join(m.Codecs, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "profile", "", "Profile token (default is the first profile)")
	return cmd
}

func (a *app) watchCommand() *cobra.Command {
	var token string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Play the stream for a while and report packet counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := a.resolve(cmd, token)
			if err != nil {
				return err
			}

			stats, err := stream.Watch(cmd.Context(), uri, duration, a.cfg.Timeout)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(stats)
			}

			a.printf("Received %d RTP packets (%d bytes) and %d RTCP packets in %s\n",
				stats.RTPPackets, stats.Bytes, stats.RTCPPackets, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "profile", "", "Profile token (default is the first profile)")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "How long to play the stream")
	return cmd
}
