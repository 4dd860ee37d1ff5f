package main

import (
	"flag"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SridarDhandapani/onvifstream/internal/camerasim"
)

func main() {
	var listen, username, password, realm, qop, streamURI, profiles string

	flag.StringVar(&listen, "listen", ":8080", "Address to serve the simulated camera on")
	flag.StringVar(&username, "user", "admin", "Camera username")
	flag.StringVar(&password, "pass", "admin", "Camera password")
	flag.StringVar(&realm, "realm", "cam", "Digest realm")
	flag.StringVar(&qop, "qop", "auth", "Digest qop, empty to disable")
	flag.StringVar(&streamURI, "stream", "rtsp://127.0.0.1:8554/stream1", "Stream URI reported for every profile")
	flag.StringVar(&profiles, "profiles", "profile_1=mainStream,profile_2=subStream", "Comma separated token=name profiles")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	camera := camerasim.New(username, password)
	camera.Realm = realm
	camera.Qop = qop
	camera.StreamURI = streamURI
	camera.Profiles = nil
	for _, entry := range strings.Split(profiles, ",") {
		token, name, _ := strings.Cut(strings.TrimSpace(entry), "=")
		if token == "" {
			continue
		}
		camera.Profiles = append(camera.Profiles, camerasim.Profile{Token: token, Name: name})
	}

	log.Info().
		Str("listen", listen).
		Str("device_path", camera.DevicePath).
		Str("media_path", camera.MediaPath).
		Int("profiles", len(camera.Profiles)).
		Msg("simulated ONVIF camera ready")

	if err := http.ListenAndServe(listen, camera.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
