package onvif

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

// GetProfiles fetches the media profiles. A successful response replaces the
// whole profile list, possibly with an empty one.
func (d *Device) GetProfiles(ctx context.Context) <-chan *Response {
	return d.Perform(ctx, OpGetProfiles, CommandParams{})
}

// GetStreamURI resolves the RTSP URI of the first known profile. When no
// profile is known nothing is sent and the response is Skipped with
// ErrNoProfiles.
func (d *Device) GetStreamURI(ctx context.Context) <-chan *Response {
	profiles := d.Profiles()
	if len(profiles) == 0 {
		return d.skipped(OpGetStreamURI, errors.Trace(ErrNoProfiles))
	}
	return d.GetStreamURIForProfile(ctx, profiles[0])
}

// GetStreamURIForProfile resolves the RTSP URI of profile
func (d *Device) GetStreamURIForProfile(ctx context.Context, profile MediaProfile) <-chan *Response {
	if !profile.Usable() {
		return d.skipped(OpGetStreamURI, errors.Trace(ErrEmptyProfileToken))
	}
	return d.Perform(ctx, OpGetStreamURI, CommandParams{ProfileToken: profile.Token})
}

func (d *Device) applyProfiles(body []byte) (string, error) {
	profiles, err := ParseProfiles(body)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.profiles = profiles
	d.mu.Unlock()

	return fmt.Sprintf("%d profiles retrieved.", len(profiles)), nil
}

func (d *Device) applyStreamURI(body []byte) (string, error) {
	uri, err := ParseStreamURI(body)
	if err != nil {
		return "", err
	}

	injected, err := InjectCredentials(uri, d.address, d.username, d.password)
	if err != nil {
		return "", &ParseError{Kind: Malformed, Operation: OpGetStreamURI, Field: "Uri", Err: err}
	}

	d.mu.Lock()
	d.streamURI = injected
	d.mu.Unlock()

	return "RTSP URI retrieved.", nil
}
