package onvif

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// NewClient creates a new ONVIF client with credentials
func NewClient(username, password string) *Client {
	return &Client{
		Username: username,
		Password: password,
		Timeout:  DefaultTimeout,
		Logger:   zerolog.Nop(),
	}
}

// NewClientWithTimeout creates a new ONVIF client with custom timeout
func NewClientWithTimeout(username, password string, timeout time.Duration) *Client {
	c := NewClient(username, password)
	c.Timeout = timeout
	return c
}

// Device opens a session with the camera at address using the client's
// credentials and settings
func (c *Client) Device(address string) *Device {
	opts := []Option{
		WithTimeout(c.Timeout),
		WithInsecureTLS(c.InsecureTLS),
		WithLogger(c.Logger),
	}
	if c.Transport != nil {
		opts = append(opts, WithTransport(c.Transport))
	}
	return NewDevice(address, c.Username, c.Password, opts...)
}

// ResolveStreamURI runs the whole sequence against address (services, device
// information, profiles, stream URI) and returns the session with its
// credential-bearing RTSP URI. A failed GetServices is tolerated since the
// default paths are often right.
func (c *Client) ResolveStreamURI(ctx context.Context, address string) (*Device, error) {
	device := c.Device(address)

	if resp := <-device.GetServices(ctx); !resp.Parsed() {
		c.Logger.Warn().Str("summary", resp.Summary).Msg("service discovery failed, using default paths")
	}

	steps := []func(context.Context) <-chan *Response{
		device.GetDeviceInformation,
		device.GetProfiles,
		device.GetStreamURI,
	}
	for _, step := range steps {
		resp := <-step(ctx)
		if !resp.Success {
			return device, errors.Annotate(resp.Err, resp.Operation.String())
		}
		if resp.ParseErr != nil {
			return device, errors.Trace(resp.ParseErr)
		}
	}

	return device, nil
}
