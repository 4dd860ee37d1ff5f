package onvif

import (
	"context"
	"fmt"
)

// GetServices asks the device where each of its services lives and updates
// the path table for the namespaces this package uses
func (d *Device) GetServices(ctx context.Context) <-chan *Response {
	return d.Perform(ctx, OpGetServices, CommandParams{})
}

// GetDeviceInformation fetches manufacturer, model, firmware, serial number
// and hardware ID. Its first success marks the device as connected.
func (d *Device) GetDeviceInformation(ctx context.Context) <-chan *Response {
	return d.Perform(ctx, OpGetDeviceInformation, CommandParams{})
}

func (d *Device) applyServices(body []byte) (string, error) {
	services, err := ParseServices(body)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	recognized := d.paths.apply(services)
	d.mu.Unlock()

	d.log.Debug().Int("services", len(services)).Int("recognized", recognized).Msg("service paths updated")
	return fmt.Sprintf("%d services retrieved, %d recognized.", len(services), recognized), nil
}

func (d *Device) applyDeviceInformation(body []byte) (string, error) {
	info, err := ParseDeviceInformation(body)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.info = info
	d.connected = true
	d.mu.Unlock()

	return info.String(), nil
}
