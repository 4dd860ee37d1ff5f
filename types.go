// Package onvif provides a Go client for the ONVIF calls needed to go from a
// camera address to a playable RTSP URI
package onvif

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ONVIF and SOAP namespaces used on the wire
const (
	NamespaceSOAP   = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceDevice = "http://www.onvif.org/ver10/device/wsdl"
	NamespaceMedia  = "http://www.onvif.org/ver20/media/wsdl"
	NamespaceSchema = "http://www.onvif.org/ver10/schema"
)

// Default configuration
const (
	DefaultServicePath = "/onvif/device_service"
	DefaultTimeout     = 10 * time.Second
	ContentType        = "text/xml; charset=utf-8"
)

// Operation identifies one of the ONVIF calls a Device can perform
type Operation int

const (
	OpGetServices Operation = iota
	OpGetDeviceInformation
	OpGetProfiles
	OpGetStreamURI
)

// String returns the SOAP operation name
func (op Operation) String() string {
	switch op {
	case OpGetServices:
		return "GetServices"
	case OpGetDeviceInformation:
		return "GetDeviceInformation"
	case OpGetProfiles:
		return "GetProfiles"
	case OpGetStreamURI:
		return "GetStreamUri"
	default:
		return fmt.Sprintf("Operation(%d)", int(op))
	}
}

// Namespace returns the WSDL namespace the operation belongs to
func (op Operation) Namespace() string {
	switch op {
	case OpGetProfiles, OpGetStreamURI:
		return NamespaceMedia
	default:
		return NamespaceDevice
	}
}

// Action returns the SOAP action URI of the operation
func (op Operation) Action() string {
	return op.Namespace() + "/" + op.String()
}

// ServicePaths holds the HTTP path each operation is posted to.
// Every path starts at DefaultServicePath, or at the path of the configured
// device service URL, and is replaced once GetServices reports where the
// matching service lives.
type ServicePaths struct {
	Services          string
	DeviceInformation string
	Profiles          string
	StreamURI         string
}

// DefaultServicePaths returns the table used before discovery has run
func DefaultServicePaths() ServicePaths {
	return newServicePaths(DefaultServicePath)
}

func newServicePaths(path string) ServicePaths {
	return ServicePaths{
		Services:          path,
		DeviceInformation: path,
		Profiles:          path,
		StreamURI:         path,
	}
}

// For returns the path used for op
func (p ServicePaths) For(op Operation) string {
	switch op {
	case OpGetServices:
		return p.Services
	case OpGetDeviceInformation:
		return p.DeviceInformation
	case OpGetProfiles:
		return p.Profiles
	case OpGetStreamURI:
		return p.StreamURI
	default:
		return DefaultServicePath
	}
}

// apply copies the paths of recognized namespaces out of a GetServices result
// and returns how many namespaces were recognized. Others are ignored.
func (p *ServicePaths) apply(services map[string]string) int {
	recognized := 0
	for namespace, path := range services {
		switch namespace {
		case NamespaceDevice:
			p.Services = path
			p.DeviceInformation = path
		case NamespaceMedia:
			p.Profiles = path
			p.StreamURI = path
		default:
			continue
		}
		recognized++
	}
	return recognized
}

// DeviceInformation is the result of GetDeviceInformation. Every field is optional.
type DeviceInformation struct {
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareID      string
}

// String returns a one-line summary of the device information
func (info DeviceInformation) String() string {
	var parts []string
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}
	add("Manufacturer", info.Manufacturer)
	add("Model", info.Model)
	add("Firmware", info.FirmwareVersion)
	add("Serial", info.SerialNumber)
	add("HardwareID", info.HardwareID)

	if len(parts) == 0 {
		return "No device information reported"
	}
	return strings.Join(parts, ", ")
}

// DisplayName returns the best available name for the device
func (info DeviceInformation) DisplayName() string {
	switch {
	case info.Manufacturer != "" && info.Model != "":
		return info.Manufacturer + " " + info.Model
	case info.Model != "":
		return info.Model
	default:
		return info.Manufacturer
	}
}

// MediaProfile is one stream configuration advertised by the camera
type MediaProfile struct {
	Token string
	Name  string
}

// Usable reports whether the profile can be used in a stream URI request
func (p MediaProfile) Usable() bool {
	return p.Token != ""
}

// CommandParams carries the per-operation arguments of a command
type CommandParams struct {
	ProfileToken string
	Protocol     string // stream protocol for GetStreamUri, RTSP when empty
}

// Client holds the credentials and transport settings shared by the devices
// it creates
type Client struct {
	Username    string
	Password    string
	Timeout     time.Duration
	InsecureTLS bool // Skip TLS certificate verification
	Logger      zerolog.Logger
	Transport   Transport
}
