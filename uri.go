package onvif

import (
	"net"
	"net/url"
	"strings"

	"github.com/juju/errors"
)

// getFirstAddress extracts the first address if multiple are provided
func getFirstAddress(address string) string {
	addresses := strings.Fields(address)
	if len(addresses) > 0 {
		return addresses[0]
	}
	return address
}

// baseURL turns a configured device address into the scheme://host[:port]
// prefix that service paths are appended to
func baseURL(address string) string {
	address = getFirstAddress(address)
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return strings.TrimRight(address, "/")
	}
	return u.Scheme + "://" + u.Host
}

// servicePath returns the path and query of a configured device service
// URL, or DefaultServicePath when the address has none
func servicePath(address string) string {
	address = getFirstAddress(address)
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return DefaultServicePath
	}
	path := u.EscapedPath()
	if path == "" || path == "/" {
		return DefaultServicePath
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// hostOnly returns the host of a configured device address without port
func hostOnly(address string) string {
	address = getFirstAddress(address)
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return address
	}
	return u.Hostname()
}

// InjectCredentials rewrites a stream URI reported by the camera so it embeds
// username and password and points at the host the caller configured. The
// camera's port, path and query are kept; a port in deviceAddress is not.
func InjectCredentials(streamURI, deviceAddress, username, password string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(streamURI))
	if err != nil {
		return "", errors.Annotatef(err, "parsing stream URI %q", streamURI)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Errorf("stream URI %q is not absolute", streamURI)
	}

	host := hostOnly(deviceAddress)
	if host == "" {
		host = u.Hostname()
	}
	if port := u.Port(); port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	out := url.URL{
		Scheme:   u.Scheme,
		Host:     host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
	if username != "" {
		out.User = url.UserPassword(username, password)
	}
	if out.Path == "" {
		out.Path = "/"
	}

	return out.String(), nil
}
