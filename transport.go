package onvif

import (
	"context"
	"crypto/tls"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/juju/errors"
)

// HTTPResult is what the session needs to know about an HTTP exchange
type HTTPResult struct {
	StatusCode int
	Reason     string
	Header     http.Header
	Body       []byte
}

// Transport posts a SOAP envelope to a device. Implementations return a
// *NetworkError when no HTTP response was received.
type Transport interface {
	Post(ctx context.Context, url string, header http.Header, body []byte) (*HTTPResult, error)
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, url string, header http.Header, body []byte) (*HTTPResult, error)

// Post calls f
func (f TransportFunc) Post(ctx context.Context, url string, header http.Header, body []byte) (*HTTPResult, error) {
	return f(ctx, url, header, body)
}

// RestyTransport is the default Transport, backed by a resty client
type RestyTransport struct {
	client *resty.Client
}

// NewRestyTransport creates a transport with the given overall request timeout
func NewRestyTransport(timeout time.Duration, insecureTLS bool) *RestyTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().SetTimeout(timeout)
	if insecureTLS {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return &RestyTransport{client: client}
}

// Post sends body to url with the given headers
func (t *RestyTransport) Post(ctx context.Context, url string, header http.Header, body []byte) (*HTTPResult, error) {
	req := t.client.R().SetContext(ctx).SetBody(body)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := req.Post(url)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: errors.Trace(err)}
	}

	return &HTTPResult{
		StatusCode: resp.StatusCode(),
		Reason:     reasonPhrase(resp.Status(), resp.StatusCode()),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// reasonPhrase strips the code from a status line such as "401 Unauthorized"
func reasonPhrase(status string, code int) string {
	reason := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
	if reason == "" {
		return http.StatusText(code)
	}
	return reason
}
