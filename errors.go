package onvif

import (
	"fmt"

	"github.com/juju/errors"
)

// ErrNoProfiles is reported when a stream URI is requested before any usable
// media profile is known
var ErrNoProfiles = errors.New("no media profile available")

// ErrEmptyProfileToken is returned when building a GetStreamUri command
// without a profile token
var ErrEmptyProfileToken = errors.New("profile token is empty")

// NetworkError is a connection, timeout or I/O failure reported by the transport
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-200 status returned by the device
type HTTPError struct {
	StatusCode int
	Reason     string
	Body       string
}

// Error returns "<status> - <reason>\n<body>"
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d - %s\n%s", e.StatusCode, e.Reason, e.Body)
}

// AuthErrorKind classifies digest authentication failures
type AuthErrorKind int

const (
	MalformedChallenge AuthErrorKind = iota
	MissingChallenge
	UnsupportedScheme
	UnsupportedAlgorithm
)

func (k AuthErrorKind) String() string {
	switch k {
	case MalformedChallenge:
		return "malformed challenge"
	case MissingChallenge:
		return "missing challenge"
	case UnsupportedScheme:
		return "unsupported scheme"
	case UnsupportedAlgorithm:
		return "unsupported algorithm"
	default:
		return "unknown"
	}
}

// AuthError is returned when a WWW-Authenticate challenge cannot be answered.
// Unauthorized holds the 401 that carried the challenge, when there was one.
type AuthError struct {
	Kind         AuthErrorKind
	Detail       string
	Unauthorized *HTTPError
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return "digest authentication: " + e.Kind.String()
	}
	return fmt.Sprintf("digest authentication: %s: %s", e.Kind, e.Detail)
}

// ParseErrorKind classifies response parsing failures
type ParseErrorKind int

const (
	// Malformed means the body is not parsable XML
	Malformed ParseErrorKind = iota
	// MissingField means the document is well formed but lacks a required element
	MissingField
	// Fault means the device answered with a SOAP fault
	Fault
)

func (k ParseErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed response"
	case MissingField:
		return "missing field"
	case Fault:
		return "SOAP fault"
	default:
		return "unknown"
	}
}

// ParseError is returned when a response body does not yield the expected structure
type ParseError struct {
	Kind      ParseErrorKind
	Operation Operation
	Field     string
	Err       error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s response: %s", e.Operation, e.Kind)
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
