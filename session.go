package onvif

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Response is the outcome of one operation.
//
// Success reports the HTTP exchange only: it is true when the device answered
// 200, and then Result holds the raw body. Otherwise Error holds the failure
// text and Err its typed cause. Interpretation of a successful body is
// reported separately through ParseErr.
type Response struct {
	Request    *Request
	Operation  Operation
	Success    bool
	StatusCode int
	Result     string
	Error      string
	Err        error
	ParseErr   error
	Summary    string
	Skipped    bool // no request was sent, see Err
}

// Parsed reports whether the body was received and understood
func (r *Response) Parsed() bool {
	return r.Success && r.ParseErr == nil
}

func (r *Response) succeed(status int, body []byte) {
	r.Success = true
	r.StatusCode = status
	r.Result = string(body)
}

func (r *Response) fail(status int, err error, text string) {
	r.Success = false
	r.StatusCode = status
	r.Err = err
	r.Error = text
	r.Summary = fmt.Sprintf("Communication error trying to get %s: %s", r.Operation, text)
}

// Option configures a Device
type Option func(*Device)

// WithTransport replaces the default resty transport
func WithTransport(t Transport) Option {
	return func(d *Device) { d.transport = t }
}

// WithLogger sets the logger requests are traced to
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Device) { d.log = logger }
}

// WithTimeout sets the timeout of the default transport
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) { d.timeout = timeout }
}

// WithInsecureTLS skips certificate verification in the default transport
func WithInsecureTLS(insecure bool) Option {
	return func(d *Device) { d.insecureTLS = insecure }
}

// Device is a session with one camera. It owns the routing table and the
// results of the operations performed so far. Operations running at the same
// time do not coordinate: the last one to complete wins.
type Device struct {
	address  string
	baseURL  string
	username string
	password string

	transport   Transport
	log         zerolog.Logger
	timeout     time.Duration
	insecureTLS bool

	mu        sync.RWMutex
	paths     ServicePaths
	info      DeviceInformation
	profiles  []MediaProfile
	streamURI string
	connected bool

	subMu   sync.Mutex
	subs    map[uint64]func(*Response)
	nextSub uint64
}

// NewDevice creates a session for the camera at address ("host", "host:port"
// or a full device service URL) with the given credentials. The path of a
// device service URL replaces DefaultServicePath until GetServices runs.
func NewDevice(address, username, password string, opts ...Option) *Device {
	d := &Device{
		address:  getFirstAddress(address),
		baseURL:  baseURL(address),
		username: username,
		password: password,
		log:      zerolog.Nop(),
		timeout:  DefaultTimeout,
		paths:    newServicePaths(servicePath(address)),
		subs:     make(map[uint64]func(*Response)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.transport == nil {
		d.transport = NewRestyTransport(d.timeout, d.insecureTLS)
	}
	d.log = d.log.With().Str("device", d.baseURL).Logger()
	return d
}

// Address returns the address the device was created with
func (d *Device) Address() string {
	return d.address
}

// Paths returns the current service path table
func (d *Device) Paths() ServicePaths {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.paths
}

// Information returns the last device information retrieved
func (d *Device) Information() DeviceInformation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// Profiles returns the media profiles of the last GetProfiles
func (d *Device) Profiles() []MediaProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profiles := make([]MediaProfile, len(d.profiles))
	copy(profiles, d.profiles)
	return profiles
}

// StreamURI returns the last resolved stream URI, credentials included
func (d *Device) StreamURI() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.streamURI
}

// Connected reports whether GetDeviceInformation has succeeded
func (d *Device) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Subscribe registers fn to be called with every completed Response. The
// returned function removes the subscription.
func (d *Device) Subscribe(fn func(*Response)) (cancel func()) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs, id)
			d.subMu.Unlock()
		})
	}
}

func (d *Device) notify(resp *Response) {
	d.subMu.Lock()
	subs := make([]func(*Response), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.subMu.Unlock()

	for _, fn := range subs {
		fn(resp)
	}
}

// Perform runs op in the background. The returned channel yields exactly
// one Response, after subscribers have been notified.
func (d *Device) Perform(ctx context.Context, op Operation, params CommandParams) <-chan *Response {
	req, err := NewRequest(op, params)
	if err != nil {
		return d.skipped(op, err)
	}

	out := make(chan *Response, 1)
	go func() {
		defer close(out)
		resp := d.Do(ctx, req)
		d.notify(resp)
		out <- resp
	}()
	return out
}

// skipped returns an already completed channel for an operation that could
// not be sent
func (d *Device) skipped(op Operation, err error) <-chan *Response {
	out := make(chan *Response, 1)
	resp := &Response{Operation: op, Skipped: true}
	resp.fail(0, err, err.Error())
	resp.Summary = fmt.Sprintf("%s skipped: %s", op, err)
	d.notify(resp)
	out <- resp
	close(out)
	return out
}

// Do sends req, answering a digest challenge once if needed, then parses the
// body and updates the device state. It does not notify subscribers.
func (d *Device) Do(ctx context.Context, req *Request) *Response {
	resp := &Response{Request: req, Operation: req.Operation}

	path := d.Paths().For(req.Operation)
	url := d.baseURL + path
	log := d.log.With().
		Str("op", req.Operation.String()).
		Str("request_id", req.ID).
		Str("url", url).
		Logger()

	header := http.Header{}
	header.Set("Content-Type", ContentType)
	header.Set("SOAPAction", req.Operation.Action())

	log.Debug().Msg("sending request")
	result, err := d.post(ctx, url, header, req.Envelope)
	if err != nil {
		d.networkFailure(resp, url, err, log)
		return resp
	}

	if result.StatusCode == http.StatusUnauthorized {
		unauthorized := httpError(result)

		challenge, err := SelectDigestChallenge(result.Header.Values("WWW-Authenticate"))
		var authorization string
		if err == nil {
			authorization, err = challenge.Authorization(http.MethodPost, path, d.username, d.password)
		}
		if err != nil {
			authErr := &AuthError{Kind: MalformedChallenge, Unauthorized: unauthorized}
			if ae, ok := err.(*AuthError); ok {
				authErr.Kind = ae.Kind
				authErr.Detail = ae.Detail
			}
			log.Warn().Err(authErr).Msg("cannot answer authentication challenge")
			resp.fail(result.StatusCode, authErr, unauthorized.Error())
			return resp
		}

		log.Debug().Str("realm", challenge.Realm).Msg("retrying with digest authorization")
		header.Set("Authorization", authorization)
		result, err = d.post(ctx, url, header, req.Envelope)
		if err != nil {
			d.networkFailure(resp, url, err, log)
			return resp
		}
	}

	if result.StatusCode != http.StatusOK {
		herr := httpError(result)
		log.Warn().Int("status", result.StatusCode).Msg("request failed")
		resp.fail(result.StatusCode, herr, herr.Error())
		return resp
	}

	log.Debug().Int("status", result.StatusCode).Int("bytes", len(result.Body)).Msg("response received")
	resp.succeed(result.StatusCode, result.Body)
	d.apply(resp, result.Body)

	if resp.ParseErr != nil {
		log.Warn().Err(resp.ParseErr).Msg("cannot parse response")
	}
	return resp
}

// post calls the transport, turning a missing result into a network error
func (d *Device) post(ctx context.Context, url string, header http.Header, body []byte) (*HTTPResult, error) {
	result, err := d.transport.Post(ctx, url, header, body)
	if err == nil && result == nil {
		err = &NetworkError{URL: url, Err: errors.New("transport returned no response")}
	}
	return result, err
}

func (d *Device) networkFailure(resp *Response, url string, err error, log zerolog.Logger) {
	nerr, ok := err.(*NetworkError)
	if !ok {
		nerr = &NetworkError{URL: url, Err: err}
	}
	log.Warn().Err(nerr).Msg("transport error")
	resp.fail(0, nerr, nerr.Error())
}

func httpError(result *HTTPResult) *HTTPError {
	return &HTTPError{
		StatusCode: result.StatusCode,
		Reason:     result.Reason,
		Body:       string(result.Body),
	}
}

// apply parses body and mutates the state owned by the response's operation
func (d *Device) apply(resp *Response, body []byte) {
	var summary string
	var err error

	switch resp.Operation {
	case OpGetServices:
		summary, err = d.applyServices(body)
	case OpGetDeviceInformation:
		summary, err = d.applyDeviceInformation(body)
	case OpGetProfiles:
		summary, err = d.applyProfiles(body)
	case OpGetStreamURI:
		summary, err = d.applyStreamURI(body)
	default:
		err = errors.Errorf("unsupported operation %s", resp.Operation)
	}

	if err != nil {
		resp.ParseErr = err
		resp.Summary = "Parsing failed: " + err.Error()
		return
	}
	resp.Summary = summary
}
