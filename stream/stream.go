// Package stream hands a resolved RTSP URI to an RTSP client: it can describe
// the stream or play it for a while and count what arrives
package stream

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gortsplib/v5"
	"github.com/bluenviron/gortsplib/v5/pkg/base"
	"github.com/bluenviron/gortsplib/v5/pkg/description"
	"github.com/bluenviron/gortsplib/v5/pkg/format"
	"github.com/juju/errors"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// DefaultTimeout bounds RTSP reads and writes
const DefaultTimeout = 10 * time.Second

// Media describes one media section of a stream
type Media struct {
	Type    string
	Control string
	Codecs  []string
}

// Info is the result of Describe
type Info struct {
	Title  string
	Medias []Media
}

// Stats counts what Watch received
type Stats struct {
	RTPPackets  uint64
	RTCPPackets uint64
	Bytes       uint64
	Duration    time.Duration
}

// ParseURI validates an RTSP URI
func ParseURI(uri string) (*base.URL, error) {
	if scheme, _, ok := strings.Cut(uri, "://"); ok {
		switch strings.ToLower(scheme) {
		case "rtsp", "rtsps":
		default:
			return nil, errors.NotSupportedf("scheme %q", scheme)
		}
	}

	u, err := base.ParseURL(uri)
	if err != nil {
		return nil, errors.Annotatef(err, "invalid stream URI")
	}
	return u, nil
}

func newClient(u *base.URL, timeout time.Duration) *gortsplib.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &gortsplib.Client{
		Scheme:       u.Scheme,
		Host:         u.Host,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
}

// closeOnDone closes c when ctx ends, unblocking any call in progress. The
// returned function stops the watcher.
func closeOnDone(ctx context.Context, c *gortsplib.Client) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Describe connects to uri and returns the medias it announces
func Describe(ctx context.Context, uri string, timeout time.Duration) (*Info, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	c := newClient(u, timeout)
	if err := c.Start(); err != nil {
		return nil, errors.Annotatef(err, "connecting to %s", u.Host)
	}
	defer c.Close()
	defer closeOnDone(ctx, c)()

	desc, _, err := c.Describe(u)
	if err != nil {
		return nil, errors.Annotate(err, "describing stream")
	}

	return describe(desc), nil
}

func describe(desc *description.Session) *Info {
	info := &Info{Title: desc.Title}
	for _, m := range desc.Medias {
		media := Media{Type: string(m.Type), Control: m.Control}
		for _, f := range m.Formats {
			media.Codecs = append(media.Codecs, f.Codec())
		}
		info.Medias = append(info.Medias, media)
	}
	return info
}

// Watch plays uri for duration d, or until ctx ends, and counts the packets received
func Watch(ctx context.Context, uri string, d, timeout time.Duration) (*Stats, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	c := newClient(u, timeout)
	if err := c.Start(); err != nil {
		return nil, errors.Annotatef(err, "connecting to %s", u.Host)
	}
	defer c.Close()
	defer closeOnDone(ctx, c)()

	desc, _, err := c.Describe(u)
	if err != nil {
		return nil, errors.Annotate(err, "describing stream")
	}

	if err := c.SetupAll(desc.BaseURL, desc.Medias); err != nil {
		return nil, errors.Annotate(err, "setting up medias")
	}

	var rtpCount, rtcpCount, bytes atomic.Uint64
	c.OnPacketRTPAny(func(_ *description.Media, _ format.Format, pkt *rtp.Packet) {
		rtpCount.Add(1)
		bytes.Add(uint64(len(pkt.Payload)))
	})
	c.OnPacketRTCPAny(func(_ *description.Media, _ rtcp.Packet) {
		rtcpCount.Add(1)
	})

	start := time.Now()
	if _, err := c.Play(nil); err != nil {
		return nil, errors.Annotate(err, "starting playback")
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- c.Wait() }()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	case err := <-waitErr:
		if err != nil && ctx.Err() == nil {
			return nil, errors.Annotate(err, "playback stopped")
		}
	}

	return &Stats{
		RTPPackets:  rtpCount.Load(),
		RTCPPackets: rtcpCount.Load(),
		Bytes:       bytes.Load(),
		Duration:    time.Since(start),
	}, nil
}
