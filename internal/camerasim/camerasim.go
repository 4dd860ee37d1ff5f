// Package camerasim serves a minimal ONVIF camera over HTTP: the device and
// media calls needed to reach a stream URI, behind HTTP Digest authentication
package camerasim

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/elgs/gostrgen"
	"github.com/gin-gonic/gin"
)

// Profile is a media profile advertised by the simulated camera
type Profile struct {
	Token string
	Name  string
}

// Camera is a simulated ONVIF device. Configure the exported fields before
// calling Handler.
type Camera struct {
	Username string
	Password string
	Realm    string
	Nonce    string
	Opaque   string
	Qop      string // "auth" to require qop, empty for RFC 2069 digest

	// RejectAll answers 401 to every request, as a camera would with stale credentials
	RejectAll bool
	// OmitChallenge answers 401 without a WWW-Authenticate header
	OmitChallenge bool

	DevicePath string
	MediaPath  string

	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareID      string

	Profiles  []Profile
	StreamURI string // returned for every known profile

	mu       sync.Mutex
	requests []Request
	rejected int
}

// Request records one request received by the camera
type Request struct {
	Path          string
	Action        string
	Authorization string
	ContentType   string
	Body          string
}

// New returns a camera with default settings: one profile, digest realm
// "cam", services under /onvif/device_service and /onvif/media_service
func New(username, password string) *Camera {
	nonce, err := gostrgen.RandGen(24, gostrgen.LowerDigit, "", "")
	if err != nil {
		nonce = "0123456789abcdef"
	}

	return &Camera{
		Username:        username,
		Password:        password,
		Realm:           "cam",
		Nonce:           nonce,
		DevicePath:      "/onvif/device_service",
		MediaPath:       "/onvif/media_service",
		Manufacturer:    "Simulated",
		Model:           "SIM-1",
		FirmwareVersion: "1.0.0",
		SerialNumber:    "SIM0001",
		HardwareID:      "HW1",
		Profiles:        []Profile{{Token: "profile_1", Name: "mainStream"}},
		StreamURI:       "rtsp://127.0.0.1:554/stream1",
	}
}

// Handler returns the gin engine serving the camera
func (c *Camera) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST(c.DevicePath, c.handle)
	if c.MediaPath != c.DevicePath {
		r.POST(c.MediaPath, c.handle)
	}

	return r
}

// Requests returns the requests received so far
func (c *Camera) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.requests))
	copy(out, c.requests)
	return out
}

func (c *Camera) handle(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		ctx.String(http.StatusBadRequest, err.Error())
		return
	}

	action, token := inspect(body)
	path := ctx.Request.URL.RequestURI()

	c.mu.Lock()
	c.requests = append(c.requests, Request{
		Path:          path,
		Action:        action,
		Authorization: ctx.GetHeader("Authorization"),
		ContentType:   ctx.GetHeader("Content-Type"),
		Body:          string(body),
	})
	c.mu.Unlock()

	if c.RejectAll || !c.authorized(ctx.GetHeader("Authorization"), ctx.Request.Method, path) {
		c.challenge(ctx)
		return
	}

	switch action {
	case "GetServices":
		c.reply(ctx, http.StatusOK, c.servicesResponse(ctx.Request.Host))
	case "GetDeviceInformation":
		c.reply(ctx, http.StatusOK, c.deviceInformationResponse())
	case "GetProfiles":
		c.reply(ctx, http.StatusOK, c.profilesResponse())
	case "GetStreamUri":
		for _, p := range c.Profiles {
			if p.Token == token {
				c.reply(ctx, http.StatusOK, fmt.Sprintf(
					`<tr2:GetStreamUriResponse><tr2:Uri>%s</tr2:Uri></tr2:GetStreamUriResponse>`, escape(c.StreamURI)))
				return
			}
		}
		c.reply(ctx, http.StatusBadRequest, fault("ter:InvalidArgVal", "ter:NoProfile", "Profile token does not exist"))
	default:
		c.reply(ctx, http.StatusBadRequest, fault("ter:ActionNotSupported", "", "Action not supported: "+action))
	}
}

// challenge answers 401 with a body numbering the rejections so far
func (c *Camera) challenge(ctx *gin.Context) {
	if !c.OmitChallenge {
		params := []string{
			fmt.Sprintf(`realm="%s"`, c.Realm),
			fmt.Sprintf(`nonce="%s"`, c.Nonce),
		}
		if c.Qop != "" {
			params = append(params, fmt.Sprintf(`qop="%s"`, c.Qop))
		}
		if c.Opaque != "" {
			params = append(params, fmt.Sprintf(`opaque="%s"`, c.Opaque))
		}
		ctx.Header("WWW-Authenticate", "Digest "+strings.Join(params, ", "))
	}

	c.mu.Lock()
	c.rejected++
	attempt := c.rejected
	c.mu.Unlock()

	body := fmt.Sprintf("401 Unauthorized (attempt %d)", attempt)
	ctx.Data(http.StatusUnauthorized, "text/plain; charset=utf-8", []byte(body))
}

// authorized checks an Authorization header against the camera credentials
func (c *Camera) authorized(header, method, path string) bool {
	if !strings.HasPrefix(header, "Digest ") {
		return false
	}

	params := map[string]string{}
	for _, part := range strings.Split(strings.TrimPrefix(header, "Digest "), ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			params[kv[0]] = strings.Trim(kv[1], `"`)
		}
	}

	if params["username"] != c.Username || params["realm"] != c.Realm ||
		params["nonce"] != c.Nonce || params["uri"] != path {
		return false
	}
	if c.Opaque != "" && params["opaque"] != c.Opaque {
		return false
	}

	ha1 := md5Hex(c.Username + ":" + c.Realm + ":" + c.Password)
	ha2 := md5Hex(method + ":" + path)

	var expected string
	if c.Qop != "" {
		if params["qop"] != c.Qop || params["nc"] == "" || params["cnonce"] == "" {
			return false
		}
		expected = md5Hex(ha1 + ":" + c.Nonce + ":" + params["nc"] + ":" + params["cnonce"] + ":" + c.Qop + ":" + ha2)
	} else {
		expected = md5Hex(ha1 + ":" + c.Nonce + ":" + ha2)
	}

	return params["response"] == expected
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// inspect returns the local name of the first element inside the SOAP Body
// and the profile token, if any
func inspect(body []byte) (action, token string) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	inBody := false
	current := ""
	for {
		tok, err := dec.Token()
		if err != nil {
			return action, token
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			if inBody && action == "" {
				action = t.Name.Local
			}
			if t.Name.Local == "Body" {
				inBody = true
			}
		case xml.CharData:
			if current == "ProfileToken" {
				token = strings.TrimSpace(string(t))
			}
		case xml.EndElement:
			current = ""
		}
	}
}

func (c *Camera) reply(ctx *gin.Context, status int, payload string) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope"
                   xmlns:tds="http://www.onvif.org/ver10/device/wsdl"
                   xmlns:tr2="http://www.onvif.org/ver20/media/wsdl"
                   xmlns:tt="http://www.onvif.org/ver10/schema"
                   xmlns:ter="http://www.onvif.org/ver10/error">
	<SOAP-ENV:Body>` + payload + `</SOAP-ENV:Body>
</SOAP-ENV:Envelope>`
	ctx.Data(status, "application/soap+xml; charset=utf-8", []byte(doc))
}

func (c *Camera) servicesResponse(host string) string {
	var b strings.Builder
	b.WriteString("<tds:GetServicesResponse>")
	services := []struct{ namespace, path string }{
		{"http://www.onvif.org/ver10/device/wsdl", c.DevicePath},
		{"http://www.onvif.org/ver20/media/wsdl", c.MediaPath},
		{"http://www.onvif.org/ver20/imaging/wsdl", "/onvif/imaging_service"},
		{"http://www.onvif.org/ver10/events/wsdl", "/onvif/event_service"},
	}
	for _, s := range services {
		fmt.Fprintf(&b, `<tds:Service><tds:Namespace>%s</tds:Namespace><tds:XAddr>http://%s%s</tds:XAddr>`+
			`<tds:Version><tt:Major>2</tt:Major><tt:Minor>60</tt:Minor></tds:Version></tds:Service>`,
			s.namespace, host, s.path)
	}
	b.WriteString("</tds:GetServicesResponse>")
	return b.String()
}

func (c *Camera) deviceInformationResponse() string {
	return fmt.Sprintf(`<tds:GetDeviceInformationResponse>
		<tds:Manufacturer>%s</tds:Manufacturer>
		<tds:Model>%s</tds:Model>
		<tds:FirmwareVersion>%s</tds:FirmwareVersion>
		<tds:SerialNumber>%s</tds:SerialNumber>
		<tds:HardwareId>%s</tds:HardwareId>
	</tds:GetDeviceInformationResponse>`,
		escape(c.Manufacturer), escape(c.Model), escape(c.FirmwareVersion),
		escape(c.SerialNumber), escape(c.HardwareID))
}

func (c *Camera) profilesResponse() string {
	var b strings.Builder
	b.WriteString("<tr2:GetProfilesResponse>")
	for _, p := range c.Profiles {
		fmt.Fprintf(&b, `<tr2:Profiles token="%s" fixed="true"><tr2:Name>%s</tr2:Name></tr2:Profiles>`,
			escape(p.Token), escape(p.Name))
	}
	b.WriteString("</tr2:GetProfilesResponse>")
	return b.String()
}

func fault(code, subcode, reason string) string {
	sub := ""
	if subcode != "" {
		sub = "<SOAP-ENV:Subcode><SOAP-ENV:Value>" + subcode + "</SOAP-ENV:Value></SOAP-ENV:Subcode>"
	}
	return `<SOAP-ENV:Fault><SOAP-ENV:Code><SOAP-ENV:Value>SOAP-ENV:Sender</SOAP-ENV:Value>` +
		`<SOAP-ENV:Subcode><SOAP-ENV:Value>` + code + `</SOAP-ENV:Value>` + sub + `</SOAP-ENV:Subcode></SOAP-ENV:Code>` +
		`<SOAP-ENV:Reason><SOAP-ENV:Text xml:lang="en">` + escape(reason) + `</SOAP-ENV:Text></SOAP-ENV:Reason></SOAP-ENV:Fault>`
}

func escape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
