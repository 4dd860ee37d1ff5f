package onvif

import (
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/juju/errors"
	"golang.org/x/net/html/charset"
)

// Cameras disagree on namespace prefixes (tds:, trt:, tr2:, ns1:, none), so
// every lookup below compares local element names only.

// readDocument parses body and returns the SOAP Body element
func readDocument(op Operation, body []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, &ParseError{Kind: Malformed, Operation: op, Err: errors.Trace(err)}
	}

	root := doc.Root()
	if root == nil {
		return nil, &ParseError{Kind: Malformed, Operation: op, Err: errors.New("no root element")}
	}

	soapBody := findFirst(root, "Body")
	if soapBody == nil {
		// Some firmware skips the envelope entirely
		soapBody = root
	}

	if fault := findFirst(soapBody, "Fault"); fault != nil {
		return nil, &ParseError{Kind: Fault, Operation: op, Err: errors.New(faultReason(fault))}
	}

	return soapBody, nil
}

// findFirst returns the first element named local in e's subtree, e included
func findFirst(e *etree.Element, local string) *etree.Element {
	if e.Tag == local {
		return e
	}
	for _, child := range e.ChildElements() {
		if found := findFirst(child, local); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every element named local in e's subtree, in document order
func findAll(e *etree.Element, local string) []*etree.Element {
	var found []*etree.Element
	if e.Tag == local {
		found = append(found, e)
	}
	for _, child := range e.ChildElements() {
		found = append(found, findAll(child, local)...)
	}
	return found
}

// childText returns the trimmed text of the first direct child named local
func childText(e *etree.Element, local string) string {
	for _, child := range e.ChildElements() {
		if child.Tag == local {
			return strings.TrimSpace(child.Text())
		}
	}
	return ""
}

// attrValue returns the value of the attribute named local, whatever its prefix
func attrValue(e *etree.Element, local string) string {
	for _, a := range e.Attr {
		if a.Key == local && a.Space != "xmlns" {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// faultReason extracts a readable reason from a SOAP 1.2 or 1.1 fault
func faultReason(fault *etree.Element) string {
	if reason := findFirst(fault, "Reason"); reason != nil {
		if text := findFirst(reason, "Text"); text != nil {
			if s := strings.TrimSpace(text.Text()); s != "" {
				return s
			}
		}
	}
	if s := childText(fault, "faultstring"); s != "" {
		return s
	}

	// Fall back to the most specific fault code
	values := findAll(fault, "Value")
	if len(values) > 0 {
		if s := strings.TrimSpace(values[len(values)-1].Text()); s != "" {
			return s
		}
	}
	return "SOAP fault in response"
}

// xaddrPath keeps the path and query of an XAddr; the configured device
// address stays authoritative for scheme and host
func xaddrPath(xaddr string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(xaddr))
	if err != nil {
		return "", false
	}
	path := u.EscapedPath()
	if path == "" {
		return "", false
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path, true
}

// ParseServices parses a GetServices response into a map of service
// namespace to XAddr path. Entries without a usable XAddr are skipped.
func ParseServices(body []byte) (map[string]string, error) {
	soapBody, err := readDocument(OpGetServices, body)
	if err != nil {
		return nil, err
	}

	resp := findFirst(soapBody, "GetServicesResponse")
	if resp == nil {
		return nil, &ParseError{Kind: MissingField, Operation: OpGetServices, Field: "GetServicesResponse"}
	}

	services := make(map[string]string)
	for _, service := range findAll(resp, "Service") {
		namespace := childText(service, "Namespace")
		if namespace == "" {
			continue
		}
		path, ok := xaddrPath(childText(service, "XAddr"))
		if !ok {
			continue
		}
		services[namespace] = path
	}

	return services, nil
}

// ParseDeviceInformation parses a GetDeviceInformation response. Missing
// fields are left empty.
func ParseDeviceInformation(body []byte) (DeviceInformation, error) {
	soapBody, err := readDocument(OpGetDeviceInformation, body)
	if err != nil {
		return DeviceInformation{}, err
	}

	resp := findFirst(soapBody, "GetDeviceInformationResponse")
	if resp == nil {
		return DeviceInformation{}, &ParseError{
			Kind:      MissingField,
			Operation: OpGetDeviceInformation,
			Field:     "GetDeviceInformationResponse",
		}
	}

	return DeviceInformation{
		Manufacturer:    childText(resp, "Manufacturer"),
		Model:           childText(resp, "Model"),
		FirmwareVersion: childText(resp, "FirmwareVersion"),
		SerialNumber:    childText(resp, "SerialNumber"),
		HardwareID:      childText(resp, "HardwareId"),
	}, nil
}

// ParseProfiles parses a GetProfiles response. An empty list is valid.
// Profiles without a token are dropped since they cannot be streamed.
func ParseProfiles(body []byte) ([]MediaProfile, error) {
	soapBody, err := readDocument(OpGetProfiles, body)
	if err != nil {
		return nil, err
	}

	resp := findFirst(soapBody, "GetProfilesResponse")
	if resp == nil {
		return nil, &ParseError{Kind: MissingField, Operation: OpGetProfiles, Field: "GetProfilesResponse"}
	}

	profiles := []MediaProfile{}
	for _, p := range resp.ChildElements() {
		if p.Tag != "Profiles" {
			continue
		}
		profile := MediaProfile{
			Token: attrValue(p, "token"),
			Name:  childText(p, "Name"),
		}
		if !profile.Usable() {
			continue
		}
		profiles = append(profiles, profile)
	}

	return profiles, nil
}

// ParseStreamURI parses a GetStreamUri response, Media2 (Uri) or
// Media1 (MediaUri/Uri)
func ParseStreamURI(body []byte) (string, error) {
	soapBody, err := readDocument(OpGetStreamURI, body)
	if err != nil {
		return "", err
	}

	for _, e := range findAll(soapBody, "Uri") {
		if uri := strings.TrimSpace(e.Text()); uri != "" {
			return uri, nil
		}
	}

	return "", &ParseError{Kind: MissingField, Operation: OpGetStreamURI, Field: "Uri"}
}

// ParseResponse dispatches body to the parser of op. The concrete result is
// map[string]string, DeviceInformation, []MediaProfile or string.
func ParseResponse(op Operation, body []byte) (interface{}, error) {
	switch op {
	case OpGetServices:
		return ParseServices(body)
	case OpGetDeviceInformation:
		return ParseDeviceInformation(body)
	case OpGetProfiles:
		return ParseProfiles(body)
	case OpGetStreamURI:
		return ParseStreamURI(body)
	default:
		return nil, errors.Errorf("unsupported operation %s", op)
	}
}
