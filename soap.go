package onvif

import (
	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"
)

// prefixes maps every namespace prefix used in outgoing envelopes to its URI.
// Commands only ever refer to these prefixes.
var prefixes = []struct{ prefix, uri string }{
	{"s", NamespaceSOAP},
	{"tds", NamespaceDevice},
	{"tr2", NamespaceMedia},
	{"tt", NamespaceSchema},
}

func prefixFor(namespace string) string {
	for _, p := range prefixes {
		if p.uri == namespace {
			return p.prefix
		}
	}
	return ""
}

// node is an element of a command payload. Children keep their order.
type node struct {
	name     string
	text     string
	children []node
}

func el(name string, children ...node) node {
	return node{name: name, children: children}
}

func textEl(name, text string) node {
	return node{name: name, text: text}
}

// build appends n under parent, qualifying names with the operation prefix
func (n node) build(parent *etree.Element, prefix string) *etree.Element {
	e := parent.CreateElement(prefix + ":" + n.name)
	if n.text != "" {
		e.SetText(n.text)
	}
	for _, child := range n.children {
		child.build(e, prefix)
	}
	return e
}

// command returns the payload tree of op
func command(op Operation, params CommandParams) (node, error) {
	switch op {
	case OpGetServices:
		return el("GetServices", textEl("IncludeCapability", "false")), nil
	case OpGetDeviceInformation:
		return el("GetDeviceInformation"), nil
	case OpGetProfiles:
		return el("GetProfiles"), nil
	case OpGetStreamURI:
		if params.ProfileToken == "" {
			return node{}, errors.Trace(ErrEmptyProfileToken)
		}
		protocol := params.Protocol
		if protocol == "" {
			protocol = "RTSP"
		}
		return el("GetStreamUri",
			textEl("Protocol", protocol),
			textEl("ProfileToken", params.ProfileToken),
		), nil
	default:
		return node{}, errors.Errorf("unsupported operation %s", op)
	}
}

// BuildCommand returns the SOAP body payload of op, serialized
func BuildCommand(op Operation, params CommandParams) (string, error) {
	payload, err := command(op, params)
	if err != nil {
		return "", err
	}

	doc := etree.NewDocument()
	payload.build(&doc.Element, prefixFor(op.Namespace()))
	return doc.WriteToString()
}

// envelope wraps the payload of op in a SOAP 1.2 envelope declaring every
// known prefix
func envelope(op Operation, params CommandParams) ([]byte, error) {
	payload, err := command(op, params)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	for _, p := range prefixes {
		env.CreateAttr("xmlns:"+p.prefix, p.uri)
	}
	env.CreateElement("s:Header")
	body := env.CreateElement("s:Body")
	payload.build(body, prefixFor(op.Namespace()))

	return doc.WriteToBytes()
}

// Request is one outbound operation. It is not modified after NewRequest.
type Request struct {
	ID        string
	Operation Operation
	Namespace string
	Command   string // payload placed in the SOAP body
	Envelope  []byte // full document posted to the device
}

// NewRequest builds the command and envelope for op
func NewRequest(op Operation, params CommandParams) (*Request, error) {
	cmd, err := BuildCommand(op, params)
	if err != nil {
		return nil, errors.Annotatef(err, "building %s", op)
	}
	env, err := envelope(op, params)
	if err != nil {
		return nil, errors.Annotatef(err, "building %s envelope", op)
	}

	return &Request{
		ID:        uuid.Must(uuid.NewV4()).String(),
		Operation: op,
		Namespace: op.Namespace(),
		Command:   cmd,
		Envelope:  env,
	}, nil
}
