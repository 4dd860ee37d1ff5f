package onvif

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/elgs/gostrgen"
	"github.com/gofrs/uuid"
)

// DigestChallenge holds the parameters of a WWW-Authenticate: Digest header.
// It is parsed fresh from every 401 and never cached.
type DigestChallenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Qop       string // raw qop list offered by the server
	Algorithm string // as sent by the server, empty means MD5
	Stale     bool
}

// ParseDigestChallenge parses a WWW-Authenticate header value
func ParseDigestChallenge(header string) (*DigestChallenge, error) {
	header = strings.TrimSpace(header)
	scheme, params := header, ""
	if i := strings.IndexAny(header, " \t"); i != -1 {
		scheme, params = header[:i], header[i+1:]
	}
	if !strings.EqualFold(scheme, "Digest") {
		return nil, &AuthError{Kind: UnsupportedScheme, Detail: scheme}
	}

	values := parseAuthParams(params)
	challenge := &DigestChallenge{
		Realm:     values["realm"],
		Nonce:     values["nonce"],
		Opaque:    values["opaque"],
		Qop:       values["qop"],
		Algorithm: values["algorithm"],
		Stale:     strings.EqualFold(values["stale"], "true"),
	}

	if _, ok := values["realm"]; !ok {
		return nil, &AuthError{Kind: MalformedChallenge, Detail: "realm is missing"}
	}
	if challenge.Nonce == "" {
		return nil, &AuthError{Kind: MalformedChallenge, Detail: "nonce is missing"}
	}
	if _, err := digestHash(challenge.Algorithm); err != nil {
		return nil, err
	}

	return challenge, nil
}

// SelectDigestChallenge returns the first Digest challenge among the values
// of one or more WWW-Authenticate headers. Cameras often offer Basic too.
func SelectDigestChallenge(values []string) (*DigestChallenge, error) {
	if len(values) == 0 {
		return nil, &AuthError{Kind: MissingChallenge, Detail: "no WWW-Authenticate header"}
	}

	var firstErr error
	for _, v := range values {
		challenge, err := ParseDigestChallenge(v)
		if err == nil {
			return challenge, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// parseAuthParams parses comma separated key=value pairs, honoring quoted
// values that contain commas or escaped quotes
func parseAuthParams(s string) map[string]string {
	params := make(map[string]string)

	var parts []string
	var current strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\' && inQuotes && i+1 < len(s):
			current.WriteByte(ch)
			current.WriteByte(s[i+1])
			i++
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteByte(ch)
		case ch == ',' && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	parts = append(parts, current.String())

	for _, part := range parts {
		idx := strings.Index(part, "=")
		if idx == -1 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:idx]))
		value := strings.TrimSpace(part[idx+1:])
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = unquote(value[1 : len(value)-1])
		}
		if key != "" {
			params[key] = value
		}
	}

	return params
}

func unquote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// digestHash returns the hash constructor for an algorithm name
func digestHash(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "MD5", "MD5-SESS":
		return md5.New, nil
	case "SHA-256", "SHA-256-SESS":
		return sha256.New, nil
	default:
		return nil, &AuthError{Kind: UnsupportedAlgorithm, Detail: algorithm}
	}
}

func isSessionAlgorithm(algorithm string) bool {
	return strings.HasSuffix(strings.ToUpper(algorithm), "-SESS")
}

// selectQop returns "auth" when the server offers it, "" otherwise
func (c *DigestChallenge) selectQop() string {
	for _, q := range strings.Split(c.Qop, ",") {
		if strings.EqualFold(strings.TrimSpace(q), "auth") {
			return "auth"
		}
	}
	return ""
}

// Authorization computes the Authorization header value answering the
// challenge for a request of method on uri
func (c *DigestChallenge) Authorization(method, uri, username, password string) (string, error) {
	return c.authorization(method, uri, username, password, 1, newClientNonce())
}

func (c *DigestChallenge) authorization(method, uri, username, password string, nc uint32, cnonce string) (string, error) {
	newHash, err := digestHash(c.Algorithm)
	if err != nil {
		return "", err
	}
	h := func(s string) string {
		hh := newHash()
		hh.Write([]byte(s))
		return hex.EncodeToString(hh.Sum(nil))
	}

	qop := c.selectQop()
	useCnonce := qop != "" || isSessionAlgorithm(c.Algorithm)
	ncValue := fmt.Sprintf("%08x", nc)

	ha1 := h(username + ":" + c.Realm + ":" + password)
	if isSessionAlgorithm(c.Algorithm) {
		ha1 = h(ha1 + ":" + c.Nonce + ":" + cnonce)
	}
	ha2 := h(method + ":" + uri)

	var response string
	if qop != "" {
		response = h(strings.Join([]string{ha1, c.Nonce, ncValue, cnonce, qop, ha2}, ":"))
	} else {
		response = h(strings.Join([]string{ha1, c.Nonce, ha2}, ":"))
	}

	parts := []string{
		fmt.Sprintf(`username="%s"`, quote(username)),
		fmt.Sprintf(`realm="%s"`, quote(c.Realm)),
		fmt.Sprintf(`nonce="%s"`, quote(c.Nonce)),
		fmt.Sprintf(`uri="%s"`, quote(uri)),
		fmt.Sprintf(`response="%s"`, response),
	}
	if c.Algorithm != "" {
		parts = append(parts, "algorithm="+c.Algorithm)
	}
	if c.Opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, quote(c.Opaque)))
	}
	if qop != "" {
		parts = append(parts, "qop="+qop, "nc="+ncValue)
	}
	if useCnonce {
		parts = append(parts, fmt.Sprintf(`cnonce="%s"`, cnonce))
	}

	return "Digest " + strings.Join(parts, ", "), nil
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// newClientNonce returns a per-request client nonce
func newClientNonce() string {
	cnonce, err := gostrgen.RandGen(16, gostrgen.LowerDigit, "", "")
	if err != nil {
		return strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
	}
	return cnonce
}
