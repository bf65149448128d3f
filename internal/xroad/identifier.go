// Package xroad implements the X-Road message protocol client: identifier
// handling, SOAP and REST request construction, response parsing and the
// typed error taxonomy shared by the rest of the tool.
package xroad

import (
	"fmt"
	"net/url"
	"strings"
)

// Identifier part counts. The arity of an identifier determines what it
// names: a member, a subsystem, a REST service or a versioned SOAP service.
const (
	MemberParts      = 3
	SubsystemParts   = 4
	RESTServiceParts = 5
	SOAPServiceParts = 6
)

// Identifier converts identifier parts to the slash-separated string form.
// Every part is percent-encoded independently, so parts containing the
// separator survive a round trip through ParseIdentifier.
func Identifier(parts []string) string {
	encoded := make([]string, len(parts))
	for i, p := range parts {
		encoded[i] = encodePart(p)
	}
	return strings.Join(encoded, "/")
}

// ParseIdentifier splits a slash-separated identifier into its decoded
// parts. Arity is not checked here; callers validate the part count they
// need.
func ParseIdentifier(s string) ([]string, error) {
	raw := strings.Split(s, "/")
	parts := make([]string, len(raw))
	for i, p := range raw {
		decoded, err := url.PathUnescape(p)
		if err != nil {
			return nil, validationErrorf("identifier %q: bad escape in part %d: %v", s, i, err)
		}
		parts[i] = decoded
	}
	return parts, nil
}

// encodePart percent-encodes a single identifier part. PathEscape encodes
// the separator itself, so a part containing "/" stays one part.
func encodePart(part string) string {
	return url.PathEscape(part)
}

// memberStyle reports whether the client identifier should be sent as a
// MEMBER: either three parts, or four parts with an empty subsystem code.
func memberStyle(client []string) bool {
	return len(client) == MemberParts ||
		(len(client) == SubsystemParts && client[3] == "")
}

func validateClient(client []string) error {
	if len(client) != MemberParts && len(client) != SubsystemParts {
		return validationErrorf("client identifier must have %d or %d parts, got %d",
			MemberParts, SubsystemParts, len(client))
	}
	return nil
}

func validateProducer(producer []string) error {
	if len(producer) != SubsystemParts {
		return validationErrorf("producer identifier must have %d parts, got %d",
			SubsystemParts, len(producer))
	}
	return nil
}

func validateService(service []string, parts int) error {
	if len(service) != parts {
		return validationErrorf("service identifier must have %d parts, got %d",
			parts, len(service))
	}
	return nil
}

// Method is a discovered service: the six identifier fields of a SOAP
// service. SubsystemCode and ServiceVersion may be empty.
type Method struct {
	XRoadInstance  string
	MemberClass    string
	MemberCode     string
	SubsystemCode  string
	ServiceCode    string
	ServiceVersion string
}

// Parts returns the method as an identifier part slice.
func (m Method) Parts() []string {
	return []string{
		m.XRoadInstance, m.MemberClass, m.MemberCode,
		m.SubsystemCode, m.ServiceCode, m.ServiceVersion,
	}
}

// String returns the percent-encoded identifier form of the method.
func (m Method) String() string { return Identifier(m.Parts()) }

// MethodFromParts builds a Method from a six-part identifier.
func MethodFromParts(parts []string) (Method, error) {
	if len(parts) != SOAPServiceParts {
		return Method{}, validationErrorf(
			"method identifier must have %d parts, got %d", SOAPServiceParts, len(parts))
	}
	return Method{
		XRoadInstance:  parts[0],
		MemberClass:    parts[1],
		MemberCode:     parts[2],
		SubsystemCode:  parts[3],
		ServiceCode:    parts[4],
		ServiceVersion: parts[5],
	}, nil
}

// RESTMethod is a discovered REST service: five identifier fields, no
// version.
type RESTMethod struct {
	XRoadInstance string
	MemberClass   string
	MemberCode    string
	SubsystemCode string
	ServiceCode   string
}

// Parts returns the REST method as an identifier part slice.
func (m RESTMethod) Parts() []string {
	return []string{m.XRoadInstance, m.MemberClass, m.MemberCode, m.SubsystemCode, m.ServiceCode}
}

// String returns the percent-encoded identifier form of the REST method.
func (m RESTMethod) String() string { return Identifier(m.Parts()) }

// RESTMethodFromParts builds a RESTMethod from a five-part identifier.
func RESTMethodFromParts(parts []string) (RESTMethod, error) {
	if len(parts) != RESTServiceParts {
		return RESTMethod{}, validationErrorf(
			"REST method identifier must have %d parts, got %d", RESTServiceParts, len(parts))
	}
	return RESTMethod{
		XRoadInstance: parts[0],
		MemberClass:   parts[1],
		MemberCode:    parts[2],
		SubsystemCode: parts[3],
		ServiceCode:   parts[4],
	}, nil
}

// AddURLScheme prepends a scheme to addr if it has none: https when TLS
// verification or a client certificate is in play, plain http otherwise.
func AddURLScheme(addr string, secure bool) string {
	if u, err := url.Parse(addr); err == nil && u.Scheme != "" && u.Host != "" {
		return addr
	}
	if secure {
		return fmt.Sprintf("https://%s", addr)
	}
	return fmt.Sprintf("http://%s", addr)
}
