package xroad

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

// ProtocolVersion is the X-Road message protocol version sent in every
// SOAP request.
const ProtocolVersion = "4.0"

// RESTVersion is the path prefix of the X-Road REST message protocol.
const RESTVersion = "r1"

// Service codes of the meta-services this client speaks.
const (
	ServiceListMethods    = "listMethods"
	ServiceAllowedMethods = "allowedMethods"
	ServiceGetWSDL        = "getWsdl"
)

const envelopeTemplate = `<?xml version="1.0" encoding="utf-8"?>
<SOAP-ENV:Envelope
        xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/"
        xmlns:xroad="http://x-road.eu/xsd/xroad.xsd"
        xmlns:id="http://x-road.eu/xsd/identifiers">
    <SOAP-ENV:Header>
        <xroad:client id:objectType="{{.ClientType}}">
            <id:xRoadInstance>{{esc (index .Client 0)}}</id:xRoadInstance>
            <id:memberClass>{{esc (index .Client 1)}}</id:memberClass>
            <id:memberCode>{{esc (index .Client 2)}}</id:memberCode>
{{- if eq .ClientType "SUBSYSTEM"}}
            <id:subsystemCode>{{esc (index .Client 3)}}</id:subsystemCode>
{{- end}}
        </xroad:client>
        <xroad:service id:objectType="SERVICE">
            <id:xRoadInstance>{{esc (index .Service 0)}}</id:xRoadInstance>
            <id:memberClass>{{esc (index .Service 1)}}</id:memberClass>
            <id:memberCode>{{esc (index .Service 2)}}</id:memberCode>
            <id:subsystemCode>{{esc (index .Service 3)}}</id:subsystemCode>
            <id:serviceCode>{{.ServiceCode}}</id:serviceCode>
        </xroad:service>
        <xroad:id>{{.ID}}</xroad:id>
        <xroad:protocolVersion>{{.ProtocolVersion}}</xroad:protocolVersion>
    </SOAP-ENV:Header>
    <SOAP-ENV:Body>
{{.Body}}
    </SOAP-ENV:Body>
</SOAP-ENV:Envelope>
`

const getWSDLBodyTemplate = `        <xroad:getWsdl>
            <xroad:serviceCode>{{esc .ServiceCode}}</xroad:serviceCode>
{{- if .ServiceVersion}}
            <xroad:serviceVersion>{{esc .ServiceVersion}}</xroad:serviceVersion>
{{- end}}
        </xroad:getWsdl>`

var (
	envelopeTmpl    = template.Must(template.New("envelope").Funcs(tmplFuncs).Parse(envelopeTemplate))
	getWSDLBodyTmpl = template.Must(template.New("getWsdlBody").Funcs(tmplFuncs).Parse(getWSDLBodyTemplate))
)

var tmplFuncs = template.FuncMap{"esc": escapeXML}

func escapeXML(s string) string {
	var b strings.Builder
	// EscapeText on a plain string never fails.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

type envelopeData struct {
	ClientType      string
	Client          []string
	Service         []string
	ServiceCode     string
	ID              string
	ProtocolVersion string
	Body            string
}

// buildEnvelope renders the request envelope for the given client and
// producer identifiers. The client is sent as MEMBER or SUBSYSTEM based on
// its arity; callers validate arity before getting here.
func buildEnvelope(client, service []string, serviceCode, body string) (string, error) {
	clientType := "SUBSYSTEM"
	if memberStyle(client) {
		clientType = "MEMBER"
	}
	data := envelopeData{
		ClientType:      clientType,
		Client:          client,
		Service:         service,
		ServiceCode:     serviceCode,
		ID:              uuid.NewString(),
		ProtocolVersion: ProtocolVersion,
		Body:            body,
	}
	var buf bytes.Buffer
	if err := envelopeTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render envelope: %w", err)
	}
	return buf.String(), nil
}

// buildMethodsEnvelope renders a listMethods or allowedMethods request.
func buildMethodsEnvelope(client, producer []string, serviceCode string) (string, error) {
	body := fmt.Sprintf("        <xroad:%s/>", serviceCode)
	return buildEnvelope(client, producer, serviceCode, body)
}

// buildGetWSDLEnvelope renders a getWsdl request for the given service.
// The serviceVersion element is omitted when the service has no version.
func buildGetWSDLEnvelope(client []string, service Method) (string, error) {
	var buf bytes.Buffer
	err := getWSDLBodyTmpl.Execute(&buf, struct {
		ServiceCode    string
		ServiceVersion string
	}{service.ServiceCode, service.ServiceVersion})
	if err != nil {
		return "", fmt.Errorf("render getWsdl body: %w", err)
	}
	return buildEnvelope(client, service.Parts()[:SubsystemParts], ServiceGetWSDL, buf.String())
}
