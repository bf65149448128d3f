package xroad

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single request round trip when the config does
// not say otherwise.
const DefaultTimeout = 5 * time.Second

// responseBodyLimit caps how much of a response is read into memory.
const responseBodyLimit = 64 << 20

// Options configures transport behavior for a Client.
type Options struct {
	// Timeout bounds each request round trip.
	Timeout time.Duration
	// CACert is a PEM file used to verify the server certificate. Empty
	// means the peer certificate is not validated.
	CACert string
	// Cert and Key form the mutual TLS client certificate pair.
	Cert string
	Key  string
	// RequestsPerSecond throttles outbound requests across all callers of
	// this client. Zero means unlimited.
	RequestsPerSecond float64
}

// Secure reports whether TLS is in play, which decides the default URL
// scheme for schemeless addresses.
func (o Options) Secure() bool {
	return o.CACert != "" || (o.Cert != "" && o.Key != "")
}

// Client speaks the X-Road message protocol to security servers: SOAP
// meta-services, their REST counterparts and description retrieval.
type Client struct {
	hc      *http.Client
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient builds a Client from transport options.
func NewClient(opts Options, log *zap.Logger) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	tlsCfg, err := buildTLSConfig(opts)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:     tlsCfg,
			MaxIdleConns:        128,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     30 * time.Second,
		},
		Timeout: opts.Timeout,
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{hc: hc, opts: opts, limiter: limiter, log: log}, nil
}

func buildTLSConfig(opts Options) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: opts.CACert == ""} //nolint:gosec // unverified by default, as the protocol tooling has always worked
	if opts.CACert != "" {
		pem, err := os.ReadFile(opts.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", opts.CACert)
		}
		cfg.RootCAs = pool
		cfg.InsecureSkipVerify = false
	}
	if opts.Cert != "" && opts.Key != "" {
		cert, err := tls.LoadX509KeyPair(opts.Cert, opts.Key)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Secure exposes whether this client dials TLS by default.
func (c *Client) Secure() bool { return c.opts.Secure() }

// HTTPClient returns the underlying transport, shared with the directory
// fetcher so both use the same TLS and timeout settings.
func (c *Client) HTTPClient() *http.Client { return c.hc }

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return wrapErr("rate limit wait", err)
	}
	return nil
}

// Request POSTs a SOAP envelope to addr and returns the parsed response
// envelope together with any MIME attachments. A fault element anywhere in
// the envelope turns into a FaultError.
func (c *Client) Request(ctx context.Context, addr, envelope string) (*xmlquery.Node, *responseDoc, error) {
	if err := c.wait(ctx); err != nil {
		return nil, nil, err
	}
	reqURL := AddURLScheme(addr, c.Secure())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(envelope))
	if err != nil {
		return nil, nil, wrapErr("build request", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, nil, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, nil, ClassifyTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &Error{Msg: fmt.Sprintf("request to %s failed: %s", reqURL, resp.Status)}
	}

	doc, err := parseResponse(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, nil, wrapErr("received incorrect SOAP response", err)
	}
	root, err := xmlquery.Parse(strings.NewReader(doc.envelope))
	if err != nil {
		return nil, nil, wrapErr("received incorrect SOAP response", err)
	}
	if fault := xmlquery.FindOne(root, "//faultstring"); fault != nil {
		return nil, nil, &FaultError{Fault: strings.TrimSpace(fault.InnerText())}
	}
	return root, doc, nil
}

// Methods performs listMethods or allowedMethods discovery against the
// producer subsystem and returns the declared services. Identifier arity
// is validated before any network traffic.
func (c *Client) Methods(ctx context.Context, addr string, client, producer []string, serviceCode string) ([]Method, error) {
	if serviceCode != ServiceListMethods && serviceCode != ServiceAllowedMethods {
		return nil, validationErrorf("unsupported discovery service %q", serviceCode)
	}
	if err := validateClient(client); err != nil {
		return nil, err
	}
	if err := validateProducer(producer); err != nil {
		return nil, err
	}

	envelope, err := buildMethodsEnvelope(client, producer, serviceCode)
	if err != nil {
		return nil, wrapErr("build envelope", err)
	}
	root, _, err := c.Request(ctx, addr, envelope)
	if err != nil {
		return nil, err
	}

	var methods []Method
	for _, svc := range xmlquery.Find(root, "//"+serviceCode+"Response/service") {
		m, err := parseServiceElement(svc)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	c.log.Debug("discovered methods",
		zap.String("producer", Identifier(producer)),
		zap.String("service", serviceCode),
		zap.Int("count", len(methods)))
	return methods, nil
}

func parseServiceElement(svc *xmlquery.Node) (Method, error) {
	var m Method
	for _, f := range []struct {
		name     string
		dst      *string
		required bool
	}{
		{"xRoadInstance", &m.XRoadInstance, true},
		{"memberClass", &m.MemberClass, true},
		{"memberCode", &m.MemberCode, true},
		{"subsystemCode", &m.SubsystemCode, false},
		{"serviceCode", &m.ServiceCode, true},
		{"serviceVersion", &m.ServiceVersion, false},
	} {
		text, ok := childText(svc, f.name)
		if !ok && f.required {
			return Method{}, &Error{Msg: fmt.Sprintf("service element missing %s", f.name)}
		}
		*f.dst = text
	}
	return m, nil
}

// childText returns the text of the first direct child element with the
// given local name.
func childText(n *xmlquery.Node, name string) (string, bool) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == name {
			return child.InnerText(), true
		}
	}
	return "", false
}

// MethodsRest is the REST analogue of Methods: it lists services via the
// r1 meta-service endpoint using the caller identity header.
func (c *Client) MethodsRest(ctx context.Context, addr string, client, producer []string, serviceCode string) ([]RESTMethod, error) {
	if serviceCode != ServiceListMethods && serviceCode != ServiceAllowedMethods {
		return nil, validationErrorf("unsupported discovery service %q", serviceCode)
	}
	if err := validateClient(client); err != nil {
		return nil, err
	}
	if err := validateProducer(producer); err != nil {
		return nil, err
	}
	clientHeader := Identifier(client)
	if memberStyle(client) {
		clientHeader = Identifier(client[:MemberParts])
	}

	reqURL, err := resolvePath(AddURLScheme(addr, c.Secure()),
		fmt.Sprintf("/%s/%s/%s", RESTVersion, Identifier(producer), serviceCode))
	if err != nil {
		return nil, wrapErr("build request URL", err)
	}
	body, err := c.restGet(ctx, reqURL, clientHeader)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Service []struct {
			XRoadInstance string `json:"xroad_instance"`
			MemberClass   string `json:"member_class"`
			MemberCode    string `json:"member_code"`
			SubsystemCode string `json:"subsystem_code"`
			ServiceCode   string `json:"service_code"`
		} `json:"service"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, wrapErr("decode method listing", err)
	}
	methods := make([]RESTMethod, 0, len(listing.Service))
	for _, svc := range listing.Service {
		methods = append(methods, RESTMethod{
			XRoadInstance: svc.XRoadInstance,
			MemberClass:   svc.MemberClass,
			MemberCode:    svc.MemberCode,
			SubsystemCode: svc.SubsystemCode,
			ServiceCode:   svc.ServiceCode,
		})
	}
	return methods, nil
}

// restGet performs an X-Road REST GET and maps error bodies onto the REST
// error taxonomy.
func (c *Client) restGet(ctx context.Context, reqURL, clientHeader string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, wrapErr("build request", err)
	}
	req.Header.Set("X-Road-Client", clientHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, ClassifyTransportError(err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 600 {
		return nil, restError(body, resp.Status)
	}
	return body, nil
}

// restError distinguishes "service is not describable" and "description
// unreadable" from generic REST failures by the error message the security
// server returns.
func restError(body []byte, status string) error {
	var errBody struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil {
		return &Error{Msg: fmt.Sprintf("request failed: %s", status)}
	}
	switch {
	case errBody.Message == "Invalid service type: REST":
		return &NotOpenAPIServiceError{Msg: "service does not have OpenAPI description"}
	case strings.HasPrefix(errBody.Message, "Failed reading service description from"):
		return &OpenAPIReadError{Msg: "failed reading service OpenAPI description"}
	default:
		return &Error{Msg: fmt.Sprintf("RestError: %s: %s", errBody.Type, errBody.Message)}
	}
}

// WSDL retrieves the WSDL document of a SOAP service via getWsdl. The
// document arrives as the XML attachment of a multipart response.
func (c *Client) WSDL(ctx context.Context, addr string, client []string, service Method) (string, error) {
	if err := validateClient(client); err != nil {
		return "", err
	}
	envelope, err := buildGetWSDLEnvelope(client, service)
	if err != nil {
		return "", wrapErr("build envelope", err)
	}
	_, doc, err := c.Request(ctx, addr, envelope)
	if err != nil {
		return "", err
	}
	wsdl, ok := doc.firstXMLAttachment()
	if !ok {
		return "", &Error{Msg: "WSDL not found"}
	}
	return string(wsdl), nil
}

// OpenAPI retrieves the raw OpenAPI description of a REST service via the
// getOpenAPI meta-service. The returned text may be JSON or YAML.
func (c *Client) OpenAPI(ctx context.Context, addr string, client []string, service RESTMethod) (string, error) {
	if err := validateClient(client); err != nil {
		return "", err
	}
	if err := validateService(service.Parts(), RESTServiceParts); err != nil {
		return "", err
	}
	clientHeader := Identifier(client)
	if memberStyle(client) {
		clientHeader = Identifier(client[:MemberParts])
	}

	producer := service.Parts()[:SubsystemParts]
	reqURL, err := resolvePath(AddURLScheme(addr, c.Secure()),
		fmt.Sprintf("/%s/%s/getOpenAPI?serviceCode=%s",
			RESTVersion, Identifier(producer), url.QueryEscape(service.ServiceCode)))
	if err != nil {
		return "", wrapErr("build request URL", err)
	}
	body, err := c.restGet(ctx, reqURL, clientHeader)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// resolvePath joins a relative reference against the base URL the way a
// browser would, replacing the base path.
func resolvePath(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// ClassifyTransportError separates timeouts from other transport failures.
func ClassifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &TimeoutError{Cause: err}
	}
	return wrapErr("request failed", err)
}
