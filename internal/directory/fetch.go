// Package directory retrieves and queries the X-Road directory document
// (shared-params.xml): the signed listing of members, subsystems and
// security servers for one protocol instance.
package directory

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xrdtools/catalog/internal/xroad"
)

// Archive entry names inside the verification configuration package.
const (
	verificationConfPath = "/verificationconf"
	internalConfPath     = "/internalconf"
	instanceEntry        = "verificationconf/instance-identifier"
)

// fetchBodyLimit caps the configuration download size.
const fetchBodyLimit = 256 << 20

// contentLocationRe extracts the relative location of the directory
// document from an internalconf listing. The configuration proxy emits the
// header name in lowercase.
var contentLocationRe = regexp.MustCompile(`(?i)Content-location: (/.+/shared-params\.xml)`)

// Fetcher downloads the directory document from a security server or,
// unverified, from a central server / configuration proxy.
type Fetcher struct {
	hc     *http.Client
	secure bool
	log    *zap.Logger
}

// NewFetcher builds a Fetcher sharing the protocol client's transport so
// TLS settings and timeouts stay consistent.
func NewFetcher(client *xroad.Client, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{hc: client.HTTPClient(), secure: client.Secure(), log: log}
}

// FromSecurityServer downloads the verification configuration archive from
// a security server and returns the directory document. When instance is
// empty the archive's instance-identifier entry names the local instance.
func (f *Fetcher) FromSecurityServer(ctx context.Context, addr, instance string) (string, error) {
	confURL, err := defaultPath(xroad.AddURLScheme(addr, f.secure), verificationConfPath)
	if err != nil {
		return "", fmt.Errorf("resolve configuration URL: %w", err)
	}
	body, err := f.get(ctx, confURL)
	if err != nil {
		return "", err
	}

	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open configuration archive: %w", err)
	}
	if instance == "" {
		data, err := readArchiveEntry(archive, instanceEntry)
		if err != nil {
			return "", err
		}
		instance = strings.TrimSpace(string(data))
		f.log.Debug("resolved local instance", zap.String("instance", instance))
	}
	data, err := readArchiveEntry(archive, fmt.Sprintf("verificationconf/%s/shared-params.xml", instance))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromCentralServer downloads the directory document from a central server
// or configuration proxy. This path is not signature-verified; prefer
// FromSecurityServer whenever possible.
func (f *Fetcher) FromCentralServer(ctx context.Context, addr string) (string, error) {
	confURL, err := defaultPath(xroad.AddURLScheme(addr, f.secure), internalConfPath)
	if err != nil {
		return "", fmt.Errorf("resolve configuration URL: %w", err)
	}
	listing, err := f.get(ctx, confURL)
	if err != nil {
		return "", err
	}
	match := contentLocationRe.FindSubmatch(listing)
	if match == nil {
		return "", fmt.Errorf("directory document location not found in %s", confURL)
	}

	base, err := url.Parse(confURL)
	if err != nil {
		return "", fmt.Errorf("parse configuration URL: %w", err)
	}
	ref, err := url.Parse(string(match[1]))
	if err != nil {
		return "", fmt.Errorf("parse document location: %w", err)
	}
	f.log.Warn("fetching unverified directory document from central server",
		zap.String("url", base.ResolveReference(ref).String()))

	doc, err := f.get(ctx, base.ResolveReference(ref).String())
	if err != nil {
		return "", err
	}
	return string(doc), nil
}

func (f *Fetcher) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.hc.Do(req)
	if err != nil {
		return nil, xroad.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return nil, xroad.ClassifyTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: %s", reqURL, resp.Status)
	}
	return body, nil
}

// defaultPath appends the well-known path when the address has none.
func defaultPath(addr, wellKnown string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	switch u.Path {
	case "":
		u.Path = wellKnown
	case "/":
		u.Path = wellKnown
	}
	return u.String(), nil
}

func readArchiveEntry(archive *zip.Reader, name string) ([]byte, error) {
	entry, err := archive.Open(name)
	if err != nil {
		return nil, fmt.Errorf("configuration archive entry %s: %w", name, err)
	}
	defer entry.Close()
	data, err := io.ReadAll(entry)
	if err != nil {
		return nil, fmt.Errorf("read archive entry %s: %w", name, err)
	}
	return data, nil
}
