// Package crawl walks every registered subsystem with a bounded worker
// pool, fetching service descriptions through the protocol client and
// writing them through the content-addressed store.
package crawl

import (
	"context"

	"github.com/xrdtools/catalog/internal/directory"
	"github.com/xrdtools/catalog/internal/xroad"
)

// Status is the final state of one crawled subsystem.
type Status string

// Subsystem statuses recorded in the result map.
const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// MethodStatus is the per-method outcome recorded in a subsystem's index.
type MethodStatus string

// Method statuses. A stored method carries the document's relative path
// instead of a sentinel.
const (
	MethodOK      MethodStatus = "OK"
	MethodSkipped MethodStatus = "SKIPPED"
	MethodTimeout MethodStatus = "TIMEOUT"
	MethodError   MethodStatus = "ERROR"
)

// MethodEntry is one row of a subsystem's method index.
type MethodEntry struct {
	Status MethodStatus
	// Path is the stored document location relative to the output
	// directory, set only when Status is MethodOK.
	Path string
}

// SubsystemResult is the outcome of crawling one subsystem.
type SubsystemResult struct {
	Subsystem directory.Subsystem
	Status    Status
	// Methods maps the full percent-encoded method identifier to its
	// entry.
	Methods map[string]MethodEntry
}

// Client is the protocol surface the crawler needs. *xroad.Client
// implements it; tests substitute fakes.
type Client interface {
	Methods(ctx context.Context, addr string, client, producer []string, serviceCode string) ([]xroad.Method, error)
	MethodsRest(ctx context.Context, addr string, client, producer []string, serviceCode string) ([]xroad.RESTMethod, error)
	WSDL(ctx context.Context, addr string, client []string, service xroad.Method) (string, error)
	OpenAPI(ctx context.Context, addr string, client []string, service xroad.RESTMethod) (string, error)
}
