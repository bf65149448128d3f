package directory

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xrdtools/catalog/internal/xroad"
)

const sharedParams = `<?xml version="1.0"?>
<conf>
    <instanceIdentifier>EE</instanceIdentifier>
</conf>`

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	client, err := xroad.NewClient(xroad.Options{Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	return NewFetcher(client, nil)
}

func verificationConfZip(t *testing.T, instance string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("verificationconf/instance-identifier")
	require.NoError(t, err)
	_, err = w.Write([]byte(instance + "\n"))
	require.NoError(t, err)
	w, err = zw.Create(fmt.Sprintf("verificationconf/%s/shared-params.xml", instance))
	require.NoError(t, err)
	_, err = w.Write([]byte(sharedParams))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFromSecurityServer(t *testing.T) {
	t.Parallel()

	archive := verificationConfZip(t, "EE")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verificationconf", r.URL.Path)
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	doc, err := f.FromSecurityServer(context.Background(), srv.URL, "")
	require.NoError(t, err)
	require.Equal(t, sharedParams, doc)

	// An explicit instance skips the instance-identifier lookup.
	doc, err = f.FromSecurityServer(context.Background(), srv.URL, "EE")
	require.NoError(t, err)
	require.Equal(t, sharedParams, doc)
}

func TestFromSecurityServer_WrongInstance(t *testing.T) {
	t.Parallel()

	archive := verificationConfZip(t, "EE")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FromSecurityServer(context.Background(), srv.URL, "XX")
	require.Error(t, err)
}

func TestFromCentralServer(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/internalconf", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "Content-Type: multipart/mixed\r\n\r\n"+
			"Content-type: application/octet-stream\r\n"+
			"Content-location: /v2/ABCDEF/shared-params.xml\r\n"+
			"Hash-algorithm-id: http://www.w3.org/2001/04/xmlenc#sha256\r\n")
	})
	mux.HandleFunc("/v2/ABCDEF/shared-params.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, sharedParams)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t)
	doc, err := f.FromCentralServer(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, sharedParams, doc)
}

func TestFromCentralServer_NoLocationMarker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "Content-location: /nothing/useful.txt\r\n")
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FromCentralServer(context.Background(), srv.URL)
	require.ErrorContains(t, err, "location not found")
}
