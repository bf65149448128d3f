package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xrdtools/catalog/internal/clock"
	"github.com/xrdtools/catalog/internal/crawl"
	"github.com/xrdtools/catalog/internal/directory"
)

func sampleResults() map[string]crawl.SubsystemResult {
	healthy := crawl.SubsystemResult{
		Subsystem: subsystem("healthy"),
		Status:    crawl.StatusOK,
		Methods: map[string]crawl.MethodEntry{
			"EE/COM/12345678/healthy/getRandom/v1": {
				Status: crawl.MethodOK,
				Path:   "EE/COM/12345678/healthy/0.wsdl",
			},
			"EE/COM/12345678/healthy/slowService/v1": {Status: crawl.MethodTimeout},
			"EE/COM/12345678/healthy/restService":    {Status: crawl.MethodSkipped},
		},
	}
	broken := crawl.SubsystemResult{
		Subsystem: subsystem("broken"),
		Status:    crawl.StatusError,
		Methods:   map[string]crawl.MethodEntry{},
	}
	return map[string]crawl.SubsystemResult{
		healthy.Subsystem.String(): healthy,
		broken.Subsystem.String():  broken,
	}
}

func subsystem(code string) directory.Subsystem {
	return directory.Subsystem{
		XRoadInstance: "EE", MemberClass: "COM", MemberCode: "12345678", SubsystemCode: code,
	}
}

func TestWrite_SnapshotAndAliases(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	at := time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)
	g := NewGenerator(dir, "EE", clock.Fixed{T: at}, nil)

	snap, err := g.Write(sampleResults())
	require.NoError(t, err)
	require.Equal(t, "index_20260826103000.html", snap.HTMLFile)
	require.Equal(t, "index_20260826103000.json", snap.JSONFile)

	html, err := os.ReadFile(filepath.Join(dir, snap.HTMLFile))
	require.NoError(t, err)
	require.Contains(t, string(html), `instance "EE"`)
	require.Contains(t, string(html), "Report time: 2026-08-26 10:30:00")
	require.Contains(t, string(html), `href="EE/COM/12345678/healthy/0.wsdl"`)
	require.Contains(t, string(html), "Description query timed out")
	require.Contains(t, string(html), "skipped due to previous Timeout")
	require.Contains(t, string(html), "Error while getting list of services")

	alias, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	require.Equal(t, html, alias)

	jsonAlias, err := os.ReadFile(filepath.Join(dir, "index.json"))
	require.NoError(t, err)
	snapshot, err := os.ReadFile(filepath.Join(dir, snap.JSONFile))
	require.NoError(t, err)
	require.Equal(t, snapshot, jsonAlias)
}

func TestWrite_JSONShape(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g := NewGenerator(dir, "EE", clock.Fixed{T: time.Unix(0, 0).UTC()}, nil)
	_, err := g.Write(sampleResults())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "index.json"))
	require.NoError(t, err)

	var report []struct {
		XRoadInstance   string `json:"xRoadInstance"`
		MemberClass     string `json:"memberClass"`
		MemberCode      string `json:"memberCode"`
		SubsystemCode   string `json:"subsystemCode"`
		SubsystemStatus string `json:"subsystemStatus"`
		Methods         []struct {
			ServiceCode    string `json:"serviceCode"`
			ServiceVersion string `json:"serviceVersion"`
			MethodStatus   string `json:"methodStatus"`
			WSDL           string `json:"wsdl"`
		} `json:"methods"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report, 2)

	// Keys sort "broken" before "healthy".
	require.Equal(t, "broken", report[0].SubsystemCode)
	require.Equal(t, "ERROR", report[0].SubsystemStatus)
	require.Empty(t, report[0].Methods)

	require.Equal(t, "healthy", report[1].SubsystemCode)
	require.Equal(t, "OK", report[1].SubsystemStatus)
	require.Len(t, report[1].Methods, 3)
	require.Equal(t, "getRandom", report[1].Methods[0].ServiceCode)
	require.Equal(t, "v1", report[1].Methods[0].ServiceVersion)
	require.Equal(t, "OK", report[1].Methods[0].MethodStatus)
	require.Equal(t, "EE/COM/12345678/healthy/0.wsdl", report[1].Methods[0].WSDL)

	// REST identifiers have five parts, so the version stays empty.
	require.Equal(t, "restService", report[1].Methods[1].ServiceCode)
	require.Empty(t, report[1].Methods[1].ServiceVersion)
	require.Equal(t, "SKIPPED", report[1].Methods[1].MethodStatus)
}

func TestWrite_HistoryAccumulatesNewestFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	results := sampleResults()

	first := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	_, err := NewGenerator(dir, "EE", clock.Fixed{T: first}, nil).Write(results)
	require.NoError(t, err)

	second := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	_, err = NewGenerator(dir, "EE", clock.Fixed{T: second}, nil).Write(results)
	require.NoError(t, err)

	history, err := os.ReadFile(filepath.Join(dir, "history.html"))
	require.NoError(t, err)
	text := string(history)
	require.Contains(t, text, `<a href="index_20260825090000.html">2026-08-25 09:00:00</a>`)
	require.Contains(t, text, `<a href="index_20260826090000.html">2026-08-26 09:00:00</a>`)
	require.Less(t,
		strings.Index(text, "index_20260826090000.html"),
		strings.Index(text, "index_20260825090000.html"),
		"newest link should come first")
}

func TestWrite_UnrecognizedHistoryRestarted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.html"), []byte("<html>old junk</html>"), 0o640))

	at := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	_, err := NewGenerator(dir, "EE", clock.Fixed{T: at}, nil).Write(sampleResults())
	require.NoError(t, err)

	history, err := os.ReadFile(filepath.Join(dir, "history.html"))
	require.NoError(t, err)
	require.NotContains(t, string(history), "old junk")
	require.Contains(t, string(history), "index_20260826090000.html")
}
