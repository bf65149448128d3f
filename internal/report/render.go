package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/xrdtools/catalog/internal/crawl"
)

const reportTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>All subsystems with methods and service descriptions for instance "{{.Instance}}"</title>
  <link rel="stylesheet"
    href="https://maxcdn.bootstrapcdn.com/bootstrap/4.0.0/css/bootstrap.min.css">
  <script src="https://ajax.googleapis.com/ajax/libs/jquery/3.3.1/jquery.min.js"></script>
  <script src="https://cdnjs.cloudflare.com/ajax/libs/popper.js/1.12.9/umd/popper.min.js"></script>
  <script src="https://maxcdn.bootstrapcdn.com/bootstrap/4.0.0/js/bootstrap.min.js"></script>
</head>
<body>
<div class="container">
<h1>All subsystems with methods and service descriptions for instance "{{.Instance}}"</h1>
<p>Report time: {{.ReportTime}}</p>
<p><a href="history.html">History</a></p>
<p>Latest data in <a href="index.json">JSON</a> form.</p>
<p>This report in <a href="index_{{.Suffix}}.json">JSON</a> form.</p>
<p>NB! Expanding all subsystems is slow operation.</p>
<button type="button" class="btn" onClick="$('#accordion .collapse').collapse('show');">
Expand all subsystems
</button>
<button type="button" class="btn" onClick="$('#accordion .collapse').collapse('hide');">
Collapse all subsystems
</button>
<div id="accordion">
{{- range .Subsystems}}
<div class="card">
<div class="card-header">
<a class="card-link" data-toggle="collapse" href="#collapse{{.Nr}}">
{{.Key}}{{if eq .Status "empty"}} <span class="badge badge-secondary">Empty</span>{{else if eq .Status "error"}} <span class="badge badge-danger">Error</span>{{end}}
</a>
</div>
<div id="collapse{{.Nr}}" class="collapse">
<div class="card-body">
{{- if eq .Status "empty"}}
<p>No services found</p>
{{- else if eq .Status "error"}}
<p>Error while getting list of services</p>
{{- end}}
{{- range .Methods}}
{{- if eq .Status "SKIPPED"}}
<p>{{.Key}} <span class="badge badge-warning">Description skipped due to previous Timeout</span></p>
{{- else if eq .Status "TIMEOUT"}}
<p>{{.Key}} <span class="badge badge-danger">Description query timed out</span></p>
{{- else if eq .Status "OK"}}
<p>{{.Key}}: <a href="{{.Path}}" class="badge badge-success">Description</a></p>
{{- else}}
<p>{{.Key}} <span class="badge badge-danger">Error while downloading or parsing of description</span></p>
{{- end}}
{{- end}}
</div>
</div>
</div>
{{- end}}
</div>
</div>
</body>
</html>
`

const historyTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>History</title>
<link rel="stylesheet"
  href="https://maxcdn.bootstrapcdn.com/bootstrap/4.0.0/css/bootstrap.min.css">
</head>
<body>
<div class="container">
<h1>History</h1>
{{.Item}}
</div>
</body>
</html>
`

var (
	reportTmpl  = template.Must(template.New("report").Parse(reportTemplate))
	historyTmpl = template.Must(template.New("history").Parse(historyTemplate))
)

type methodView struct {
	Key    string
	Status crawl.MethodStatus
	Path   string
}

type subsystemView struct {
	Nr      int
	Key     string
	Status  crawl.Status
	Methods []methodView
}

type reportView struct {
	Instance   string
	ReportTime string
	Suffix     string
	Subsystems []subsystemView
}

func renderHTML(instance, reportTime, suffix string, results map[string]crawl.SubsystemResult) ([]byte, error) {
	view := reportView{Instance: instance, ReportTime: reportTime, Suffix: suffix}
	for nr, key := range sortedKeys(results) {
		res := results[key]
		sub := subsystemView{Nr: nr + 1, Key: key, Status: res.Status}
		for _, methodKey := range sortedKeys(res.Methods) {
			entry := res.Methods[methodKey]
			sub.Methods = append(sub.Methods, methodView{
				Key:    methodKey,
				Status: entry.Status,
				Path:   entry.Path,
			})
		}
		view.Subsystems = append(view.Subsystems, sub)
	}
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderHistory(item string) ([]byte, error) {
	var buf bytes.Buffer
	err := historyTmpl.Execute(&buf, struct{ Item template.HTML }{template.HTML(item)}) //nolint:gosec // item is generated locally
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// subsystemJSON mirrors the structure consumed by downstream report users.
type subsystemJSON struct {
	XRoadInstance   string       `json:"xRoadInstance"`
	MemberClass     string       `json:"memberClass"`
	MemberCode      string       `json:"memberCode"`
	SubsystemCode   string       `json:"subsystemCode"`
	SubsystemStatus string       `json:"subsystemStatus"`
	Methods         []methodJSON `json:"methods"`
}

type methodJSON struct {
	ServiceCode    string `json:"serviceCode"`
	ServiceVersion string `json:"serviceVersion"`
	MethodStatus   string `json:"methodStatus"`
	WSDL           string `json:"wsdl"`
}

func renderJSON(results map[string]crawl.SubsystemResult) ([]byte, error) {
	out := make([]subsystemJSON, 0, len(results))
	for _, key := range sortedKeys(results) {
		res := results[key]
		status := "OK"
		if res.Status == crawl.StatusError {
			status = "ERROR"
		}
		sub := subsystemJSON{
			XRoadInstance:   res.Subsystem.XRoadInstance,
			MemberClass:     res.Subsystem.MemberClass,
			MemberCode:      res.Subsystem.MemberCode,
			SubsystemCode:   res.Subsystem.SubsystemCode,
			SubsystemStatus: status,
			Methods:         []methodJSON{},
		}
		for _, methodKey := range sortedKeys(res.Methods) {
			entry := res.Methods[methodKey]
			m := methodJSON{MethodStatus: string(entry.Status), WSDL: entry.Path}
			if parts := methodParts(methodKey); len(parts) >= 5 {
				m.ServiceCode = parts[4]
				if len(parts) >= 6 {
					m.ServiceVersion = parts[5]
				}
			}
			sub.Methods = append(sub.Methods, m)
		}
		out = append(out, sub)
	}
	doc, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return doc, nil
}
