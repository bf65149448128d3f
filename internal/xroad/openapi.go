package xroad

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Endpoint is one operation extracted from an OpenAPI description.
type Endpoint struct {
	Verb        string `json:"verb"`
	Path        string `json:"path"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

var openAPIVerbs = map[string]struct{}{
	"get": {}, "put": {}, "post": {}, "delete": {},
	"options": {}, "head": {}, "patch": {}, "trace": {},
}

// loadOpenAPI decodes an OpenAPI description. JSON is tried first because
// YAML is a superset of JSON.
func loadOpenAPI(doc string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(doc), &data); err == nil {
		return data, nil
	}
	if err := yaml.Unmarshal([]byte(doc), &data); err != nil {
		return nil, wrapErr("cannot parse OpenAPI description", err)
	}
	if data == nil {
		return nil, &Error{Msg: "cannot parse OpenAPI description"}
	}
	return data, nil
}

// OpenAPIEndpoints extracts the endpoints of an OpenAPI description. A
// description with no extractable endpoints is treated as unusable, not as
// empty but valid.
func OpenAPIEndpoints(doc string) ([]Endpoint, error) {
	data, err := loadOpenAPI(doc)
	if err != nil {
		return nil, err
	}
	paths, ok := data["paths"].(map[string]any)
	if !ok {
		return nil, &Error{Msg: "endpoints not found"}
	}

	var endpoints []Endpoint
	for path, rawOps := range paths {
		ops, ok := rawOps.(map[string]any)
		if !ok {
			continue
		}
		for verb, rawOp := range ops {
			if _, known := openAPIVerbs[verb]; !known {
				continue
			}
			ep := Endpoint{Verb: verb, Path: path}
			if op, ok := rawOp.(map[string]any); ok {
				ep.Summary, _ = op["summary"].(string)
				ep.Description, _ = op["description"].(string)
			}
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return nil, &Error{Msg: "endpoints not found"}
	}
	return endpoints, nil
}
