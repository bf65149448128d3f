package xroad

import (
	"strings"

	"github.com/antchfx/xmlquery"
)

// WSDLOperation is one operation declared by a WSDL binding. Version is
// empty when the binding carries no X-Road version element.
type WSDLOperation struct {
	Name    string
	Version string
}

// WSDLOperations lists the operations described by a WSDL document. One
// document commonly describes several operations and versions.
func WSDLOperations(doc string) ([]WSDLOperation, error) {
	root, err := xmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, wrapErr("parse WSDL", err)
	}
	var ops []WSDLOperation
	for _, op := range xmlquery.Find(root, "//binding/operation") {
		name := op.SelectAttr("name")
		if name == "" {
			continue
		}
		version := ""
		if v := xmlquery.FindOne(op, "version"); v != nil {
			version = v.InnerText()
		}
		ops = append(ops, WSDLOperation{Name: name, Version: version})
	}
	return ops, nil
}
