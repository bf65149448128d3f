package xroad

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// attachment is one non-envelope MIME part of a response.
type attachment struct {
	mediaType string
	data      []byte
}

// responseDoc is an X-Road response split into the SOAP envelope and any
// trailing attachments.
type responseDoc struct {
	envelope    string
	attachments []attachment
}

// parseResponse splits a response body into envelope and attachments. For
// multipart responses the first text/xml part is the envelope and the rest
// are attachments, each decoded by a real MIME parser so boundary and
// line-ending variations are handled by grammar, not pattern matching.
// Non-multipart bodies fall back to a bounded envelope scan.
func parseResponse(contentType string, body []byte) (*responseDoc, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart response without boundary")
		}
		return parseMultipart(boundary, body)
	}

	env, err := scanEnvelope(body)
	if err != nil {
		return nil, err
	}
	return &responseDoc{envelope: env}, nil
}

func parseMultipart(boundary string, body []byte) (*responseDoc, error) {
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	doc := &responseDoc{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart response: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("read multipart part: %w", err)
		}
		mediaType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if doc.envelope == "" && isXMLMediaType(mediaType) {
			doc.envelope = string(data)
			continue
		}
		doc.attachments = append(doc.attachments, attachment{mediaType: mediaType, data: data})
	}
	if doc.envelope == "" {
		return nil, fmt.Errorf("multipart response without SOAP envelope part")
	}
	return doc, nil
}

func isXMLMediaType(mediaType string) bool {
	return mediaType == "text/xml" || mediaType == "application/xml" ||
		strings.HasSuffix(mediaType, "+xml")
}

// scanEnvelope locates the SOAP envelope in a raw body by its start and
// end tags. Some gateways return the envelope with surrounding noise and
// a plain content type, so the scan is bounded to the outermost envelope.
func scanEnvelope(body []byte) (string, error) {
	start := bytes.Index(body, []byte("<SOAP-ENV:Envelope"))
	if start < 0 {
		start = bytes.Index(body, []byte("<soap:Envelope"))
	}
	if start < 0 {
		return "", fmt.Errorf("SOAP envelope not found in response")
	}
	for _, closing := range []string{"</SOAP-ENV:Envelope>", "</soap:Envelope>"} {
		if end := bytes.LastIndex(body, []byte(closing)); end > start {
			return string(body[start : end+len(closing)]), nil
		}
	}
	return "", fmt.Errorf("SOAP envelope not terminated in response")
}

// firstXMLAttachment returns the first attachment carrying an XML media
// type. getWsdl responses put the WSDL document in the text/xml part that
// follows the envelope.
func (d *responseDoc) firstXMLAttachment() ([]byte, bool) {
	for _, a := range d.attachments {
		if isXMLMediaType(a.mediaType) {
			return a.data, true
		}
	}
	return nil, false
}
