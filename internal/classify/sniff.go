// Package classify inspects fetched bytes: signature sniffing, PDF
// inspection and the accept/reject decision for archiving.
package classify

import (
	"bytes"
	"mime"
	"strings"
)

// Kind is a content family detected from leading bytes.
type Kind string

// Detected kinds.
const (
	KindPDF     Kind = "pdf"
	KindXML     Kind = "xml"
	KindHTML    Kind = "html"
	KindUnknown Kind = "unknown"
)

// htmlProbeWindow bounds the scan for an upper-case HTML tag.
const htmlProbeWindow = 100

// SniffType classifies b by its signature, ignoring any declared type.
func SniffType(b []byte) Kind {
	switch {
	case bytes.HasPrefix(b, []byte("%PDF-")):
		return KindPDF
	case bytes.HasPrefix(b, []byte("<?xml")), bytes.HasPrefix(b, []byte("<xml")):
		return KindXML
	case bytes.HasPrefix(b, []byte("<html")):
		return KindHTML
	}
	window := b
	if len(window) > htmlProbeWindow {
		window = window[:htmlProbeWindow]
	}
	if bytes.Contains(window, []byte("<HTML")) {
		return KindHTML
	}
	return KindUnknown
}

// SupportedTypes are the declared media types eligible for archiving.
var SupportedTypes = map[string]struct{}{
	"application/pdf": {},
	"text/xml":        {},
	"application/xml": {},
	"text/html":       {},
}

// MediaType lower-cases declared and strips its parameters.
func MediaType(declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mt, _, _ = strings.Cut(declared, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsSupportedType reports whether the declared content type may be archived.
func IsSupportedType(declared string) bool {
	_, ok := SupportedTypes[MediaType(declared)]
	return ok
}

// CopyrightMarkers are matched case-insensitively against extracted text.
var CopyrightMarkers = []string{"copyright", "©", "all rights reserved"}

// ContainsCopyright reports whether text carries any copyright marker.
func ContainsCopyright(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range CopyrightMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
