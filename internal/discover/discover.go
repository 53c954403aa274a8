// Package discover extracts follow-up URLs from fetched HTML.
package discover

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Scope decides which discovered links are in bounds.
type Scope interface {
	AllowsURL(rawURL string) bool
}

// documentMarkers flag a reference as an embedded document.
var documentMarkers = []string{".pdf", ".xml"}

// embedSources are the element/attribute pairs scanned for embedded documents.
var embedSources = []struct{ selector, attr string }{
	{"iframe[src]", "src"},
	{"object[data]", "data"},
	{"object[src]", "src"},
	{"embed[src]", "src"},
	{"source[src]", "src"},
	{"a[href]", "href"},
}

// Parse reads body as HTML.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// BaseURL returns the URL relative references resolve against: the page's
// <base href> when present, otherwise pageURL.
func BaseURL(doc *goquery.Document, pageURL string) (*url.URL, error) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if base, err := page.Parse(strings.TrimSpace(href)); err == nil {
			return base, nil
		}
	}
	return page, nil
}

// Links returns anchor targets resolved against base, restricted to http(s)
// URLs in scope, deduplicated in document order. A nil scope keeps every
// http(s) link.
func Links(doc *goquery.Document, base *url.URL, scope Scope) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		target, ok := resolve(base, href)
		if !ok {
			return
		}
		if scope != nil && !scope.AllowsURL(target) {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		links = append(links, target)
	})
	return links
}

// EmbeddedDocuments returns references to PDF or XML resources from iframe,
// object, embed, source and anchor elements, without any domain scoping.
func EmbeddedDocuments(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var docs []string
	for _, src := range embedSources {
		doc.Find(src.selector).Each(func(_ int, s *goquery.Selection) {
			ref, _ := s.Attr(src.attr)
			if !looksLikeDocument(ref) {
				return
			}
			target, ok := resolve(base, ref)
			if !ok {
				return
			}
			if _, dup := seen[target]; dup {
				return
			}
			seen[target] = struct{}{}
			docs = append(docs, target)
		})
	}
	return docs
}

func looksLikeDocument(ref string) bool {
	lower := strings.ToLower(ref)
	for _, marker := range documentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
