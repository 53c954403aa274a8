// Package crawler runs a single harvesting session: it seeds the frontier,
// then repeatedly dequeues a URL, clears it with the politeness gate,
// fetches it through the right tier and either archives the document or
// explores the page for more links.
package crawler
