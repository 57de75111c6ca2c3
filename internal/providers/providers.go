// Package providers holds the concrete fetch adapters behind the
// contracts.Provider interface: search (duckduckgo, htmlsearch, brave),
// financial quotes (stooq, alphavantage) and news (rssnews, newsapi).
//
// Adapters do exactly one network call per Fetch, return errors instead of
// retrying, and translate provider payloads into raw result items; the
// normalizer re-scores and deduplicates downstream. Adapters whose API key
// is missing report Available() false and are skipped by the router.
// Every BaseURL is overridable so tests can point adapters at httptest
// servers.
package providers

import (
	"html"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const userAgent = "research-fetch/1.0"

func newClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// stripHTML drops tags, unescapes entities and collapses whitespace.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}

// truncate caps s at max runes, cutting on the last space when one is
// close enough.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}
