package normalize

import (
	"net/url"
	"strings"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

// nearDupThreshold is the stemmed-title Jaccard similarity at or above
// which two items are treated as the same story.
const nearDupThreshold = 0.85

// CanonicalURL reduces a URL to its identity form: lowercase scheme and
// host, no www. prefix, no fragment, no tracking parameters, no trailing
// slash. Unparseable input falls back to a trimmed lowercase comparison.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		if strings.HasPrefix(lower, "utm_") || lower == "gclid" || lower == "fbclid" || lower == "ref" {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// Dedupe removes exact canonical-URL duplicates and near-duplicate titles.
// Items must already be ordered best-first; the first occurrence survives.
func Dedupe(items []models.ResultItem) []models.ResultItem {
	seen := make(map[string]struct{}, len(items))
	kept := make([]models.ResultItem, 0, len(items))
	keptTitles := make([][]string, 0, len(items))

	for _, item := range items {
		key := CanonicalURL(item.URL)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
		}
		titleTerms := tokenize(item.Title)
		if nearDuplicate(titleTerms, keptTitles) {
			continue
		}
		if key != "" {
			seen[key] = struct{}{}
		}
		kept = append(kept, item)
		keptTitles = append(keptTitles, titleTerms)
	}
	return kept
}

func nearDuplicate(terms []string, kept [][]string) bool {
	for _, other := range kept {
		if jaccard(terms, other) >= nearDupThreshold {
			return true
		}
	}
	return false
}

// jaccard computes set similarity over two term lists.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
