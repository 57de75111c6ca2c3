// Package normalize turns raw provider results into the ranked, deduplicated
// list callers receive. Scoring blends three signals: source authority from
// a static domain-tier table, stemmed term overlap between the query and the
// result text, and a smooth positional decay preserving the provider's own
// ordering as a weak prior.
package normalize

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	"github.com/kljensen/snowball"
)

const (
	weightAuthority  = 0.45
	weightOverlap    = 0.35
	weightPositional = 0.20

	// positionalDecay is the exponent factor applied to the original rank;
	// rank 0 scores 1.0, rank 10 about 0.22. No hard cutoff.
	positionalDecay = 0.15

	authorityUnknown = 0.55
)

// domainAuthority maps source domains onto the tier weights used for
// company research: regulatory above wire services above general press
// above social platforms. Subdomains inherit the registered domain's
// weight.
var domainAuthority = map[string]float64{
	// government / regulatory
	"sec.gov":            1.0,
	"federalreserve.gov": 1.0,
	"europa.eu":          1.0,

	// financial wire / major business press
	"reuters.com":   0.9,
	"bloomberg.com": 0.9,
	"ft.com":        0.9,
	"wsj.com":       0.9,
	"apnews.com":    0.9,
	"economist.com": 0.9,
	"nikkei.com":    0.9,

	// general news
	"nytimes.com":         0.8,
	"theguardian.com":     0.8,
	"bbc.com":             0.8,
	"bbc.co.uk":           0.8,
	"cnn.com":             0.8,
	"cnbc.com":            0.8,
	"forbes.com":          0.8,
	"fortune.com":         0.8,
	"businessinsider.com": 0.8,
	"marketwatch.com":     0.8,
	"techcrunch.com":      0.8,
	"theverge.com":        0.8,
	"wired.com":           0.8,
	"axios.com":           0.8,

	// blog / social platforms
	"medium.com":    0.45,
	"substack.com":  0.45,
	"reddit.com":    0.45,
	"x.com":         0.45,
	"twitter.com":   0.45,
	"facebook.com":  0.45,
	"linkedin.com":  0.45,
	"youtube.com":   0.45,
	"tiktok.com":    0.45,
	"quora.com":     0.45,
	"blogspot.com":  0.45,
	"wordpress.com": 0.45,
	"tumblr.com":    0.45,
}

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "again": {}, "all": {}, "also": {},
	"an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"because": {}, "been": {}, "before": {}, "between": {}, "but": {},
	"by": {}, "can": {}, "could": {}, "did": {}, "do": {}, "does": {},
	"for": {}, "from": {}, "had": {}, "has": {}, "have": {}, "he": {},
	"her": {}, "his": {}, "how": {}, "if": {}, "in": {}, "into": {},
	"is": {}, "it": {}, "its": {}, "just": {}, "more": {}, "most": {},
	"no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "other": {},
	"over": {}, "she": {}, "should": {}, "some": {}, "such": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "those": {}, "to": {}, "too": {},
	"under": {}, "very": {}, "was": {}, "we": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "will": {}, "with": {},
	"would": {}, "you": {}, "your": {},
}

// Scorer scores result items against one query. Query terms are stemmed
// once at construction.
type Scorer struct {
	queryTerms map[string]struct{}
}

// NewScorer prepares a scorer for the given query.
func NewScorer(query string) *Scorer {
	terms := make(map[string]struct{})
	for _, t := range tokenize(query) {
		terms[t] = struct{}{}
	}
	return &Scorer{queryTerms: terms}
}

// Score returns the calibrated relevance of item at its original rank,
// clamped to [0, 1].
func (s *Scorer) Score(item models.ResultItem, position int) float64 {
	authority := Authority(item.URL)
	overlap := s.overlap(item)
	positional := math.Exp(-positionalDecay * float64(position))

	score := weightAuthority*authority + weightOverlap*overlap + weightPositional*positional
	return clamp01(score)
}

// overlap measures how much of the query the result text covers, on the
// stemmed stopword-filtered term sets.
func (s *Scorer) overlap(item models.ResultItem) float64 {
	if len(s.queryTerms) == 0 {
		return 0
	}
	itemTerms := make(map[string]struct{})
	for _, t := range tokenize(item.Title + " " + item.Snippet) {
		itemTerms[t] = struct{}{}
	}
	matched := 0
	for t := range s.queryTerms {
		if _, ok := itemTerms[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(s.queryTerms))
}

// Authority returns the domain-tier weight of a result URL. Hosts not in
// the table fall back to TLD rules, then to the unknown-source weight.
func Authority(rawURL string) float64 {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return authorityUnknown
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	for domain, weight := range domainAuthority {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return weight
		}
	}
	switch {
	case strings.HasSuffix(host, ".gov"), strings.HasSuffix(host, ".mil"):
		return 1.0
	case strings.HasSuffix(host, ".edu"):
		return 0.85
	case strings.HasSuffix(host, ".org"):
		return 0.70
	}
	return authorityUnknown
}

// Normalize scores items against the query, orders them best-first,
// removes duplicates and truncates to limit. The input slice is not
// modified.
func Normalize(query string, items []models.ResultItem, limit int) []models.ResultItem {
	scored := make([]models.ResultItem, len(items))
	copy(scored, items)

	scorer := NewScorer(query)
	for i := range scored {
		scored[i].Score = scorer.Score(scored[i], i)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	deduped := Dedupe(scored)
	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}

// tokenize lowercases, splits on non-alphanumerics, drops stopwords and
// single runes, and stems what remains.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		stemmed, err := snowball.Stem(f, "english", true)
		if err != nil || stemmed == "" {
			stemmed = f
		}
		out = append(out, stemmed)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
