package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	"golang.org/x/net/html"
)

var _ contracts.Provider = (*HTMLSearch)(nil)

// browserAgent avoids the bot interstitial the HTML endpoint serves to
// obvious non-browser clients.
const browserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// HTMLSearch scrapes the DuckDuckGo HTML endpoint for organic web results.
// Lowest search quality but keyless and a real result list, which the
// instant-answer API often is not.
type HTMLSearch struct {
	BaseURL string
	client  *http.Client
}

func NewHTMLSearch() *HTMLSearch {
	return &HTMLSearch{
		BaseURL: "https://html.duckduckgo.com",
		client:  newClient(),
	}
}

func (p *HTMLSearch) Name() string                  { return "htmlsearch" }
func (p *HTMLSearch) Capability() models.Capability { return models.CapabilitySearch }
func (p *HTMLSearch) Available() bool               { return true }

func (p *HTMLSearch) Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error) {
	endpoint := fmt.Sprintf("%s/html/?q=%s", p.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building html search request: %w", err)
	}
	req.Header.Set("User-Agent", browserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling html search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("html search returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing html search response: %w", err)
	}
	return p.parseResults(doc, maxResults), nil
}

// parseResults walks the document collecting result blocks. An empty list
// is a valid outcome (no hits), not an error.
func (p *HTMLSearch) parseResults(doc *html.Node, max int) []models.ResultItem {
	var items []models.ResultItem
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if max > 0 && len(items) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if !hasClass(n, "result--ad") {
				if item, ok := p.extractResult(n); ok {
					items = append(items, item)
				}
			}
			return // results never nest
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return items
}

func (p *HTMLSearch) extractResult(n *html.Node) (models.ResultItem, bool) {
	var item models.ResultItem
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.ElementNode {
			if c.Data == "a" && hasClass(c, "result__a") && item.URL == "" {
				item.Title = textContent(c)
				item.URL = resolveRedirect(attrValue(c, "href"))
			}
			if hasClass(c, "result__snippet") && item.Snippet == "" {
				item.Snippet = textContent(c)
			}
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)

	if item.URL == "" || item.Title == "" {
		return item, false
	}
	item.Provider = p.Name()
	item.Score = 0.5
	return item, true
}

// resolveRedirect unwraps the /l/?uddg=<target> indirection the HTML
// endpoint puts on every organic link.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && u.Host != "" {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
