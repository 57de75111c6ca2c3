package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	"github.com/mmcdole/gofeed"
)

var _ contracts.Provider = (*RSSNews)(nil)

// RSSNews searches the Google News RSS feed. Free and keyless; headlines
// arrive with publisher attribution and publication timestamps.
type RSSNews struct {
	BaseURL string
	parser  *gofeed.Parser
}

func NewRSSNews() *RSSNews {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &RSSNews{
		BaseURL: "https://news.google.com",
		parser:  parser,
	}
}

func (p *RSSNews) Name() string                  { return "rssnews" }
func (p *RSSNews) Capability() models.Capability { return models.CapabilityNews }
func (p *RSSNews) Available() bool               { return true }

func (p *RSSNews) Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error) {
	feedURL := fmt.Sprintf("%s/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en",
		p.BaseURL, url.QueryEscape(query))

	feed, err := p.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching news feed: %w", err)
	}

	items := make([]models.ResultItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if maxResults > 0 && len(items) >= maxResults {
			break
		}
		title := strings.TrimSpace(entry.Title)
		if title == "" || entry.Link == "" {
			continue
		}
		items = append(items, models.ResultItem{
			Title:     title,
			URL:       entry.Link,
			Snippet:   truncate(stripHTML(entry.Description), 280),
			Score:     0.8,
			Provider:  p.Name(),
			Published: entry.PublishedParsed,
		})
	}
	return items, nil
}
