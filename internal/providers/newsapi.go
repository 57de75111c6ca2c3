package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

var _ contracts.Provider = (*NewsAPI)(nil)

// NewsAPI queries newsapi.org's everything endpoint, sorted by relevancy.
// Keyed; the free tier allows 100 requests/day, enforced here as a daily
// quota rather than a price.
type NewsAPI struct {
	BaseURL string
	apiKey  string
	client  *http.Client
}

func NewNewsAPI(apiKey string) *NewsAPI {
	return &NewsAPI{
		BaseURL: "https://newsapi.org",
		apiKey:  apiKey,
		client:  newClient(),
	}
}

func (p *NewsAPI) Name() string                  { return "newsapi" }
func (p *NewsAPI) Capability() models.Capability { return models.CapabilityNews }
func (p *NewsAPI) Available() bool               { return p.apiKey != "" }

type newsAPIResponse struct {
	Status   string `json:"status"` // "ok" or "error"
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (p *NewsAPI) Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error) {
	endpoint := fmt.Sprintf("%s/v2/everything?q=%s&pageSize=%d&sortBy=relevancy&language=en",
		p.BaseURL, url.QueryEscape(query), maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building newsapi request: %w", err)
	}
	req.Header.Set("X-Api-Key", p.apiKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling newsapi: %w", err)
	}
	defer resp.Body.Close()

	var payload newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("newsapi returned status %d with unreadable body", resp.StatusCode)
	}
	// Errors come as JSON documents with machine-readable codes, on 4xx
	// and sometimes on 200.
	if payload.Status != "ok" {
		return nil, fmt.Errorf("newsapi error %s: %s", payload.Code, payload.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi returned status %d", resp.StatusCode)
	}

	items := make([]models.ResultItem, 0, len(payload.Articles))
	for _, article := range payload.Articles {
		if maxResults > 0 && len(items) >= maxResults {
			break
		}
		if article.Title == "" || article.URL == "" {
			continue
		}
		item := models.ResultItem{
			Title:    article.Title,
			URL:      article.URL,
			Snippet:  truncate(stripHTML(article.Description), 280),
			Score:    0.9,
			Provider: p.Name(),
		}
		if !article.PublishedAt.IsZero() {
			published := article.PublishedAt
			item.Published = &published
		}
		if article.Source.Name != "" {
			item.Snippet = fmt.Sprintf("%s: %s", article.Source.Name, item.Snippet)
		}
		items = append(items, item)
	}
	return items, nil
}
