package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

var _ contracts.Provider = (*DuckDuckGo)(nil)

// DuckDuckGo queries the keyless instant-answer API. Strong on entity
// questions (companies, people, definitions); returns an abstract plus
// related topics rather than a full web result list.
type DuckDuckGo struct {
	BaseURL string
	client  *http.Client
}

func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		BaseURL: "https://api.duckduckgo.com",
		client:  newClient(),
	}
}

func (p *DuckDuckGo) Name() string                  { return "duckduckgo" }
func (p *DuckDuckGo) Capability() models.Capability { return models.CapabilitySearch }
func (p *DuckDuckGo) Available() bool               { return true }

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"` // nested category groups
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (p *DuckDuckGo) Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		p.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building duckduckgo request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling duckduckgo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	var payload ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding duckduckgo response: %w", err)
	}

	items := make([]models.ResultItem, 0, maxResults)
	if payload.AbstractText != "" && payload.AbstractURL != "" {
		title := payload.Heading
		if title == "" {
			title = query
		}
		items = append(items, models.ResultItem{
			Title:    title,
			URL:      payload.AbstractURL,
			Snippet:  payload.AbstractText,
			Score:    1.0,
			Provider: p.Name(),
		})
	}
	items = appendTopics(items, payload.RelatedTopics, maxResults, p.Name())
	return items, nil
}

// appendTopics flattens nested related-topic groups depth-first until max
// items are collected.
func appendTopics(items []models.ResultItem, topics []ddgTopic, max int, provider string) []models.ResultItem {
	for _, topic := range topics {
		if max > 0 && len(items) >= max {
			break
		}
		if len(topic.Topics) > 0 {
			items = appendTopics(items, topic.Topics, max, provider)
			continue
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title, snippet := splitTopicText(topic.Text)
		items = append(items, models.ResultItem{
			Title:    title,
			URL:      topic.FirstURL,
			Snippet:  snippet,
			Score:    0.8,
			Provider: provider,
		})
	}
	return items
}

// splitTopicText divides the API's "Title - description" topic strings.
func splitTopicText(text string) (title, snippet string) {
	if i := strings.Index(text, " - "); i > 0 {
		return text[:i], text[i+3:]
	}
	return text, ""
}
