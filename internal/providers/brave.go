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

var _ contracts.Provider = (*Brave)(nil)

// Brave calls the Brave Search API. Paid per call on metered plans, best
// general web quality in the search pool. Requires a subscription token.
type Brave struct {
	BaseURL string
	apiKey  string
	client  *http.Client
}

func NewBrave(apiKey string) *Brave {
	return &Brave{
		BaseURL: "https://api.search.brave.com",
		apiKey:  apiKey,
		client:  newClient(),
	}
}

func (p *Brave) Name() string                  { return "brave" }
func (p *Brave) Capability() models.Capability { return models.CapabilitySearch }
func (p *Brave) Available() bool               { return p.apiKey != "" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			PageAge     string `json:"page_age"`
		} `json:"results"`
	} `json:"web"`
}

func (p *Brave) Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error) {
	endpoint := fmt.Sprintf("%s/res/v1/web/search?q=%s&count=%d",
		p.BaseURL, url.QueryEscape(query), maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling brave: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("brave rate limited (429)")
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return nil, fmt.Errorf("brave rejected the subscription token (status %d)", resp.StatusCode)
	default:
		return nil, fmt.Errorf("brave returned status %d", resp.StatusCode)
	}

	var payload braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding brave response: %w", err)
	}

	items := make([]models.ResultItem, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if maxResults > 0 && len(items) >= maxResults {
			break
		}
		if r.Title == "" || r.URL == "" {
			continue
		}
		items = append(items, models.ResultItem{
			Title:     stripHTML(r.Title), // brave marks query terms with <strong>
			URL:       r.URL,
			Snippet:   stripHTML(r.Description),
			Score:     0.9,
			Provider:  p.Name(),
			Published: parsePageAge(r.PageAge),
		})
	}
	return items, nil
}

func parsePageAge(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
