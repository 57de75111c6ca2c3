package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

var _ contracts.Provider = (*AlphaVantage)(nil)

// AlphaVantage serves real-time global quotes. Keyed, 25 requests/day on
// the free plan; the API signals throttling inside HTTP 200 payloads via
// "Note"/"Information" fields, which count as call failures here.
type AlphaVantage struct {
	BaseURL string
	apiKey  string
	client  *http.Client
}

func NewAlphaVantage(apiKey string) *AlphaVantage {
	return &AlphaVantage{
		BaseURL: "https://www.alphavantage.co",
		apiKey:  apiKey,
		client:  newClient(),
	}
}

func (p *AlphaVantage) Name() string                  { return "alphavantage" }
func (p *AlphaVantage) Capability() models.Capability { return models.CapabilityFinancial }
func (p *AlphaVantage) Available() bool               { return p.apiKey != "" }

type alphaResponse struct {
	GlobalQuote  alphaQuote `json:"Global Quote"`
	Note         string     `json:"Note"`
	Information  string     `json:"Information"`
	ErrorMessage string     `json:"Error Message"`
}

type alphaQuote struct {
	Symbol        string `json:"01. symbol"`
	Open          string `json:"02. open"`
	High          string `json:"03. high"`
	Low           string `json:"04. low"`
	Price         string `json:"05. price"`
	Volume        string `json:"06. volume"`
	LatestDay     string `json:"07. latest trading day"`
	Change        string `json:"09. change"`
	ChangePercent string `json:"10. change percent"`
}

func (p *AlphaVantage) Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error) {
	symbol := quoteSymbol(query)
	endpoint := fmt.Sprintf("%s/query?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		p.BaseURL, url.QueryEscape(symbol), url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building alphavantage request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling alphavantage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage returned status %d", resp.StatusCode)
	}

	var payload alphaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding alphavantage response: %w", err)
	}
	if payload.Note != "" {
		return nil, fmt.Errorf("alphavantage throttled: %s", truncate(payload.Note, 120))
	}
	if payload.Information != "" {
		return nil, fmt.Errorf("alphavantage throttled: %s", truncate(payload.Information, 120))
	}
	if payload.ErrorMessage != "" {
		return nil, fmt.Errorf("alphavantage error: %s", truncate(payload.ErrorMessage, 120))
	}
	q := payload.GlobalQuote
	if q.Symbol == "" || q.Price == "" {
		return nil, fmt.Errorf("alphavantage returned an empty quote for %q", symbol)
	}

	item := models.ResultItem{
		Title: fmt.Sprintf("%s quote: %s (%s)", q.Symbol, q.Price, q.ChangePercent),
		URL:   fmt.Sprintf("https://www.alphavantage.co/query?function=GLOBAL_QUOTE&symbol=%s", url.QueryEscape(q.Symbol)),
		Snippet: fmt.Sprintf("open %s high %s low %s price %s change %s volume %s (as of %s)",
			q.Open, q.High, q.Low, q.Price, q.Change, q.Volume, q.LatestDay),
		Score:     1.0,
		Provider:  p.Name(),
		Published: parseTradingDay(q.LatestDay),
	}
	return []models.ResultItem{item}, nil
}

func parseTradingDay(day string) *time.Time {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return nil
	}
	return &t
}

// quoteSymbol extracts the ticker from a free-form query: first token,
// uppercased.
func quoteSymbol(query string) string {
	s := strings.ToUpper(strings.TrimSpace(query))
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}
