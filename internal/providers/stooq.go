package providers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

var _ contracts.Provider = (*Stooq)(nil)

// Stooq serves delayed market quotes as CSV. Free and keyless; US tickers
// need the .us suffix, which is appended when the query has no market
// qualifier.
type Stooq struct {
	BaseURL string
	client  *http.Client
}

func NewStooq() *Stooq {
	return &Stooq{
		BaseURL: "https://stooq.com",
		client:  newClient(),
	}
}

func (p *Stooq) Name() string                  { return "stooq" }
func (p *Stooq) Capability() models.Capability { return models.CapabilityFinancial }
func (p *Stooq) Available() bool               { return true }

func (p *Stooq) Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error) {
	symbol := stooqSymbol(query)
	endpoint := fmt.Sprintf("%s/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv",
		p.BaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building stooq request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling stooq: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq returned status %d", resp.StatusCode)
	}

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing stooq csv: %w", err)
	}
	// Header row: Symbol,Date,Time,Open,High,Low,Close,Volume
	if len(rows) < 2 || len(rows[1]) < 8 {
		return nil, fmt.Errorf("stooq returned no quote rows for %q", symbol)
	}
	row := rows[1]
	if row[6] == "N/D" {
		return nil, fmt.Errorf("stooq has no data for %q", symbol)
	}

	item := models.ResultItem{
		Title: fmt.Sprintf("%s quote: close %s", strings.ToUpper(row[0]), row[6]),
		URL:   fmt.Sprintf("https://stooq.com/q/?s=%s", url.QueryEscape(symbol)),
		Snippet: fmt.Sprintf("open %s high %s low %s close %s volume %s (%s %s)",
			row[3], row[4], row[5], row[6], row[7], row[1], row[2]),
		Score:     0.9,
		Provider:  p.Name(),
		Published: parseQuoteStamp(row[1], row[2]),
	}
	return []models.ResultItem{item}, nil
}

func parseQuoteStamp(date, clock string) *time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
	if err != nil {
		return nil
	}
	return &t
}

// stooqSymbol maps a free-form query onto a stooq ticker: first token,
// lowercased, defaulted to the US market.
func stooqSymbol(query string) string {
	s := strings.ToLower(strings.TrimSpace(query))
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	if !strings.Contains(s, ".") {
		s += ".us"
	}
	return s
}
