package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brokersim/brokersim/internal/domain"
	"github.com/brokersim/brokersim/pkg/metrics"
)

// Client fetches quotes from an external HTTP service:
// GET {base}/quote?symbol=SYM returning {"symbol": "...", "price": "..."}.
// Lookups are blocking with a bounded timeout and no retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.Quote{}, domain.ErrUnknownSymbol
	}

	u := fmt.Sprintf("%s/quote?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("build quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordQuoteLookup("error")
		return domain.Quote{}, fmt.Errorf("quote lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.RecordQuoteLookup("not_found")
		return domain.Quote{}, domain.ErrUnknownSymbol
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordQuoteLookup("error")
		return domain.Quote{}, fmt.Errorf("quote lookup: status %d", resp.StatusCode)
	}

	var body struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.RecordQuoteLookup("error")
		return domain.Quote{}, fmt.Errorf("decode quote: %w", err)
	}

	metrics.RecordQuoteLookup("success")
	return domain.Quote{Symbol: strings.ToUpper(body.Symbol), Price: body.Price}, nil
}
