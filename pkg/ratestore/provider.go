package ratestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/triptally/triptally/pkg/money"
)

const DefaultProviderEndpoint = "https://openexchangerates.org/api"

const defaultProviderTimeout = 10 * time.Second

// ErrProvider covers every failure talking to the rate provider: missing
// credential, unreachable host, timeout, or a non-200 response.
var ErrProvider = errors.New("exchange rate provider error")

// {"rates":{"CAD":1.3259,"EUR":0.9201},"base":"USD","timestamp":1710028799}
type historicalRatesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Provider fetches historical daily rates from Open Exchange Rates. One
// call returns the rates for every currency on that day; the API has no
// multi-day endpoint.
type Provider struct {
	endpoint string
	appID    string
	client   *http.Client
}

func NewProvider(appID string) *Provider {
	return NewProviderWithEndpoint(appID, DefaultProviderEndpoint, defaultProviderTimeout)
}

func NewProviderWithEndpoint(appID, endpoint string, timeout time.Duration) *Provider {
	if timeout == 0 {
		timeout = defaultProviderTimeout
	}
	return &Provider{
		endpoint: endpoint,
		appID:    appID,
		client:   &http.Client{Timeout: timeout},
	}
}

// HistoricalRates returns the provider's rate-vs-USD for every currency it
// knows on day.
func (p *Provider) HistoricalRates(ctx context.Context, day money.Date) (map[string]decimal.Decimal, error) {
	if p.appID == "" {
		return nil, fmt.Errorf("%w: no app id configured", ErrProvider)
	}

	url := fmt.Sprintf("%s/historical/%s.json", p.endpoint, day)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	q.Add("app_id", p.appID)
	req.URL.RawQuery = q.Encode()

	rs, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching rates for %s: %v", ErrProvider, day, err)
	}
	defer rs.Body.Close()

	bodyBytes, err := io.ReadAll(rs.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading rates response for %s: %v", ErrProvider, day, err)
	}

	if rs.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d for %s: %s", ErrProvider, rs.StatusCode, day, bodyBytes)
	}

	var response historicalRatesResponse
	err = json.Unmarshal(bodyBytes, &response)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing rates response for %s: %v", ErrProvider, day, err)
	}

	return response.Rates, nil
}
