package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-signal-alerts/internal/rates"
)

// DefaultTimeout bounds a single provider attempt. Constrained/mobile
// contexts may raise it to 10s via configuration.
const DefaultTimeout = 8 * time.Second

// ProviderOptions parameterise an HTTP rate provider.
type ProviderOptions struct {
	Name      string
	URL       string
	Reference string
	Timeout   time.Duration
	UserAgent string
}

// HTTPProvider fetches a latest-rates document from a JSON API. All three
// supported upstreams (Frankfurter, ExchangeRate.host, ExchangeRate-API)
// return a top-level "rates" object keyed by currency code.
type HTTPProvider struct {
	opts   ProviderOptions
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPProvider constructs a provider for one ranked source.
func NewHTTPProvider(opts ProviderOptions, logger zerolog.Logger) *HTTPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if opts.Reference == "" {
		opts.Reference = rates.ReferenceCurrency
	}

	return &HTTPProvider{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "rate_provider").Str("provider", opts.Name).Logger(),
	}
}

// Name identifies the provider in snapshots and logs.
func (p *HTTPProvider) Name() string {
	return p.opts.Name
}

// Fetch performs one bounded GET and normalizes the response.
func (p *HTTPProvider) Fetch(ctx context.Context) (rates.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.URL, nil)
	if err != nil {
		return rates.Snapshot{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return rates.Snapshot{}, fmt.Errorf("request %s: %w", p.opts.Name, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return rates.Snapshot{}, fmt.Errorf("read %s response: %w", p.opts.Name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return rates.Snapshot{}, fmt.Errorf("%s responded %d: %s", p.opts.Name, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var doc ratesDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return rates.Snapshot{}, fmt.Errorf("decode %s response: %w", p.opts.Name, err)
	}
	if len(doc.Rates) == 0 {
		return rates.Snapshot{}, ErrEmptyRates
	}

	p.logger.Debug().Int("currencies", len(doc.Rates)).Msg("snapshot fetched")

	return rates.Snapshot{
		Reference: p.opts.Reference,
		Rates:     doc.Rates,
		Source:    p.opts.Name,
		FetchedAt: time.Now().UTC(),
	}, nil
}

type ratesDocument struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

var _ Provider = (*HTTPProvider)(nil)
