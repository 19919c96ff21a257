package indicator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RESTChainSource implements ChainSource against an aggregated on-chain data
// REST API (CryptoQuant/Glassnode-style deployments share this shape).
type RESTChainSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTChainSource creates an HTTP-backed on-chain source.
func NewRESTChainSource(baseURL, apiKey string) *RESTChainSource {
	return &RESTChainSource{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *RESTChainSource) Name() string { return "rest-chain" }

func (s *RESTChainSource) ExchangeReserves(ctx context.Context) (float64, error) {
	var result struct {
		Reserves float64 `json:"reserves_btc"`
	}
	if err := s.get(ctx, "/v1/btc/exchange-reserves", &result); err != nil {
		return 0, err
	}
	return result.Reserves, nil
}

func (s *RESTChainSource) HashRateSeries(ctx context.Context, days int) ([]Point, error) {
	var result struct {
		Series []struct {
			Timestamp int64   `json:"timestamp"`
			HashRate  float64 `json:"hash_rate"`
		} `json:"series"`
	}
	path := fmt.Sprintf("/v1/btc/hash-rate?days=%d", days)
	if err := s.get(ctx, path, &result); err != nil {
		return nil, err
	}
	if len(result.Series) == 0 {
		return nil, fmt.Errorf("hash rate series empty: %w", ErrDataUnavailable)
	}
	points := make([]Point, len(result.Series))
	for i, row := range result.Series {
		points[i] = Point{Time: time.Unix(row.Timestamp, 0), Value: row.HashRate}
	}
	return points, nil
}

func (s *RESTChainSource) BitcoinPrice(ctx context.Context) (float64, error) {
	var result struct {
		Price float64 `json:"price_usd"`
	}
	if err := s.get(ctx, "/v1/btc/price", &result); err != nil {
		return 0, err
	}
	return result.Price, nil
}

func (s *RESTChainSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("get %s: %w", path, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
