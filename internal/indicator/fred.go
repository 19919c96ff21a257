package indicator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// FREDSource implements MacroSource against the St. Louis Fed FRED API.
type FREDSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewFREDSource creates a FRED-backed macro source.
func NewFREDSource(baseURL, apiKey string) *FREDSource {
	if baseURL == "" {
		baseURL = "https://api.stlouisfed.org/fred"
	}
	return &FREDSource{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *FREDSource) Name() string { return "fred" }

func (f *FREDSource) FedFundsRateSeries(ctx context.Context, lookback time.Duration) ([]Point, error) {
	start := time.Now().Add(-lookback).Format("2006-01-02")
	return f.fetchSeries(ctx, "DFF", start)
}

func (f *FREDSource) M2Series(ctx context.Context, months int) ([]Point, error) {
	start := time.Now().AddDate(0, -months, 0).Format("2006-01-02")
	return f.fetchSeries(ctx, "M2SL", start)
}

// fredObservation is the JSON shape of one FRED observation.
type fredObservation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

func (f *FREDSource) fetchSeries(ctx context.Context, seriesID, start string) ([]Point, error) {
	endpoint := fmt.Sprintf(
		"%s/series/observations?series_id=%s&observation_start=%s&api_key=%s&file_type=json&sort_order=asc",
		f.BaseURL, seriesID, start, f.APIKey,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", seriesID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("fetch %s: %w", seriesID, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", seriesID, resp.StatusCode)
	}

	var result struct {
		Observations []fredObservation `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode %s: %w", seriesID, err)
	}
	if len(result.Observations) == 0 {
		return nil, fmt.Errorf("series %s empty: %w", seriesID, ErrDataUnavailable)
	}

	points := make([]Point, 0, len(result.Observations))
	for _, obs := range result.Observations {
		// FRED reports missing observations as ".".
		v, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		t, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			continue
		}
		points = append(points, Point{Time: t, Value: v})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("series %s has no numeric observations: %w", seriesID, ErrDataUnavailable)
	}
	return points, nil
}
