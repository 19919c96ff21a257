package indicator

import (
	"context"
	"time"
)

// StaticSource returns controllable fixed data for dry runs and tests. It
// implements both MacroSource and ChainSource.
type StaticSource struct {
	FedRate   float64
	RateShift float64 // spread applied across the rate series; negative = cutting
	M2Monthly []float64
	Reserves  float64
	HashRates []float64
	Price     float64

	// Errors to inject, per method name.
	Fail map[string]error
}

// NewStaticSource returns a source describing a mildly favorable market.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		FedRate:   4.25,
		RateShift: -0.50,
		M2Monthly: growthSeries(20500, 0.008, 18),
		Reserves:  2.45e6,
		HashRates: growthSeries(4.2e20, 0.002, 120),
		Price:     62000,
	}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) FedFundsRateSeries(_ context.Context, lookback time.Duration) ([]Point, error) {
	if err := s.Fail["FedFundsRateSeries"]; err != nil {
		return nil, err
	}
	days := int(lookback.Hours() / 24)
	if days < 60 {
		days = 60
	}
	points := make([]Point, days)
	for i := range points {
		// Linear ramp from FedRate-RateShift down/up to FedRate.
		frac := float64(i) / float64(days-1)
		points[i] = Point{
			Time:  time.Now().AddDate(0, 0, -(days - i)),
			Value: s.FedRate - s.RateShift + s.RateShift*frac,
		}
	}
	return points, nil
}

func (s *StaticSource) M2Series(_ context.Context, months int) ([]Point, error) {
	if err := s.Fail["M2Series"]; err != nil {
		return nil, err
	}
	n := len(s.M2Monthly)
	if months < n {
		n = months
	}
	points := make([]Point, n)
	for i := 0; i < n; i++ {
		points[i] = Point{
			Time:  time.Now().AddDate(0, -(n - i), 0),
			Value: s.M2Monthly[len(s.M2Monthly)-n+i],
		}
	}
	return points, nil
}

func (s *StaticSource) ExchangeReserves(_ context.Context) (float64, error) {
	if err := s.Fail["ExchangeReserves"]; err != nil {
		return 0, err
	}
	return s.Reserves, nil
}

func (s *StaticSource) HashRateSeries(_ context.Context, days int) ([]Point, error) {
	if err := s.Fail["HashRateSeries"]; err != nil {
		return nil, err
	}
	n := len(s.HashRates)
	if days < n {
		n = days
	}
	points := make([]Point, n)
	for i := 0; i < n; i++ {
		points[i] = Point{
			Time:  time.Now().AddDate(0, 0, -(n - i)),
			Value: s.HashRates[len(s.HashRates)-n+i],
		}
	}
	return points, nil
}

func (s *StaticSource) BitcoinPrice(_ context.Context) (float64, error) {
	if err := s.Fail["BitcoinPrice"]; err != nil {
		return 0, err
	}
	return s.Price, nil
}

// growthSeries builds a geometric series of n values growing at rate r per
// step, ending at base*(1+r)^n.
func growthSeries(base, r float64, n int) []float64 {
	out := make([]float64, n)
	v := base
	for i := 0; i < n; i++ {
		out[i] = v
		v *= 1 + r
	}
	return out
}
