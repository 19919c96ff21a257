package indicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BitcoinSentinel/internal/model"

	"github.com/rs/zerolog"
)

// Sentinel errors surfaced by sources and the gateway.
var (
	ErrDataUnavailable = errors.New("indicator data unavailable")
	ErrRateLimited     = errors.New("indicator source rate limited")
)

// Point is one observation of a time series.
type Point struct {
	Time  time.Time
	Value float64
}

// MacroSource provides macroeconomic series (FRED-style).
type MacroSource interface {
	// FedFundsRateSeries returns daily effective fed funds rates covering at
	// least the given lookback, oldest first.
	FedFundsRateSeries(ctx context.Context, lookback time.Duration) ([]Point, error)
	// M2Series returns monthly M2 money supply observations, oldest first.
	M2Series(ctx context.Context, months int) ([]Point, error)
	Name() string
}

// ChainSource provides Bitcoin on-chain and market data.
type ChainSource interface {
	ExchangeReserves(ctx context.Context) (float64, error)
	// HashRateSeries returns daily network hash rate observations, oldest first.
	HashRateSeries(ctx context.Context, days int) ([]Point, error)
	BitcoinPrice(ctx context.Context) (float64, error)
	Name() string
}

// Gateway pulls raw series from its sources and derives the normalized
// indicator readings the signal engine consumes.
type Gateway struct {
	macro MacroSource
	chain ChainSource
	log   zerolog.Logger
}

// NewGateway creates a gateway over the given sources.
func NewGateway(macro MacroSource, chain ChainSource, log zerolog.Logger) *Gateway {
	return &Gateway{macro: macro, chain: chain, log: log.With().Str("component", "indicator").Logger()}
}

// Snapshot collects all indicator readings as of now. Indicators whose source
// fails are omitted from the set rather than defaulted; the combined fetch
// errors are returned alongside the partial set so the caller can decide which
// scenarios remain evaluable.
func (g *Gateway) Snapshot(ctx context.Context, asOf time.Time) (model.ReadingSet, error) {
	readings := model.ReadingSet{}
	var errs []error

	if err := g.collectFedPolicy(ctx, asOf, readings); err != nil {
		g.log.Warn().Err(err).Msg("fed policy readings unavailable")
		errs = append(errs, err)
	}
	if err := g.collectM2(ctx, asOf, readings); err != nil {
		g.log.Warn().Err(err).Msg("m2 readings unavailable")
		errs = append(errs, err)
	}
	if err := g.collectReserves(ctx, asOf, readings); err != nil {
		g.log.Warn().Err(err).Msg("exchange reserve reading unavailable")
		errs = append(errs, err)
	}
	if err := g.collectHashRibbon(ctx, asOf, readings); err != nil {
		g.log.Warn().Err(err).Msg("hash ribbon readings unavailable")
		errs = append(errs, err)
	}
	if err := g.collectPrice(ctx, asOf, readings); err != nil {
		g.log.Warn().Err(err).Msg("bitcoin price unavailable")
		errs = append(errs, err)
	}

	return readings, errors.Join(errs...)
}

// ReferencePrice returns the current Bitcoin price used as the fill reference
// in dry-run mode and as the slippage baseline for live orders.
func (g *Gateway) ReferencePrice(ctx context.Context) (float64, error) {
	return g.chain.BitcoinPrice(ctx)
}

func (g *Gateway) collectFedPolicy(ctx context.Context, asOf time.Time, readings model.ReadingSet) error {
	series, err := g.macro.FedFundsRateSeries(ctx, 180*24*time.Hour)
	if err != nil {
		return fmt.Errorf("fed funds series: %w", err)
	}
	if len(series) == 0 {
		return fmt.Errorf("fed funds series: %w", ErrDataUnavailable)
	}

	current := series[len(series)-1].Value
	readings[model.IndicatorFedPolicy] = model.Reading{
		Name: model.IndicatorFedPolicy, Value: current, Timestamp: asOf,
	}

	// Pivot shift: recent 30-observation average minus the oldest 30. Negative
	// means the Fed is cutting.
	if len(series) >= 60 {
		recent := meanValue(series[len(series)-30:])
		older := meanValue(series[:30])
		readings[model.IndicatorFedPivotShift] = model.Reading{
			Name: model.IndicatorFedPivotShift, Value: recent - older, Timestamp: asOf,
		}
	}
	return nil
}

func (g *Gateway) collectM2(ctx context.Context, asOf time.Time, readings model.ReadingSet) error {
	series, err := g.macro.M2Series(ctx, 18)
	if err != nil {
		return fmt.Errorf("m2 series: %w", err)
	}
	if len(series) < 13 {
		return fmt.Errorf("m2 series needs 13+ months, have %d: %w", len(series), ErrDataUnavailable)
	}

	growth := yoyGrowth(series, 0)
	readings[model.IndicatorM2Growth] = model.Reading{
		Name: model.IndicatorM2Growth, Value: growth, Timestamp: asOf,
	}

	// Acceleration: change of the YoY growth rate over the last three months.
	if len(series) >= 16 {
		accel := growth - yoyGrowth(series, 3)
		readings[model.IndicatorM2Acceleration] = model.Reading{
			Name: model.IndicatorM2Acceleration, Value: accel, Timestamp: asOf,
		}
	}
	return nil
}

func (g *Gateway) collectReserves(ctx context.Context, asOf time.Time, readings model.ReadingSet) error {
	reserves, err := g.chain.ExchangeReserves(ctx)
	if err != nil {
		return fmt.Errorf("exchange reserves: %w", err)
	}
	readings[model.IndicatorExchangeReserves] = model.Reading{
		Name: model.IndicatorExchangeReserves, Value: reserves, Timestamp: asOf,
	}
	return nil
}

func (g *Gateway) collectHashRibbon(ctx context.Context, asOf time.Time, readings model.ReadingSet) error {
	series, err := g.chain.HashRateSeries(ctx, 120)
	if err != nil {
		return fmt.Errorf("hash rate series: %w", err)
	}
	state, capitulated, err := hashRibbon(series)
	if err != nil {
		return fmt.Errorf("hash ribbon: %w", err)
	}
	readings[model.IndicatorHashRibbon] = model.Reading{
		Name: model.IndicatorHashRibbon, Value: state, Timestamp: asOf,
	}
	cap := 0.0
	if capitulated {
		cap = 1.0
	}
	readings[model.IndicatorMinerCapitulation] = model.Reading{
		Name: model.IndicatorMinerCapitulation, Value: cap, Timestamp: asOf,
	}
	return nil
}

func (g *Gateway) collectPrice(ctx context.Context, asOf time.Time, readings model.ReadingSet) error {
	price, err := g.chain.BitcoinPrice(ctx)
	if err != nil {
		return fmt.Errorf("bitcoin price: %w", err)
	}
	readings[model.IndicatorBitcoinPrice] = model.Reading{
		Name: model.IndicatorBitcoinPrice, Value: price, Timestamp: asOf,
	}
	return nil
}

// yoyGrowth computes year-over-year growth of a monthly series, offset months
// back from the latest observation.
func yoyGrowth(series []Point, offset int) float64 {
	last := len(series) - 1 - offset
	yearAgo := last - 12
	if yearAgo < 0 || series[yearAgo].Value == 0 {
		return 0
	}
	return (series[last].Value - series[yearAgo].Value) / series[yearAgo].Value
}

func meanValue(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}
