package exchange

import (
	"context"
	"fmt"
	"sync"

	"BitcoinSentinel/internal/model"
)

// PriceFunc supplies the reference price simulated fills execute at.
type PriceFunc func(ctx context.Context) (float64, error)

// Simulated is a dry-run adapter: fills happen instantly at the reference
// price, balances are tracked locally, and submissions are deduplicated by
// idempotency key exactly like a real venue with client order ids.
type Simulated struct {
	mu      sync.Mutex
	price   PriceFunc
	balance float64
	orders  map[string]*SubmitResult
	seq     int

	// failQueue errors are returned by the next SubmitOrder calls before any
	// state changes; used to exercise retry paths in tests.
	failQueue []error
}

// NewSimulated creates a simulated adapter with a starting quote balance.
func NewSimulated(balance float64, price PriceFunc) *Simulated {
	return &Simulated{
		price:   price,
		balance: balance,
		orders:  make(map[string]*SubmitResult),
	}
}

func (s *Simulated) Name() string { return "simulated" }

// FailNext queues errors for upcoming SubmitOrder calls.
func (s *Simulated) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failQueue = append(s.failQueue, errs...)
}

func (s *Simulated) SubmitOrder(ctx context.Context, key string, side model.Side, notional float64, _ model.OrderType) (*SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotency: a known key returns the original order, no new effects.
	if existing, ok := s.orders[key]; ok {
		return existing, nil
	}

	if len(s.failQueue) > 0 {
		err := s.failQueue[0]
		s.failQueue = s.failQueue[1:]
		return nil, err
	}

	if side == model.SideBuy && notional > s.balance {
		return nil, fmt.Errorf("notional %.2f exceeds balance %.2f: %w", notional, s.balance, ErrInsufficientFunds)
	}

	price, err := s.price(ctx)
	if err != nil {
		return nil, fmt.Errorf("reference price: %w", err)
	}

	s.seq++
	res := &SubmitResult{
		OrderID:   fmt.Sprintf("sim-%06d", s.seq),
		Status:    model.OrderFilled,
		FillPrice: price,
		FillQty:   notional / price,
	}
	s.orders[key] = res
	if side == model.SideBuy {
		s.balance -= notional
	} else {
		s.balance += notional
	}
	return res, nil
}

func (s *Simulated) GetOrderStatus(_ context.Context, orderID string) (model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.OrderID == orderID {
			return o.Status, nil
		}
	}
	return "", ErrOrderNotFound
}

func (s *Simulated) GetBalance(_ context.Context, _ string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *Simulated) Quote(ctx context.Context) (float64, error) {
	return s.price(ctx)
}

// SubmittedCount reports how many distinct orders were created; tests use it
// to assert at-most-once submission per key.
func (s *Simulated) SubmittedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
