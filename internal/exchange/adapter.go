// Package exchange defines the order-submission boundary and a simulated
// implementation used for dry runs and tests.
package exchange

import (
	"context"
	"errors"
	"net"

	"BitcoinSentinel/internal/model"
)

// Errors reported by adapters. Rate limits and timeouts are transient and
// retried by the scheduler; rejections and insufficient funds are permanent.
var (
	ErrRateLimited       = errors.New("exchange rate limited")
	ErrRejected          = errors.New("order rejected by exchange")
	ErrInsufficientFunds = errors.New("insufficient funds on exchange")
	ErrOrderNotFound     = errors.New("order not found")
)

// SubmitResult is the adapter's view of a submitted order.
type SubmitResult struct {
	OrderID   string
	Status    model.OrderStatus
	FillPrice float64
	FillQty   float64
}

// Adapter submits orders and reports fills and balances. Submission must be
// deduplicated by idempotency key: a repeated submission with a known key
// returns the original order instead of creating a second one.
type Adapter interface {
	SubmitOrder(ctx context.Context, key string, side model.Side, notional float64, typ model.OrderType) (*SubmitResult, error)
	GetOrderStatus(ctx context.Context, orderID string) (model.OrderStatus, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
	// Quote returns the current executable price for the traded pair.
	Quote(ctx context.Context) (float64, error)
	Name() string
}

// IsTransient reports whether an adapter error is worth retrying. A timeout is
// never proof of non-execution, so callers must resubmit under the same
// idempotency key.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
