package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"BitcoinSentinel/internal/model"
)

// RESTAdapter talks to a brokerage-style REST venue. The tranche's idempotency
// key is passed as the client order id; the venue treats a resubmission with a
// known client order id as a lookup of the original order, which is what makes
// crash recovery safe.
type RESTAdapter struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTAdapter creates a live exchange adapter.
func NewRESTAdapter(baseURL, apiKey string) *RESTAdapter {
	return &RESTAdapter{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *RESTAdapter) Name() string { return "rest" }

type restOrder struct {
	OrderID   string  `json:"order_id"`
	Status    string  `json:"status"`
	FillPrice float64 `json:"fill_price"`
	FillQty   float64 `json:"fill_qty"`
	Code      string  `json:"code"` // error code on rejections
}

func (a *RESTAdapter) SubmitOrder(ctx context.Context, key string, side model.Side, notional float64, typ model.OrderType) (*SubmitResult, error) {
	payload, err := json.Marshal(map[string]any{
		"client_order_id": key,
		"symbol":          "BTC-USD",
		"side":            string(side),
		"type":            string(typ),
		"notional":        notional,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	var out restOrder
	if err := a.call(ctx, http.MethodPost, "/v1/orders", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return &SubmitResult{
		OrderID:   out.OrderID,
		Status:    model.OrderStatus(out.Status),
		FillPrice: out.FillPrice,
		FillQty:   out.FillQty,
	}, nil
}

func (a *RESTAdapter) GetOrderStatus(ctx context.Context, orderID string) (model.OrderStatus, error) {
	var out restOrder
	err := a.call(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &out)
	if err != nil {
		return "", err
	}
	return model.OrderStatus(out.Status), nil
}

func (a *RESTAdapter) GetBalance(ctx context.Context, asset string) (float64, error) {
	var out struct {
		Available float64 `json:"available"`
	}
	if err := a.call(ctx, http.MethodGet, "/v1/balances/"+asset, nil, &out); err != nil {
		return 0, err
	}
	return out.Available, nil
}

func (a *RESTAdapter) Quote(ctx context.Context) (float64, error) {
	var out struct {
		Price float64 `json:"price"`
	}
	if err := a.call(ctx, http.MethodGet, "/v1/ticker/BTC-USD", nil, &out); err != nil {
		return 0, err
	}
	return out.Price, nil
}

func (a *RESTAdapter) call(ctx context.Context, method, path string, body *bytes.Reader, out any) error {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, a.BaseURL+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s %s: %w", method, path, ErrRateLimited)
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrOrderNotFound)
	case http.StatusUnprocessableEntity:
		var rej restOrder
		_ = json.NewDecoder(resp.Body).Decode(&rej)
		if rej.Code == "insufficient_funds" {
			return fmt.Errorf("%s %s: %w", method, path, ErrInsufficientFunds)
		}
		return fmt.Errorf("%s %s (%s): %w", method, path, rej.Code, ErrRejected)
	default:
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
