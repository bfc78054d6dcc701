package shop

import (
	"context"
	"encoding/json"
	"net/url"
)

// Client is the remote API surface a task drives. Each task owns exactly one
// Client; implementations are not required to be safe for concurrent use.
type Client interface {
	// AddToCart puts every product into the cart in a single call.
	AddToCart(ctx context.Context, productIDs []uint64) error

	// SessionUID extracts the checkout session identifier from the cart page.
	SessionUID(ctx context.Context) (string, error)

	// GoToCheckout opens the checkout for the given session.
	GoToCheckout(ctx context.Context, sessionUID string) error

	// CartTotalPrice returns the sum of the per-item totals in the cart.
	CartTotalPrice(ctx context.Context) (uint64, error)

	// CreateOrder submits the order and returns the raw response document.
	CreateOrder(ctx context.Context) (json.RawMessage, error)

	// SetProxy switches the egress proxy used by subsequent requests.
	SetProxy(proxy *url.URL)
}

type cartItem struct {
	ID       uint64 `json:"id"`
	Quantity int    `json:"quantity"`
}

type productSummary struct {
	ID         uint64 `json:"id"`
	TotalPrice uint64 `json:"totalPrice"`
}
