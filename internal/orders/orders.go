// Package orders records confirmed orders in a durable ledger. The ledger is
// append-mostly: orders are created on confirmation and later read back for
// the "pedido" status command.
package orders

import (
	"context"
	"time"
)

// Status values an order moves through after confirmation.
const (
	StatusConfirmed  = "confirmed"
	StatusPreparing  = "preparing"
	StatusDelivering = "delivering"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// Item is one cart line frozen at confirmation time.
type Item struct {
	PizzaID   int64   `json:"pizza_id"`
	Name      string  `json:"name"`
	Size      string  `json:"size"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Order is one confirmed order.
type Order struct {
	ID        string
	Phone     string
	Items     []Item
	Address   string
	Total     float64
	Status    string
	CreatedAt time.Time
}

// Ledger persists confirmed orders.
type Ledger interface {
	// Create records a confirmed order and fills in its ID and timestamp.
	Create(ctx context.Context, order *Order) error
	// ListRecent returns the newest orders for a phone number, newest first.
	ListRecent(ctx context.Context, phone string, limit int) ([]Order, error)
}
