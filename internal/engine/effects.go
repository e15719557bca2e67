package engine

import "github.com/ordena/pizzabot/internal/orders"

// Effect is one externally visible outcome of processing a message. The
// webhook layer executes effects in order; the engine itself never sends
// anything.
type Effect interface {
	effect()
}

// ReplyEffect sends a text message back to the customer.
type ReplyEffect struct {
	Text string
}

// OrderCreatedEffect reports that an order was recorded in the ledger.
type OrderCreatedEffect struct {
	Order orders.Order
}

// ShowMenuEffect reports that the menu was rendered for the customer.
type ShowMenuEffect struct{}

// ClearCartEffect reports that the in-progress cart was emptied.
type ClearCartEffect struct{}

func (ReplyEffect) effect()        {}
func (OrderCreatedEffect) effect() {}
func (ShowMenuEffect) effect()     {}
func (ClearCartEffect) effect()    {}

// Replies collects the reply texts from a list of effects.
func Replies(effects []Effect) []string {
	var out []string
	for _, e := range effects {
		if r, ok := e.(ReplyEffect); ok {
			out = append(out, r.Text)
		}
	}
	return out
}
