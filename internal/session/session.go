package session

import (
	"fmt"
	"time"
)

// State identifies where a conversation is in the order-taking flow.
// Persisted values are normalized through ParseState at the store boundary so
// the engine never sees an arbitrary string.
type State string

const (
	StateInitial            State = "initial"
	StateRegisteringName    State = "registering_name"
	StateRegisteringAddress State = "registering_address"
	StateBrowsingMenu       State = "browsing_menu"
	StateBuildingOrder      State = "building_order"
	StateCollectingAddress  State = "collecting_address"
	StateConfirmingOrder    State = "confirming_order"
	StateFinalized          State = "finalized"
)

// ParseState maps a stored string onto the closed state set.
func ParseState(raw string) (State, bool) {
	switch State(raw) {
	case StateInitial, StateRegisteringName, StateRegisteringAddress,
		StateBrowsingMenu, StateBuildingOrder, StateCollectingAddress,
		StateConfirmingOrder, StateFinalized:
		return State(raw), true
	}
	return StateInitial, false
}

// Size is a pizza size.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// ParseSize normalizes user-facing size words, including the Spanish
// variants the bot accepts.
func ParseSize(raw string) (Size, bool) {
	switch raw {
	case "small", "pequeña", "pequena", "chica":
		return SizeSmall, true
	case "medium", "mediana", "median":
		return SizeMedium, true
	case "large", "grande":
		return SizeLarge, true
	}
	return "", false
}

// Spanish returns the size word used in replies.
func (s Size) Spanish() string {
	switch s {
	case SizeSmall:
		return "pequeña"
	case SizeMedium:
		return "mediana"
	case SizeLarge:
		return "grande"
	}
	return string(s)
}

// CartItem is one line of the in-progress order. UnitPrice is captured when
// the item is added so the total stays stable even if catalog prices change
// mid-session.
type CartItem struct {
	PizzaID   int64   `json:"pizza_id"`
	Name      string  `json:"name"`
	Emoji     string  `json:"emoji"`
	Size      Size    `json:"size"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Subtotal returns the line total.
func (c CartItem) Subtotal() float64 {
	return c.UnitPrice * float64(c.Quantity)
}

// tempDataVersion guards against silent schema drift in persisted payloads.
const tempDataVersion = 1

// TempData is the typed scratch space a conversation accumulates before an
// order is finalized.
type TempData struct {
	Version          int        `json:"version"`
	Cart             []CartItem `json:"cart,omitempty"`
	PendingName      string     `json:"pending_name,omitempty"`
	PendingAddress   string     `json:"pending_address,omitempty"`
	PendingSelection string     `json:"pending_selection,omitempty"`
}

// Session is the per-user conversation record.
type Session struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	TempData      TempData  `json:"temp_data"`
	LastBotPrompt string    `json:"last_bot_prompt,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// New returns a session in the default state.
func New(id string) *Session {
	return &Session{
		ID:        id,
		State:     StateInitial,
		TempData:  TempData{Version: tempDataVersion},
		UpdatedAt: time.Now().UTC(),
	}
}

// CartTotal sums the captured line prices.
func (s *Session) CartTotal() float64 {
	var total float64
	for _, item := range s.TempData.Cart {
		total += item.Subtotal()
	}
	return total
}

// ResetFlow returns the session to the initial state and clears scratch data.
func (s *Session) ResetFlow() {
	s.State = StateInitial
	s.TempData = TempData{Version: tempDataVersion}
}

// Validate reports structural problems in a decoded session.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session: missing id")
	}
	if _, ok := ParseState(string(s.State)); !ok {
		return fmt.Errorf("session: unknown state %q", s.State)
	}
	for i, item := range s.TempData.Cart {
		if item.Quantity < 1 {
			return fmt.Errorf("session: cart item %d has quantity %d", i, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("session: cart item %d has negative price", i)
		}
	}
	return nil
}
