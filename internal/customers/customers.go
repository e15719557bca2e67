// Package customers stores registered customer profiles keyed by phone
// number. Registration happens once on first contact; later orders reuse the
// stored delivery address unless the customer asks for a new one.
package customers

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that no profile exists for the phone number.
var ErrNotFound = errors.New("customers: not found")

// Customer is a registered profile.
type Customer struct {
	Phone     string
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository persists customer profiles.
type Repository interface {
	// Get returns the profile for phone or ErrNotFound.
	Get(ctx context.Context, phone string) (*Customer, error)
	// Upsert creates the profile or updates name and address.
	Upsert(ctx context.Context, c *Customer) error
}
