// Package catalog exposes the pizza menu. The engine reads the menu on every
// order interaction, so implementations must be cheap to call.
package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Pizza is one orderable menu entry. Prices are per medium size; small and
// large are derived with fixed multipliers.
type Pizza struct {
	ID          int64
	Name        string
	Description string
	Emoji       string
	BasePrice   float64
	Available   bool
}

const (
	smallMultiplier = 0.8
	largeMultiplier = 1.3
)

// PriceFor returns the price for a size keyword. Unknown sizes fall back to
// the medium price.
func (p Pizza) PriceFor(size string) float64 {
	switch strings.ToLower(size) {
	case "small", "pequeña", "pequena", "chica":
		return round2(p.BasePrice * smallMultiplier)
	case "large", "grande":
		return round2(p.BasePrice * largeMultiplier)
	default:
		return p.BasePrice
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// Provider lists the orderable menu.
type Provider interface {
	// ListAvailable returns available pizzas in display order. Menu numbers
	// shown to the user are 1-based positions in this slice.
	ListAvailable(ctx context.Context) ([]Pizza, error)
}

// Render formats the menu the way it is sent over WhatsApp.
func Render(pizzas []Pizza) string {
	var b strings.Builder
	b.WriteString("🍕 *Nuestro Menú* 🍕\n\n")
	for i, p := range pizzas {
		fmt.Fprintf(&b, "%d. %s %s - $%.2f\n", i+1, p.Emoji, p.Name, p.BasePrice)
		if p.Description != "" {
			fmt.Fprintf(&b, "   _%s_\n", p.Description)
		}
	}
	b.WriteString("\nEscribe el número y tamaño de la pizza que quieres, por ejemplo: *1 mediana*")
	return b.String()
}
