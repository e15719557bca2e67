package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// PostgresCatalog reads the menu from the pizzas table. Results are cached
// in-process for a short window because the menu changes rarely but is read
// on nearly every message.
type PostgresCatalog struct {
	db  *sql.DB
	ttl time.Duration

	mu       sync.Mutex
	cached   []Pizza
	cachedAt time.Time
}

// NewPostgresCatalog creates a catalog over db. A zero cacheTTL disables the
// in-process cache.
func NewPostgresCatalog(db *sql.DB, cacheTTL time.Duration) *PostgresCatalog {
	if db == nil {
		panic("catalog: db cannot be nil")
	}
	return &PostgresCatalog{db: db, ttl: cacheTTL}
}

func (c *PostgresCatalog) ListAvailable(ctx context.Context) ([]Pizza, error) {
	c.mu.Lock()
	if c.ttl > 0 && c.cached != nil && time.Since(c.cachedAt) < c.ttl {
		pizzas := c.cached
		c.mu.Unlock()
		return pizzas, nil
	}
	c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, description, emoji, base_price
		FROM pizzas
		WHERE available = TRUE
		ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list pizzas: %w", err)
	}
	defer rows.Close()

	var pizzas []Pizza
	for rows.Next() {
		p := Pizza{Available: true}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Emoji, &p.BasePrice); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan pizza: %w", err)
		}
		pizzas = append(pizzas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: failed to read pizzas: %w", err)
	}

	c.mu.Lock()
	c.cached = pizzas
	c.cachedAt = time.Now()
	c.mu.Unlock()
	return pizzas, nil
}

// StaticCatalog serves a fixed menu. Used in tests and local development.
type StaticCatalog struct {
	Pizzas []Pizza
}

// DefaultMenu is the seed menu used when no database is configured.
func DefaultMenu() []Pizza {
	return []Pizza{
		{ID: 1, Name: "Margarita", Description: "Salsa de tomate, mozzarella y albahaca", Emoji: "🍕", BasePrice: 10.99, Available: true},
		{ID: 2, Name: "Pepperoni", Description: "Pepperoni y extra queso", Emoji: "🍕", BasePrice: 12.99, Available: true},
		{ID: 3, Name: "Hawaiana", Description: "Jamón y piña", Emoji: "🍍", BasePrice: 11.99, Available: true},
		{ID: 4, Name: "Champiñones", Description: "Champiñones frescos y queso", Emoji: "🍄", BasePrice: 11.49, Available: true},
	}
}

func (c *StaticCatalog) ListAvailable(ctx context.Context) ([]Pizza, error) {
	out := make([]Pizza, 0, len(c.Pizzas))
	for _, p := range c.Pizzas {
		if p.Available {
			out = append(out, p)
		}
	}
	return out, nil
}
