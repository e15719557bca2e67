package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// PostgresRepository stores profiles in the customers table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	if db == nil {
		panic("customers: db cannot be nil")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, phone string) (*Customer, error) {
	var c Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT phone, name, address, created_at, updated_at
		FROM customers
		WHERE phone = $1`, phone).
		Scan(&c.Phone, &c.Name, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("customers: failed to get %s: %w", phone, err)
	}
	return &c, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, c *Customer) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (phone, name, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (phone) DO UPDATE
		SET name = EXCLUDED.name, address = EXCLUDED.address, updated_at = EXCLUDED.updated_at`,
		c.Phone, c.Name, c.Address, now)
	if err != nil {
		return fmt.Errorf("customers: failed to upsert %s: %w", c.Phone, err)
	}
	return nil
}

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]Customer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Customer)}
}

func (r *MemoryRepository) Get(ctx context.Context, phone string) (*Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[phone]
	if !ok {
		return nil, ErrNotFound
	}
	out := c
	return &out, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, c *Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *c
	now := time.Now().UTC()
	if existing, ok := r.items[c.Phone]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.items[c.Phone] = stored
	return nil
}
