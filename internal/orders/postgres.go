package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PostgresLedger stores orders in the orders table with items as JSONB.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	if db == nil {
		panic("orders: db cannot be nil")
	}
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Create(ctx context.Context, order *Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = StatusConfirmed
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("orders: failed to encode items: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO orders (id, phone, items, address, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.Phone, items, order.Address, order.Total, order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("orders: failed to create order for %s: %w", order.Phone, err)
	}
	return nil
}

func (l *PostgresLedger) ListRecent(ctx context.Context, phone string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, phone, items, address, total, status, created_at
		FROM orders
		WHERE phone = $1
		ORDER BY created_at DESC
		LIMIT $2`, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("orders: failed to list orders for %s: %w", phone, err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var items []byte
		if err := rows.Scan(&o.ID, &o.Phone, &items, &o.Address, &o.Total, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("orders: failed to scan order: %w", err)
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("orders: corrupt items for order %s: %w", o.ID, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: failed to read orders: %w", err)
	}
	return out, nil
}

// MemoryLedger is an in-memory Ledger for tests and local runs. FailCreates
// forces Create to fail so callers can exercise the failure path.
type MemoryLedger struct {
	FailCreates error

	mu     sync.Mutex
	orders []Order
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Create(ctx context.Context, order *Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailCreates != nil {
		return l.FailCreates
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = StatusConfirmed
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	l.orders = append(l.orders, *order)
	return nil
}

func (l *MemoryLedger) ListRecent(ctx context.Context, phone string, limit int) ([]Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 {
		limit = 5
	}
	var out []Order
	for _, o := range l.orders {
		if o.Phone == phone {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many orders have been recorded across all phones.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}
