package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceForSizes(t *testing.T) {
	p := Pizza{BasePrice: 10.00}

	assert.InDelta(t, 8.00, p.PriceFor("pequeña"), 0.001)
	assert.InDelta(t, 8.00, p.PriceFor("chica"), 0.001)
	assert.InDelta(t, 10.00, p.PriceFor("mediana"), 0.001)
	assert.InDelta(t, 13.00, p.PriceFor("grande"), 0.001)
	assert.InDelta(t, 10.00, p.PriceFor("desconocido"), 0.001)
}

func TestRenderMenu(t *testing.T) {
	out := Render(DefaultMenu())

	assert.Contains(t, out, "1. 🍕 Margarita - $10.99")
	assert.Contains(t, out, "2. 🍕 Pepperoni - $12.99")
	assert.Contains(t, out, "1 mediana")
}

func TestStaticCatalogFiltersUnavailable(t *testing.T) {
	cat := &StaticCatalog{Pizzas: []Pizza{
		{ID: 1, Name: "Margarita", Available: true},
		{ID: 2, Name: "Agotada", Available: false},
	}}

	pizzas, err := cat.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, pizzas, 1)
	assert.Equal(t, "Margarita", pizzas[0].Name)
}

func TestPostgresCatalogListAvailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "description", "emoji", "base_price"}).
		AddRow(1, "Margarita", "Salsa de tomate", "🍕", 10.99).
		AddRow(2, "Pepperoni", "Extra queso", "🍕", 12.99)
	mock.ExpectQuery("SELECT id, name, description, emoji, base_price").WillReturnRows(rows)

	cat := NewPostgresCatalog(db, 0)
	pizzas, err := cat.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, pizzas, 2)
	assert.Equal(t, "Margarita", pizzas[0].Name)
	assert.True(t, pizzas[0].Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogCachesWithinTTL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "description", "emoji", "base_price"}).
		AddRow(1, "Margarita", "", "🍕", 10.99)
	mock.ExpectQuery("SELECT id, name, description, emoji, base_price").WillReturnRows(rows)

	cat := NewPostgresCatalog(db, time.Minute)

	_, err = cat.ListAvailable(context.Background())
	require.NoError(t, err)
	// Second call inside the TTL must not hit the database again.
	_, err = cat.ListAvailable(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
