package customers

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"phone", "name", "address", "created_at", "updated_at"}).
		AddRow("549111234", "Juan Pérez", "Calle 1 #23", now, now)
	mock.ExpectQuery("SELECT phone, name, address").
		WithArgs("549111234").
		WillReturnRows(rows)

	repo := NewPostgresRepository(db)
	c, err := repo.Get(context.Background(), "549111234")
	require.NoError(t, err)
	assert.Equal(t, "Juan Pérez", c.Name)
	assert.Equal(t, "Calle 1 #23", c.Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT phone, name, address").
		WithArgs("000").
		WillReturnRows(sqlmock.NewRows([]string{"phone", "name", "address", "created_at", "updated_at"}))

	repo := NewPostgresRepository(db)
	_, err = repo.Get(context.Background(), "000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO customers").
		WithArgs("549111234", "Juan Pérez", "Calle 1 #23", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	err = repo.Upsert(context.Background(), &Customer{
		Phone:   "549111234",
		Name:    "Juan Pérez",
		Address: "Calle 1 #23",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "549111234")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, &Customer{Phone: "549111234", Name: "Juan", Address: "Calle 1 #23"}))

	c, err := repo.Get(ctx, "549111234")
	require.NoError(t, err)
	assert.Equal(t, "Juan", c.Name)
	created := c.CreatedAt

	require.NoError(t, repo.Upsert(ctx, &Customer{Phone: "549111234", Name: "Juan Pérez", Address: "Calle 2 #45"}))
	c, err = repo.Get(ctx, "549111234")
	require.NoError(t, err)
	assert.Equal(t, "Juan Pérez", c.Name)
	assert.Equal(t, created, c.CreatedAt)
}
