package cache

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM conversation_sessions`).
		WithArgs("session:u1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"id":"u1"}`)))

	store := NewPostgresStore(db)
	value, err := store.Read(context.Background(), "session:u1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"u1"}`, string(value))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreReadMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM conversation_sessions`).
		WithArgs("session:absent").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	store := NewPostgresStore(db)
	_, err = store.Read(context.Background(), "session:absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreWriteUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`INSERT INTO conversation_sessions`).
		WithArgs("session:u1", []byte("payload"), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	require.NoError(t, store.Write(context.Background(), "session:u1", []byte("payload"), now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM conversation_sessions`).
		WithArgs("session:u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	require.NoError(t, store.Delete(context.Background(), "session:u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
