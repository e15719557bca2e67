package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordena/pizzabot/internal/cache"
	"github.com/ordena/pizzabot/pkg/logging"
)

func newTestStore(t *testing.T, durable cache.DurableStore) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tiered := cache.New(client, durable, logging.Default(), cache.WithTTL(time.Minute))
	t.Cleanup(tiered.Close)
	store := NewStore(tiered, logging.Default(), WithRetryInterval(20*time.Millisecond))
	return store, mr
}

func TestGetSynthesizesDefault(t *testing.T) {
	store, _ := newTestStore(t, cache.NewMemoryStore())
	ctx := context.Background()

	sess, err := store.Get(ctx, "549111234")
	require.NoError(t, err)
	assert.Equal(t, "549111234", sess.ID)
	assert.Equal(t, StateInitial, sess.State)
	assert.Empty(t, sess.TempData.Cart)
}

func TestGetIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, cache.NewMemoryStore())
	ctx := context.Background()

	first, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.TempData, second.TempData)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestUpdatePersistsThroughColdFastTier(t *testing.T) {
	durable := cache.NewMemoryStore()
	store, mr := newTestStore(t, durable)
	ctx := context.Background()

	_, err := store.Update(ctx, "u1", func(s *Session) error {
		s.State = StateBrowsingMenu
		s.LastBotPrompt = "¿Qué pizzas te gustaría ordenar?"
		return nil
	})
	require.NoError(t, err)

	// Simulate fast-tier eviction; the durable tier must be authoritative.
	mr.FlushAll()

	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateBrowsingMenu, sess.State)
	assert.Equal(t, "¿Qué pizzas te gustaría ordenar?", sess.LastBotPrompt)
}

func TestConcurrentUpdatesDoNotLoseCartItems(t *testing.T) {
	durable := cache.NewMemoryStore()
	durable.Delay = time.Millisecond
	store, _ := newTestStore(t, durable)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			_, err := store.Update(ctx, "same-user", func(s *Session) error {
				s.TempData.Cart = append(s.TempData.Cart, CartItem{
					PizzaID:   int64(i),
					Name:      fmt.Sprintf("pizza-%d", i),
					Size:      SizeMedium,
					Quantity:  1,
					UnitPrice: 10,
				})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sess, err := store.Get(ctx, "same-user")
	require.NoError(t, err)
	assert.Len(t, sess.TempData.Cart, n, "concurrent updates must not lose cart items")
}

func TestConcurrentUpdatesAcrossUsersAreIndependent(t *testing.T) {
	store, _ := newTestStore(t, cache.NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 10; u++ {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(u int) {
				defer wg.Done()
				_, err := store.Update(ctx, fmt.Sprintf("user-%d", u), func(s *Session) error {
					s.TempData.Cart = append(s.TempData.Cart, CartItem{PizzaID: 1, Quantity: 1})
					return nil
				})
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()

	for u := 0; u < 10; u++ {
		sess, err := store.Get(ctx, fmt.Sprintf("user-%d", u))
		require.NoError(t, err)
		assert.Len(t, sess.TempData.Cart, 5)
	}
}

func TestDurableOutageQueuesWriteback(t *testing.T) {
	durable := cache.NewMemoryStore()
	store, _ := newTestStore(t, durable)
	ctx := context.Background()

	durable.FailWrites = errors.New("connection refused")

	sess, err := store.Update(ctx, "u1", func(s *Session) error {
		s.State = StateBuildingOrder
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteDeferred)
	require.NotNil(t, sess)
	assert.Equal(t, StateBuildingOrder, sess.State)
	assert.Equal(t, 1, store.PendingWritebacks())

	// The fast tier keeps serving the mutated session while the durable
	// tier is down.
	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateBuildingOrder, got.State)

	// Once the durable tier recovers, the drainer flushes the obligation.
	durable.FailWrites = nil
	assert.Eventually(t, func() bool {
		return store.PendingWritebacks() == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, store.Close(ctx))
	assert.Positive(t, durable.Len())
}

func TestCorruptPayloadRecoversToDefault(t *testing.T) {
	durable := cache.NewMemoryStore()
	store, _ := newTestStore(t, durable)
	ctx := context.Background()

	require.NoError(t, durable.Write(ctx, "session:u1", []byte("{not json"), time.Now()))

	sess, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCorruptSession)
	require.NotNil(t, sess)
	assert.Equal(t, StateInitial, sess.State)
	assert.Empty(t, sess.TempData.Cart)

	// The default replaced the corrupt payload, so the next read is clean.
	sess, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateInitial, sess.State)
}

func TestUnknownStateRecoversToDefault(t *testing.T) {
	durable := cache.NewMemoryStore()
	store, _ := newTestStore(t, durable)
	ctx := context.Background()

	payload := []byte(`{"id":"u1","state":"estado_legado","temp_data":{"version":1},"updated_at":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, durable.Write(ctx, "session:u1", payload, time.Now()))

	sess, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCorruptSession)
	require.NotNil(t, sess)
	assert.Equal(t, StateInitial, sess.State)
}

func TestResetClearsStateAndScratch(t *testing.T) {
	store, _ := newTestStore(t, cache.NewMemoryStore())
	ctx := context.Background()

	_, err := store.Update(ctx, "u1", func(s *Session) error {
		s.State = StateConfirmingOrder
		s.TempData.Cart = []CartItem{{PizzaID: 1, Quantity: 1, UnitPrice: 10}}
		s.TempData.PendingAddress = "Calle 1 #23"
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx, "u1"))

	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateInitial, sess.State)
	assert.Empty(t, sess.TempData.Cart)
	assert.Empty(t, sess.TempData.PendingAddress)
}

func TestUpdatedAtAdvancesMonotonically(t *testing.T) {
	store, _ := newTestStore(t, cache.NewMemoryStore())
	ctx := context.Background()

	var previous time.Time
	for i := 0; i < 5; i++ {
		sess, err := store.Update(ctx, "u1", func(s *Session) error { return nil })
		require.NoError(t, err)
		assert.True(t, sess.UpdatedAt.After(previous), "iteration %d", i)
		previous = sess.UpdatedAt
	}
}
