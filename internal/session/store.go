package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ordena/pizzabot/internal/cache"
	"github.com/ordena/pizzabot/internal/observability/metrics"
	"github.com/ordena/pizzabot/pkg/logging"
)

// ErrWriteDeferred reports that the session was served from the fast tier and
// its durable write was queued for retry. Callers may treat it as retryable;
// the obligation is never dropped.
var ErrWriteDeferred = errors.New("session: durable write deferred")

// ErrCorruptSession marks a persisted payload that could not be decoded or
// validated. The store recovers by synthesizing a default session.
var ErrCorruptSession = errors.New("session: corrupt payload")

// MutateFn applies a change to a session under the per-id lock.
type MutateFn func(*Session) error

type writebackJob struct {
	key       string
	value     []byte
	updatedAt time.Time
}

// Store owns session reads and writes. All mutations for a given id are
// serialized through a per-id mutex; different ids proceed in parallel.
type Store struct {
	cache        *cache.TieredCache
	logger       *logging.Logger
	cacheMetrics *metrics.CacheMetrics

	locks sync.Map // id -> *sync.Mutex

	mu    sync.Mutex
	queue map[string]writebackJob

	retryEvery time.Duration
	stop       chan struct{}
	done       chan struct{}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRetryInterval overrides how often queued write-backs are retried.
func WithRetryInterval(every time.Duration) StoreOption {
	return func(s *Store) {
		if every > 0 {
			s.retryEvery = every
		}
	}
}

// WithCacheMetrics attaches queue-depth metrics.
func WithCacheMetrics(m *metrics.CacheMetrics) StoreOption {
	return func(s *Store) {
		s.cacheMetrics = m
	}
}

// NewStore creates a session store over the tiered cache.
func NewStore(c *cache.TieredCache, logger *logging.Logger, opts ...StoreOption) *Store {
	if c == nil {
		panic("session: cache cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		cache:      c,
		logger:     logger,
		queue:      make(map[string]writebackJob),
		retryEvery: 10 * time.Second,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.drainLoop()
	return s
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Get returns the session for id, synthesizing and persisting a default when
// none exists. It never reports "not found". A corrupt stored payload yields
// the default session together with ErrCorruptSession so callers can tell the
// recovery apart from a first contact.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, fresh, loadErr := s.load(ctx, id)
	if fresh {
		if err := s.persist(ctx, sess); err != nil && !errors.Is(err, ErrWriteDeferred) {
			return nil, err
		}
	}
	return sess, loadErr
}

// Update applies fn to the current session under the per-id lock and persists
// the result. At most one mutation per id runs at a time. A deferred durable
// write returns the mutated session together with ErrWriteDeferred.
func (s *Store) Update(ctx context.Context, id string, fn MutateFn) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, _, _ := s.load(ctx, id)
	if err := fn(sess); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !now.After(sess.UpdatedAt) {
		// Conflict resolution in the durable tier is last-writer-wins on
		// updated_at, so it must advance on every mutation.
		now = sess.UpdatedAt.Add(time.Microsecond)
	}
	sess.UpdatedAt = now

	if err := s.persist(ctx, sess); err != nil {
		if errors.Is(err, ErrWriteDeferred) {
			return sess, err
		}
		return nil, err
	}
	return sess, nil
}

// Reset atomically returns the session to the initial state with empty
// scratch data.
func (s *Store) Reset(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, func(sess *Session) error {
		sess.ResetFlow()
		return nil
	})
	if errors.Is(err, ErrWriteDeferred) {
		return nil
	}
	return err
}

// Close stops the write-back drainer after a final flush attempt.
func (s *Store) Close(ctx context.Context) error {
	close(s.stop)
	<-s.done
	s.drain(ctx)

	s.mu.Lock()
	remaining := len(s.queue)
	s.mu.Unlock()
	if remaining > 0 {
		return fmt.Errorf("session: %d write-back obligations still pending", remaining)
	}
	return nil
}

func (s *Store) lock(id string) func() {
	value, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// load returns the current session, whether it was synthesized fresh, and an
// ErrCorruptSession-wrapped error when a stored payload had to be discarded.
// Corrupt payloads and unknown states recover to the default session rather
// than propagating a crash.
func (s *Store) load(ctx context.Context, id string) (*Session, bool, error) {
	data, err := s.cache.Read(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, cache.ErrDurableUnavailable) {
			s.logger.Warn("durable tier unavailable on read, serving default session", "session_id", id, "error", err)
		}
		return New(id), true, nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Error("corrupt session payload, resetting", "session_id", id, "error", err)
		return New(id), true, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if err := sess.Validate(); err != nil {
		s.logger.Error("invalid session payload, resetting", "session_id", id, "error", err)
		return New(id), true, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if sess.ID != id {
		sess.ID = id
	}
	return &sess, false, nil
}

func (s *Store) persist(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to encode %s: %w", sess.ID, err)
	}

	key := sessionKey(sess.ID)
	if err := s.cache.Write(ctx, key, data, sess.UpdatedAt); err != nil {
		if errors.Is(err, cache.ErrDurableUnavailable) {
			s.cache.WriteFast(ctx, key, data)
			s.enqueue(writebackJob{key: key, value: data, updatedAt: sess.UpdatedAt})
			s.logger.Warn("durable write failed, queued write-back", "session_id", sess.ID, "error", err)
			return fmt.Errorf("%w: %v", ErrWriteDeferred, err)
		}
		return fmt.Errorf("session: failed to persist %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) enqueue(job writebackJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.queue[job.key]; ok && existing.updatedAt.After(job.updatedAt) {
		return
	}
	s.queue[job.key] = job
	s.cacheMetrics.SetWritebackDepth(len(s.queue))
}

func (s *Store) drainLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.retryEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.retryEvery)
			s.drain(ctx)
			cancel()
		}
	}
}

func (s *Store) drain(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]writebackJob, 0, len(s.queue))
	for _, job := range s.queue {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	for _, job := range jobs {
		if err := s.cache.WriteDurable(ctx, job.key, job.value, job.updatedAt); err != nil {
			s.logger.Warn("write-back retry failed", "key", job.key, "error", err)
			continue
		}
		s.mu.Lock()
		if current, ok := s.queue[job.key]; ok && !current.updatedAt.After(job.updatedAt) {
			delete(s.queue, job.key)
		}
		s.cacheMetrics.SetWritebackDepth(len(s.queue))
		s.mu.Unlock()
	}
}

// PendingWritebacks reports how many durable writes are still queued.
func (s *Store) PendingWritebacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
