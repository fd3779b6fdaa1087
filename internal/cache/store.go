package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable wraps every transport or storage failure of a Store.
var ErrStoreUnavailable = errors.New("store unavailable")

// Record is one persisted summary.
type Record struct {
	Key       SummaryKey
	Summary   string
	UpdatedAt time.Time
}

// Store is the summary cache consumed by the orchestrator.
// Implemented by the memory (dev), Redis, MongoDB and Postgres backends.
//
// Get must observe the most recent completed Put for the same key made by
// this process. Put is an idempotent upsert: last writer wins and a reader
// sees either the old or the new record, never a mix.
type Store interface {
	Get(ctx context.Context, key SummaryKey) (Record, bool, error)
	Put(ctx context.Context, key SummaryKey, summary string) error
}

// unavailable tags err as a store failure while keeping the cause.
func unavailable(op string, key SummaryKey, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err)
}

// timeoutStore bounds every store call with a deadline.
type timeoutStore struct {
	inner   Store
	timeout time.Duration
}

// WithTimeout returns a Store whose operations fail once d elapses.
// A non-positive d returns inner unchanged.
func WithTimeout(inner Store, d time.Duration) Store {
	if d <= 0 {
		return inner
	}
	return &timeoutStore{inner: inner, timeout: d}
}

func (s *timeoutStore) Get(ctx context.Context, key SummaryKey) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Get(ctx, key)
}

func (s *timeoutStore) Put(ctx context.Context, key SummaryKey, summary string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Put(ctx, key, summary)
}

// Close forwards to the wrapped store when it holds resources.
func (s *timeoutStore) Close() error {
	if c, ok := s.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
