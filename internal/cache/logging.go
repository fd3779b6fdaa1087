package cache

import (
	"context"
	"time"

	"reblurb-gateway/internal/metrics"
	"reblurb-gateway/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner Store
}

// NewLoggingStore returns a store that logs and records metrics.
func NewLoggingStore(inner Store) *LoggingStore {
	return &LoggingStore{inner: inner}
}

func (s *LoggingStore) Get(ctx context.Context, key SummaryKey) (Record, bool, error) {
	start := time.Now()
	rec, ok, err := s.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}
	metrics.StoreOpsTotal.WithLabelValues("get", result).Inc()

	fields := append(keyFields(key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("summary_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Info("summary_cache_get", fields...)
	}

	return rec, ok, err
}

func (s *LoggingStore) Put(ctx context.Context, key SummaryKey, summary string) error {
	start := time.Now()
	err := s.inner.Put(ctx, key, summary)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StoreOpsTotal.WithLabelValues("put", result).Inc()

	fields := append(keyFields(key),
		zap.Int("summary_chars", len(summary)),
		zap.Float64("latency_ms", latencyMs),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("summary_cache_put", append(fields, zap.Error(err))...)
	} else {
		logger.Info("summary_cache_put", fields...)
	}

	return err
}

// Close forwards to the wrapped store when it holds resources.
func (s *LoggingStore) Close() error {
	if c, ok := s.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func keyFields(key SummaryKey) []zap.Field {
	return []zap.Field{
		zap.String("cache_key", key.String()),
		zap.String("product_id", key.ProductID),
		zap.String("site", key.Site),
		zap.String("prompt_type", string(key.PromptType)),
	}
}
