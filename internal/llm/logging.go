package llm

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"reblurb-gateway/internal/metrics"
	"reblurb-gateway/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingGenerator wraps a Generator with logging + metrics.
type LoggingGenerator struct {
	inner    Generator
	provider string
	model    string
}

func NewLoggingGenerator(inner Generator, provider, model string) *LoggingGenerator {
	return &LoggingGenerator{inner: inner, provider: provider, model: model}
}

func (g *LoggingGenerator) Generate(ctx context.Context, stylePrompt, content string) (string, error) {
	start := time.Now()
	out, err := g.inner.Generate(ctx, stylePrompt, content)
	elapsed := time.Since(start)

	result := "ok"
	switch {
	case errors.Is(err, ErrGenerationEmpty):
		result = "empty"
	case err != nil:
		result = "error"
	}
	metrics.GenerationsTotal.WithLabelValues(result).Inc()
	metrics.GenerationLatencySeconds.Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.String("generation_result", result),
		zap.Int("content_chars", utf8.RuneCountInString(content)),
		zap.Int("summary_chars", utf8.RuneCountInString(out)),
		zap.Duration("latency", elapsed),
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("summary_generate", append(fields, zap.Error(err))...)
	} else {
		logger.Info("summary_generate", fields...)
	}

	return out, err
}
