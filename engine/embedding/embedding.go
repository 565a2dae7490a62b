// Package embedding implements the embedding service (C11): input
// validation and truncation in front of the embedding provider client,
// wrapped in the resilience envelope.
package embedding

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
	"github.com/ragmw/midtier/pkg/resilience"
)

// MaxTextLength is the longest input the provider accepts. Longer inputs are
// truncated rather than rejected.
const MaxTextLength = 8192

// Client is the provider collaborator (C5).
type Client interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service is the embedding service (C11).
type Service struct {
	client Client
	rcfg   resilience.Config
	log    *slog.Logger
}

// New constructs the embedding service. A zero rcfg uses
// resilience.DefaultConfig.
func New(client Client, rcfg resilience.Config, log *slog.Logger) *Service {
	if rcfg == (resilience.Config{}) {
		rcfg = resilience.DefaultConfig
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{client: client, rcfg: rcfg, log: log}
}

// Embed returns the embedding vector for a single input.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch validates and truncates every input, then embeds them in one
// call through the resilience envelope. The provider's response must carry
// exactly one vector per input or the batch fails.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errs.Validationf("embedding batch must not be empty")
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, errs.Validationf("embedding input %d must not be empty", i)
		}
		prepared[i] = s.truncate(t)
	}

	result := resilience.RetryWithBackoff(ctx, s.rcfg, func(ctx context.Context) fn.Result[[][]float32] {
		out, err := s.client.EmbedBatch(ctx, prepared)
		if err != nil {
			return fn.Err[[][]float32](err)
		}
		return fn.Ok(out)
	})

	out, err := result.Unwrap()
	if err != nil {
		return nil, err
	}
	if len(out) != len(prepared) {
		return nil, errs.EmbeddingGenerationf("embedding service returned %d vectors for %d inputs", len(out), len(prepared))
	}
	return out, nil
}

// truncate shortens text to MaxTextLength, preferring to cut at the last
// whitespace boundary so a word isn't split. Falls back to a hard cut when
// no whitespace exists in the truncation window.
func (s *Service) truncate(text string) string {
	if len(text) <= MaxTextLength {
		return text
	}
	window := text[:MaxTextLength]
	if idx := strings.LastIndexAny(window, " \t\n\r"); idx > 0 {
		return window[:idx]
	}
	s.log.Warn("embedding input truncated without a whitespace boundary", "original_length", len(text))
	return window
}
