// Package embedding generates fixed-dimension float32 vectors for free
// text through an ordered pool of OpenAI-compatible providers, with
// automatic failover and a fail-open zero-vector policy.
package embedding

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// DefaultChunkSize bounds a single provider request's payload in the
// streaming paths.
const DefaultChunkSize = 100

// ChunkCallback receives each completed chunk during streaming
// generation, with the chunk's degradation flag. A returned error is
// logged and does not abort the remaining chunks.
type ChunkCallback func(chunkIndex int, vectors [][]float32, degraded bool) error

// Service orchestrates the provider pool: for each request it tries the
// providers in configuration order until one succeeds. When every
// provider fails, or the pool is empty, it returns zero vectors and
// reports degradation instead of an error, so memory writes never block
// on a broken embedding backend. Callers that need to tell "no signal"
// from "model says dissimilar" must check the degraded flag.
type Service struct {
	pool   *Pool
	client Client
	dim    int
}

// NewService creates a Service producing vectors of the given dimension.
func NewService(pool *Pool, client Client, dim int) *Service {
	return &Service{pool: pool, client: client, dim: dim}
}

// Dimensions returns the vector dimension.
func (s *Service) Dimensions() int {
	return s.dim
}

func (s *Service) zeroVector() []float32 {
	return make([]float32, s.dim)
}

func (s *Service) zeroVectors(n int) [][]float32 {
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = s.zeroVector()
	}
	return vectors
}

// GenerateOne generates the vector for a single text. Blank text
// short-circuits to a zero vector without a provider call: text with no
// content has no semantic signal and must not burn a network request.
// The returned flag reports degradation (pool exhausted or empty).
func (s *Service) GenerateOne(ctx context.Context, text string) ([]float32, bool, error) {
	if strings.TrimSpace(text) == "" {
		return s.zeroVector(), false, nil
	}

	vectors, degraded, err := s.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, false, err
	}
	return vectors[0], degraded, nil
}

// GenerateBatch tries each provider in pool order with the entire batch,
// failing over on any classified failure. The error return is non-nil
// only when ctx is cancelled: a cancelled caller no longer wants any
// answer, so cancellation aborts the whole call rather than skipping to
// the next provider.
func (s *Service) GenerateBatch(ctx context.Context, texts []string) ([][]float32, bool, error) {
	if len(texts) == 0 {
		return nil, false, nil
	}

	providers := s.pool.Providers()
	if len(providers) == 0 {
		slog.Error("no embedding providers available")
		failOpenTotal.Inc()
		return s.zeroVectors(len(texts)), true, nil
	}

	for i, provider := range providers {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		vectors, err := s.client.Embed(ctx, provider, texts)
		if err == nil {
			providerSuccesses.WithLabelValues(provider.Name).Inc()
			slog.Debug("generated embeddings", "provider", provider.Name, "texts", len(texts))
			return vectors, false, nil
		}

		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		kind := FailureUnknown
		var failure *ProviderFailure
		if errors.As(err, &failure) {
			kind = failure.Kind
		}
		providerFailures.WithLabelValues(provider.Name, string(kind)).Inc()
		slog.Warn("embedding provider failed, trying next",
			"provider", provider.Name,
			"kind", string(kind),
			"attempt", i+1,
			"of", len(providers),
			"error", err)
	}

	slog.Error("all embedding providers failed, falling open to zero vectors", "providers", len(providers))
	failOpenTotal.Inc()
	return s.zeroVectors(len(texts)), true, nil
}

// GenerateStreaming splits texts into fixed-size chunks (the last chunk
// may be shorter), generates each chunk through GenerateBatch, and
// concatenates the results preserving input order. The degraded flag is
// set when any chunk fell open.
func (s *Service) GenerateStreaming(ctx context.Context, texts []string, chunkSize int) ([][]float32, bool, error) {
	return s.GenerateStreamingWithCallback(ctx, texts, chunkSize, nil)
}

// GenerateStreamingWithCallback is GenerateStreaming with an optional
// per-chunk callback, letting a caller processing thousands of texts
// persist embeddings incrementally instead of holding everything in
// memory until the end.
func (s *Service) GenerateStreamingWithCallback(ctx context.Context, texts []string, chunkSize int, callback ChunkCallback) ([][]float32, bool, error) {
	if len(texts) == 0 {
		return nil, false, nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	all := make([][]float32, 0, len(texts))
	degraded := false

	for start, chunkIndex := 0, 0; start < len(texts); start, chunkIndex = start+chunkSize, chunkIndex+1 {
		end := start + chunkSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, chunkDegraded, err := s.GenerateBatch(ctx, texts[start:end])
		if err != nil {
			return nil, false, err
		}
		degraded = degraded || chunkDegraded
		all = append(all, vectors...)

		if callback != nil {
			if err := callback(chunkIndex, vectors, chunkDegraded); err != nil {
				slog.Error("embedding chunk callback failed", "chunk", chunkIndex, "error", err)
			}
		}
	}

	return all, degraded, nil
}
