package embedding

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// FailureKind classifies a provider call failure. The failover algorithm
// treats every kind identically; they are distinguished for logging and
// metrics only.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureTimeout     FailureKind = "timeout"
	FailureProvider    FailureKind = "provider_error"
	FailureUnknown     FailureKind = "unknown"
)

// ProviderFailure is the classified outcome of a failed provider call.
type ProviderFailure struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (f *ProviderFailure) Error() string {
	return "provider " + f.Provider + " failed (" + string(f.Kind) + "): " + f.Err.Error()
}

func (f *ProviderFailure) Unwrap() error {
	return f.Err
}

// Client calls a single provider's embedding endpoint for one batch of
// texts: N texts in, N vectors out, in input order.
type Client interface {
	Embed(ctx context.Context, provider *Provider, texts []string) ([][]float32, error)
}

// openAIClient talks to any OpenAI-compatible /embeddings endpoint.
// Per-provider API clients are built lazily and reused.
type openAIClient struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewClient creates a Client with the given per-batch timeout.
func NewClient(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &openAIClient{
		timeout: timeout,
		clients: make(map[string]*openai.Client),
	}
}

func (c *openAIClient) clientFor(provider *Provider) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[provider.Name]; ok {
		return client
	}

	cfg := openai.DefaultConfig(provider.Key)
	if provider.URL != "" {
		cfg.BaseURL = provider.URL
	}
	client := openai.NewClientWithConfig(cfg)
	c.clients[provider.Name] = client
	return client
}

// Embed performs one network round trip against the provider. All
// failures are wrapped in a classified *ProviderFailure.
func (c *openAIClient) Embed(ctx context.Context, provider *Provider, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if provider.limiter != nil {
		if err := provider.limiter.Wait(ctx); err != nil {
			return nil, classify(provider, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.clientFor(provider).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(provider.Model),
	})
	if err != nil {
		return nil, classify(provider, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, &ProviderFailure{
			Provider: provider.Name,
			Kind:     FailureProvider,
			Err:      errors.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func classify(provider *Provider, err error) *ProviderFailure {
	kind := FailureUnknown

	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			kind = FailureRateLimited
		} else {
			kind = FailureProvider
		}
	case errors.Is(err, context.DeadlineExceeded):
		kind = FailureTimeout
	}

	return &ProviderFailure{Provider: provider.Name, Kind: kind, Err: err}
}
