package embedding

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/hbt123-123/firemark/internal/profile"
)

// Provider describes one embedding backend. Entries are ordered:
// the first provider is primary, the rest are failover targets.
type Provider struct {
	URL   string `json:"url"`
	Key   string `json:"key"`
	Model string `json:"model"`
	Name  string `json:"name"`

	limiter *rate.Limiter
}

// ProviderInfo is the credential-free projection of a Provider,
// safe to expose on introspection endpoints.
type ProviderInfo struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Model string `json:"model"`
}

// Pool holds the ordered list of embedding providers built from
// configuration. Construction never fails; a pool may be empty and
// callers must handle that case.
type Pool struct {
	providers []*Provider
}

// NewPool builds the provider pool from the profile. It parses the JSON
// provider list, falls back to the legacy single-provider configuration
// when the list is absent or unparseable, and drops entries without a
// usable credential with a logged warning.
func NewPool(p *profile.Profile) *Pool {
	var entries []*Provider

	if p.EmbeddingProviders != "" {
		if err := json.Unmarshal([]byte(p.EmbeddingProviders), &entries); err != nil {
			slog.Warn("failed to parse embedding provider list", "error", err)
			entries = nil
		}
	}

	if len(entries) == 0 && p.EmbeddingAPIKey != "" {
		entries = []*Provider{{
			URL:   p.EmbeddingBaseURL,
			Key:   p.EmbeddingAPIKey,
			Model: p.EmbeddingModel,
		}}
	}

	pool := &Pool{}
	for i, entry := range entries {
		if entry.Key == "" {
			slog.Warn("dropping embedding provider without credential", "index", i, "url", entry.URL)
			continue
		}
		if entry.Model == "" {
			entry.Model = "text-embedding-3-small"
		}
		if entry.Name == "" {
			if entry.URL != "" {
				entry.Name = entry.URL
			} else {
				entry.Name = fmt.Sprintf("provider_%d", i)
			}
		}
		entry.limiter = rate.NewLimiter(rate.Limit(p.EmbeddingRPS), p.EmbeddingRPS)
		pool.providers = append(pool.providers, entry)
		slog.Info("loaded embedding provider", "name", entry.Name, "model", entry.Model)
	}

	if len(pool.providers) == 0 {
		slog.Warn("no embedding providers configured, embedding generation will fail open")
	}
	return pool
}

// Providers returns the providers in configuration order.
func (p *Pool) Providers() []*Provider {
	return p.providers
}

// Empty reports whether the pool holds no usable providers.
func (p *Pool) Empty() bool {
	return len(p.providers) == 0
}

// Info returns the credential-free description of every provider.
func (p *Pool) Info() []ProviderInfo {
	info := make([]ProviderInfo, 0, len(p.providers))
	for _, provider := range p.providers {
		info = append(info, ProviderInfo{
			Name:  provider.Name,
			URL:   provider.URL,
			Model: provider.Model,
		})
	}
	return info
}
