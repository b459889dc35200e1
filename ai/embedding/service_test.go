package embedding

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbt123-123/firemark/internal/profile"
)

// fakeClient scripts per-provider outcomes and records call order.
type fakeClient struct {
	fail  map[string]error
	calls []string
	dim   int
}

func (f *fakeClient) Embed(_ context.Context, provider *Provider, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, provider.Name)
	if err, ok := f.fail[provider.Name]; ok {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vec := make([]float32, f.dim)
		vec[0] = float32(i + 1)
		vectors[i] = vec
	}
	return vectors, nil
}

func newTestService(t *testing.T, providerList string, client Client) *Service {
	t.Helper()
	p := testProfile()
	p.EmbeddingProviders = providerList
	return NewService(NewPool(p), client, 4)
}

const twoProviders = `[
	{"url": "https://primary.example.com", "key": "k1", "name": "primary"},
	{"url": "https://backup.example.com", "key": "k2", "name": "backup"}
]`

func TestGenerateBatch_PrimarySucceeds(t *testing.T) {
	client := &fakeClient{dim: 4}
	svc := newTestService(t, twoProviders, client)

	vectors, degraded, err := svc.GenerateBatch(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, vectors, 2)
	assert.Equal(t, []string{"primary"}, client.calls, "backup must not be called when primary succeeds")
}

func TestGenerateBatch_FailoverOrder(t *testing.T) {
	client := &fakeClient{
		dim: 4,
		fail: map[string]error{
			"primary": &ProviderFailure{Provider: "primary", Kind: FailureRateLimited, Err: errors.New("429")},
		},
	}
	svc := newTestService(t, twoProviders, client)

	vectors, degraded, err := svc.GenerateBatch(context.Background(), []string{"a"})

	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, vectors, 1)
	assert.Equal(t, []string{"primary", "backup"}, client.calls)
}

func TestGenerateBatch_AllProvidersFail_FallsOpen(t *testing.T) {
	client := &fakeClient{
		dim: 4,
		fail: map[string]error{
			"primary": &ProviderFailure{Provider: "primary", Kind: FailureTimeout, Err: errors.New("timeout")},
			"backup":  &ProviderFailure{Provider: "backup", Kind: FailureProvider, Err: errors.New("500")},
		},
	}
	svc := newTestService(t, twoProviders, client)

	vectors, degraded, err := svc.GenerateBatch(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.True(t, degraded)
	require.Len(t, vectors, 3)
	for _, vec := range vectors {
		assert.Equal(t, make([]float32, 4), vec)
	}
}

func TestGenerateBatch_EmptyPool_FallsOpen(t *testing.T) {
	svc := newTestService(t, "", &fakeClient{dim: 4})

	vectors, degraded, err := svc.GenerateBatch(context.Background(), []string{"a"})

	require.NoError(t, err)
	assert.True(t, degraded)
	require.Len(t, vectors, 1)
	assert.Equal(t, make([]float32, 4), vectors[0])
}

func TestGenerateOne_EmptyPool_FallsOpen(t *testing.T) {
	svc := newTestService(t, "", &fakeClient{dim: 4})

	vec, degraded, err := svc.GenerateOne(context.Background(), "hello")

	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, make([]float32, 4), vec)
}

func TestGenerateBatch_EmptyInput(t *testing.T) {
	svc := newTestService(t, twoProviders, &fakeClient{dim: 4})

	vectors, degraded, err := svc.GenerateBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Nil(t, vectors)
}

func TestGenerateBatch_CancelledContext(t *testing.T) {
	client := &fakeClient{dim: 4}
	svc := newTestService(t, twoProviders, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.GenerateBatch(ctx, []string{"a"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.calls, "no provider call after cancellation")
}

func TestGenerateOne_BlankText(t *testing.T) {
	client := &fakeClient{dim: 4}
	svc := newTestService(t, twoProviders, client)

	for _, text := range []string{"", "   ", "\n\t"} {
		vec, degraded, err := svc.GenerateOne(context.Background(), text)

		require.NoError(t, err)
		assert.False(t, degraded)
		assert.Equal(t, make([]float32, 4), vec)
	}
	assert.Empty(t, client.calls, "blank text must not reach a provider")
}

func TestGenerateOne_NonBlank(t *testing.T) {
	client := &fakeClient{dim: 4}
	svc := newTestService(t, twoProviders, client)

	vec, degraded, err := svc.GenerateOne(context.Background(), "remember to deploy")

	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, vec, 4)
	assert.Equal(t, []string{"primary"}, client.calls)
}

func TestGenerateStreaming_ChunksInOrder(t *testing.T) {
	client := &fakeClient{dim: 4}
	svc := newTestService(t, twoProviders, client)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	var chunkSizes []int
	var chunkIndexes []int
	callback := func(chunkIndex int, vectors [][]float32, degraded bool) error {
		chunkIndexes = append(chunkIndexes, chunkIndex)
		chunkSizes = append(chunkSizes, len(vectors))
		assert.False(t, degraded)
		return nil
	}

	vectors, degraded, err := svc.GenerateStreamingWithCallback(context.Background(), texts, 100, callback)

	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Len(t, vectors, 250)
	assert.Equal(t, []int{0, 1, 2}, chunkIndexes)
	assert.Equal(t, []int{100, 100, 50}, chunkSizes)
}

func TestGenerateStreaming_CallbackErrorNonFatal(t *testing.T) {
	client := &fakeClient{dim: 4}
	svc := newTestService(t, twoProviders, client)

	calls := 0
	callback := func(int, [][]float32, bool) error {
		calls++
		return errors.New("persist failed")
	}

	vectors, _, err := svc.GenerateStreamingWithCallback(context.Background(), make([]string, 30), 10, callback)

	require.NoError(t, err)
	assert.Len(t, vectors, 30)
	assert.Equal(t, 3, calls, "all chunks processed despite callback errors")
}

func TestGenerateStreaming_DefaultChunkSize(t *testing.T) {
	client := &fakeClient{dim: 4}
	svc := newTestService(t, twoProviders, client)

	vectors, _, err := svc.GenerateStreaming(context.Background(), make([]string, 5), 0)

	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, []string{"primary"}, client.calls, "5 texts fit in one default chunk")
}

func TestProviderFailure_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	failure := &ProviderFailure{Provider: "p", Kind: FailureProvider, Err: inner}

	assert.ErrorIs(t, failure, inner)
	assert.Contains(t, failure.Error(), "p")
}

func TestService_Dimensions(t *testing.T) {
	p := &profile.Profile{EmbeddingDim: 8, EmbeddingRPS: 10}
	svc := NewService(NewPool(p), &fakeClient{dim: 8}, 8)

	assert.Equal(t, 8, svc.Dimensions())
}
