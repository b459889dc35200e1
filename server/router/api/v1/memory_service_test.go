package apiv1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbt123-123/firemark/ai/embedding"
	"github.com/hbt123-123/firemark/ai/memory"
	"github.com/hbt123-123/firemark/store"
)

// stubStore backs the handlers with just enough persistence for
// request-level tests.
type stubStore struct {
	nextID   int32
	memories []*store.Memory
}

func (s *stubStore) CreateMemory(_ context.Context, create *store.Memory) (*store.Memory, error) {
	s.nextID++
	create.ID = s.nextID
	s.memories = append(s.memories, create)
	return create, nil
}

func (s *stubStore) CreateMemories(ctx context.Context, creates []*store.Memory) ([]*store.Memory, error) {
	for _, create := range creates {
		if _, err := s.CreateMemory(ctx, create); err != nil {
			return nil, err
		}
	}
	return creates, nil
}

func (s *stubStore) ListMemories(_ context.Context, find *store.FindMemory) ([]*store.Memory, error) {
	matched := []*store.Memory{}
	for _, m := range s.memories {
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.CreatorID != nil && m.CreatorID != *find.CreatorID {
			continue
		}
		if find.Keyword != nil && !strings.Contains(m.Content, *find.Keyword) {
			continue
		}
		matched = append(matched, m)
	}
	return matched, nil
}

func (s *stubStore) DeleteMemory(_ context.Context, del *store.DeleteMemory) error {
	kept := s.memories[:0]
	for _, m := range s.memories {
		if del.ID != nil && m.ID == *del.ID &&
			(del.CreatorID == nil || m.CreatorID == *del.CreatorID) {
			continue
		}
		kept = append(kept, m)
	}
	s.memories = kept
	return nil
}

func (s *stubStore) DeleteMemoryEmbedding(context.Context, int32) error {
	return nil
}

func (s *stubStore) UpsertMemoryEmbedding(_ context.Context, emb *store.MemoryEmbedding) (*store.MemoryEmbedding, error) {
	return emb, nil
}

func (s *stubStore) UpsertMemoryEmbeddings(context.Context, []*store.MemoryEmbedding) error {
	return nil
}

func (s *stubStore) FindMemoriesWithoutEmbedding(context.Context, *store.FindMemoriesWithoutEmbedding) ([]*store.Memory, error) {
	return nil, nil
}

func (s *stubStore) VectorSearch(context.Context, *store.VectorSearchOptions) ([]*store.MemoryWithScore, error) {
	return nil, nil
}

func (s *stubStore) HybridSearch(context.Context, *store.HybridSearchOptions) ([]*store.MemoryWithScore, error) {
	return nil, nil
}

// stubEmbedder always reports degradation so search exercises the
// keyword fallback without a vector index.
type stubEmbedder struct{}

func (stubEmbedder) GenerateOne(context.Context, string) ([]float32, bool, error) {
	return make([]float32, 4), true, nil
}

func (stubEmbedder) GenerateBatch(_ context.Context, texts []string) ([][]float32, bool, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = make([]float32, 4)
	}
	return vectors, true, nil
}

func (stubEmbedder) GenerateStreamingWithCallback(_ context.Context, texts []string, _ int, _ embedding.ChunkCallback) ([][]float32, bool, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = make([]float32, 4)
	}
	return vectors, true, nil
}

type stubProviders struct{}

func (stubProviders) Info() []embedding.ProviderInfo {
	return []embedding.ProviderInfo{{Name: "openai", URL: "https://api.openai.com/v1", Model: "text-embedding-3-small"}}
}

func newTestHandler() (*echo.Echo, *stubStore) {
	e := echo.New()
	fs := &stubStore{}
	svc := memory.NewService(fs, stubEmbedder{})
	RegisterRoutes(e.Group("/api/v1"), svc, stubProviders{})
	return e, fs
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAddMemoryHandler(t *testing.T) {
	e, fs := newTestHandler()

	rec := doRequest(e, http.MethodPost, "/api/v1/memories",
		`{"creator_id": 1, "type": "task", "content": "deploy the api"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["id"])
	require.Len(t, fs.memories, 1)
	assert.Equal(t, "task", fs.memories[0].MemoryType)
}

func TestAddMemoryHandler_MissingFields(t *testing.T) {
	e, _ := newTestHandler()

	tests := []string{
		`{"type": "task", "content": "x"}`,
		`{"creator_id": 1, "content": "x"}`,
		`{"creator_id": 1, "type": "task"}`,
	}
	for _, body := range tests {
		rec := doRequest(e, http.MethodPost, "/api/v1/memories", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAddMemoryBatchHandler(t *testing.T) {
	e, fs := newTestHandler()

	rec := doRequest(e, http.MethodPost, "/api/v1/memories/batch",
		`{"entries": [
			{"creator_id": 1, "type": "task", "content": "a"},
			{"creator_id": 1, "type": "goal", "content": "b"}
		]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, fs.memories, 2)
}

func TestSearchMemoriesHandler_FallsBackToKeyword(t *testing.T) {
	e, _ := newTestHandler()

	rec := doRequest(e, http.MethodPost, "/api/v1/memories",
		`{"creator_id": 1, "type": "task", "content": "deploy the api"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/v1/memories/search?creator_id=1&q=deploy", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp memory.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "keyword", resp.Mode)
	assert.True(t, resp.Degraded)
	assert.Len(t, resp.Results, 1)
}

func TestSearchMemoriesHandler_Validation(t *testing.T) {
	e, _ := newTestHandler()

	rec := doRequest(e, http.MethodGet, "/api/v1/memories/search?q=deploy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/v1/memories/search?creator_id=1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMemoryHandler(t *testing.T) {
	e, fs := newTestHandler()

	rec := doRequest(e, http.MethodPost, "/api/v1/memories",
		`{"creator_id": 1, "type": "task", "content": "ephemeral"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodDelete, "/api/v1/memories/1?creator_id=1", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, fs.memories)
}

func TestDeleteMemoryHandler_WrongOwner(t *testing.T) {
	e, fs := newTestHandler()

	rec := doRequest(e, http.MethodPost, "/api/v1/memories",
		`{"creator_id": 1, "type": "task", "content": "mine"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodDelete, "/api/v1/memories/1?creator_id=2", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, fs.memories, 1)
}

func TestRebuildHandler_NothingToRebuild(t *testing.T) {
	e, _ := newTestHandler()

	rec := doRequest(e, http.MethodPost, "/api/v1/memories/rebuild", `{}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var report memory.RebuildReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 0, report.TotalMissing)
}

func TestListProvidersHandler(t *testing.T) {
	e, _ := newTestHandler()

	rec := doRequest(e, http.MethodGet, "/api/v1/embedding/providers", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openai")
	assert.NotContains(t, rec.Body.String(), "key")
}

func TestUserProfileHandler(t *testing.T) {
	e, _ := newTestHandler()

	rec := doRequest(e, http.MethodGet, "/api/v1/users/1/profile", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var profile memory.UserProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, 0, profile.TotalMemories)
}

func TestUserProfileHandler_InvalidID(t *testing.T) {
	e, _ := newTestHandler()

	rec := doRequest(e, http.MethodGet, "/api/v1/users/zero/profile", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
