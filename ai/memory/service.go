// Package memory is the long-term memory orchestrator: it keeps
// relational memory records and their vector embeddings consistent,
// and answers retrieval queries with graceful degradation from
// semantic to keyword search.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hbt123-123/firemark/ai/embedding"
	"github.com/hbt123-123/firemark/store"
)

// DefaultSearchLimit is the result count used when a caller passes no limit.
const DefaultSearchLimit = 5

// defaultSimilarityThreshold cuts off weak semantic matches.
const defaultSimilarityThreshold = 0.6

// rebuildScanLimit bounds how many missing records one rebuild run picks up.
const rebuildScanLimit = 1000

// Store is the persistence surface the orchestrator needs.
// *store.Store satisfies it.
type Store interface {
	CreateMemory(ctx context.Context, create *store.Memory) (*store.Memory, error)
	CreateMemories(ctx context.Context, creates []*store.Memory) ([]*store.Memory, error)
	ListMemories(ctx context.Context, find *store.FindMemory) ([]*store.Memory, error)
	DeleteMemory(ctx context.Context, delete *store.DeleteMemory) error
	DeleteMemoryEmbedding(ctx context.Context, memoryID int32) error
	UpsertMemoryEmbedding(ctx context.Context, embedding *store.MemoryEmbedding) (*store.MemoryEmbedding, error)
	UpsertMemoryEmbeddings(ctx context.Context, embeddings []*store.MemoryEmbedding) error
	FindMemoriesWithoutEmbedding(ctx context.Context, find *store.FindMemoriesWithoutEmbedding) ([]*store.Memory, error)
	VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryWithScore, error)
	HybridSearch(ctx context.Context, opts *store.HybridSearchOptions) ([]*store.MemoryWithScore, error)
}

// Embedder is the vector generation surface the orchestrator needs.
// *embedding.Service satisfies it.
type Embedder interface {
	GenerateOne(ctx context.Context, text string) ([]float32, bool, error)
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, bool, error)
	GenerateStreamingWithCallback(ctx context.Context, texts []string, chunkSize int, callback embedding.ChunkCallback) ([][]float32, bool, error)
}

// Service is the memory orchestrator. It is the only component external
// collaborators (the conversational agent, the reflection job) call.
type Service struct {
	store    Store
	embedder Embedder
}

// NewService creates a memory Service.
func NewService(store Store, embedder Embedder) *Service {
	return &Service{store: store, embedder: embedder}
}

// Entry is one memory to add in a batch.
type Entry struct {
	CreatorID  int32
	MemoryType string
	Content    any
	Context    map[string]any
}

// Result is one retrieved memory. Similarity is in [0,1] for semantic
// matches and the sentinel 1.0 for keyword-only matches, which carry no
// similarity semantics.
type Result struct {
	ID         int32   `json:"id"`
	UID        string  `json:"uid"`
	MemoryType string  `json:"type"`
	Content    any     `json:"content"`
	Context    any     `json:"context,omitempty"`
	CreatedTs  int64   `json:"created_ts"`
	Similarity float64 `json:"similarity"`
}

// SearchResponse carries retrieval results plus degradation signals:
// Mode reports which path produced the results and Degraded is set when
// the semantic path fell back or fell open.
type SearchResponse struct {
	Results  []Result `json:"results"`
	Mode     string   `json:"mode"` // "semantic" | "keyword" | "hybrid"
	Degraded bool     `json:"degraded"`
}

// UserProfile aggregates a user's recent memories. Pure aggregation, no
// ranking and no embeddings involved.
type UserProfile struct {
	Preferences       map[string]any `json:"preferences"`
	RecentGoals       []any          `json:"recent_goals"`
	RecentReflections []any          `json:"recent_reflections"`
	TotalMemories     int            `json:"total_memories"`
}

// RebuildReport is the immediate answer of RebuildMissingEmbeddings;
// the repair itself runs in the background.
type RebuildReport struct {
	JobID        string `json:"job_id"`
	TotalMissing int    `json:"total_missing"`
	Status       string `json:"status"`
}

// canonicalContent normalizes a memory payload. A plain string is
// wrapped as {"text": ...}; anything else is stored as its canonical
// JSON encoding, which is also the text handed to the embedder.
func canonicalContent(content any) (stored string, text string, err error) {
	if s, ok := content.(string); ok {
		wrapped, err := json.Marshal(map[string]string{"text": s})
		if err != nil {
			return "", "", errors.Wrap(err, "failed to encode content")
		}
		return string(wrapped), s, nil
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to encode content")
	}
	return string(encoded), string(encoded), nil
}

func encodeContext(contextMap map[string]any) (string, error) {
	if len(contextMap) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(contextMap)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode context")
	}
	return string(encoded), nil
}

// AddMemory inserts a memory record and, when embed is true, generates
// and persists its embedding. The relational insert and the vector
// insert are deliberately not one transaction: embedding generation is
// a network call and must not hold a transaction open. A failure after
// the relational insert leaves an orphan memory without embedding,
// which the rebuild job repairs later.
func (s *Service) AddMemory(ctx context.Context, creatorID int32, memoryType string, content any, contextMap map[string]any, embed bool) (int32, error) {
	stored, text, err := canonicalContent(content)
	if err != nil {
		return 0, err
	}
	contextJSON, err := encodeContext(contextMap)
	if err != nil {
		return 0, err
	}

	memory, err := s.store.CreateMemory(ctx, &store.Memory{
		UID:        shortuuid.New(),
		CreatorID:  creatorID,
		MemoryType: memoryType,
		Content:    stored,
		Context:    contextJSON,
		CreatedTs:  time.Now().Unix(),
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to create memory")
	}

	if embed {
		s.embedOne(ctx, memory, text)
	}
	return memory.ID, nil
}

// embedOne generates and stores the embedding for one memory. Failures
// are logged, never propagated: the memory stays in the
// created-without-embedding state until the rebuild job repairs it.
func (s *Service) embedOne(ctx context.Context, memory *store.Memory, text string) {
	vector, degraded, err := s.embedder.GenerateOne(ctx, text)
	if err != nil {
		slog.Warn("embedding generation aborted", "memory", memory.ID, "error", err)
		return
	}
	if degraded {
		slog.Warn("embedding degraded, leaving memory without vector", "memory", memory.ID)
		return
	}

	if _, err := s.store.UpsertMemoryEmbedding(ctx, &store.MemoryEmbedding{
		MemoryID:   memory.ID,
		CreatorID:  memory.CreatorID,
		MemoryType: memory.MemoryType,
		Embedding:  vector,
		CreatedTs:  time.Now().Unix(),
	}); err != nil {
		slog.Error("failed to store memory embedding", "memory", memory.ID, "error", err)
	}
}

// AddMemoryBatch bulk-inserts memories, then generates all their
// embeddings with one batch call and bulk-inserts the vectors. The same
// orphan tolerance as AddMemory applies when the embedding step fails.
func (s *Service) AddMemoryBatch(ctx context.Context, entries []Entry) ([]int32, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	creates := make([]*store.Memory, 0, len(entries))
	texts := make([]string, 0, len(entries))
	now := time.Now().Unix()

	for _, entry := range entries {
		stored, text, err := canonicalContent(entry.Content)
		if err != nil {
			return nil, err
		}
		contextJSON, err := encodeContext(entry.Context)
		if err != nil {
			return nil, err
		}
		creates = append(creates, &store.Memory{
			UID:        shortuuid.New(),
			CreatorID:  entry.CreatorID,
			MemoryType: entry.MemoryType,
			Content:    stored,
			Context:    contextJSON,
			CreatedTs:  now,
		})
		texts = append(texts, text)
	}

	memories, err := s.store.CreateMemories(ctx, creates)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create memory batch")
	}
	ids := make([]int32, len(memories))
	for i, memory := range memories {
		ids[i] = memory.ID
	}

	vectors, degraded, err := s.embedder.GenerateBatch(ctx, texts)
	if err != nil {
		slog.Warn("batch embedding aborted", "memories", len(ids), "error", err)
		return ids, nil
	}
	if degraded {
		slog.Warn("batch embedding degraded, leaving memories without vectors", "memories", len(ids))
		return ids, nil
	}

	embeddings := make([]*store.MemoryEmbedding, len(memories))
	for i, memory := range memories {
		embeddings[i] = &store.MemoryEmbedding{
			MemoryID:   memory.ID,
			CreatorID:  memory.CreatorID,
			MemoryType: memory.MemoryType,
			Embedding:  vectors[i],
			CreatedTs:  now,
		}
	}
	if err := s.store.UpsertMemoryEmbeddings(ctx, embeddings); err != nil {
		slog.Error("failed to store batch embeddings", "memories", len(ids), "error", err)
	}
	return ids, nil
}

// ErrMemoryNotFound reports a delete against a memory the caller does
// not own or that does not exist.
var ErrMemoryNotFound = errors.New("memory not found")

// DeleteMemory removes a memory and its embedding. Ownership is checked
// first; the explicit embedding delete afterwards covers stores where
// the cascade is not enforced.
func (s *Service) DeleteMemory(ctx context.Context, creatorID, memoryID int32) error {
	owned, err := s.store.ListMemories(ctx, &store.FindMemory{ID: &memoryID, CreatorID: &creatorID, Limit: 1})
	if err != nil {
		return errors.Wrap(err, "failed to look up memory")
	}
	if len(owned) == 0 {
		return ErrMemoryNotFound
	}

	if err := s.store.DeleteMemory(ctx, &store.DeleteMemory{ID: &memoryID, CreatorID: &creatorID}); err != nil {
		return errors.Wrap(err, "failed to delete memory")
	}
	if err := s.store.DeleteMemoryEmbedding(ctx, memoryID); err != nil {
		return errors.Wrap(err, "failed to delete memory embedding")
	}
	return nil
}

// SearchMemories retrieves memories matching the query. With
// useSemantic, the query is embedded and ranked by vector similarity;
// any degradation on that path falls back to a keyword scan, invisible
// to the caller except through the response's Degraded flag and result
// quality.
func (s *Service) SearchMemories(ctx context.Context, creatorID int32, query string, memoryType *string, useSemantic bool, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	if !useSemantic {
		return s.keywordSearch(ctx, creatorID, query, memoryType, limit, false)
	}

	vector, degraded, err := s.embedder.GenerateOne(ctx, query)
	if err != nil {
		return nil, err
	}
	if degraded {
		slog.Warn("query embedding degraded, falling back to keyword search", "creator", creatorID)
		return s.keywordSearch(ctx, creatorID, query, memoryType, limit, true)
	}

	scored, err := s.store.VectorSearch(ctx, &store.VectorSearchOptions{
		Vector:     vector,
		CreatorID:  creatorID,
		MemoryType: memoryType,
		Limit:      limit,
		Threshold:  defaultSimilarityThreshold,
	})
	if err != nil {
		slog.Warn("vector search failed, falling back to keyword search", "creator", creatorID, "error", err)
		return s.keywordSearch(ctx, creatorID, query, memoryType, limit, true)
	}

	return &SearchResponse{
		Results: toResults(scored),
		Mode:    "semantic",
	}, nil
}

// SearchMemoriesHybrid pre-filters by keyword, then ranks the filtered
// set by similarity to the query. Used when a caller wants "relevant
// AND on-topic" rather than "most similar in the whole corpus".
func (s *Service) SearchMemoriesHybrid(ctx context.Context, creatorID int32, query, keyword string, memoryType *string, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vector, degraded, err := s.embedder.GenerateOne(ctx, query)
	if err != nil {
		return nil, err
	}
	if degraded {
		slog.Warn("query embedding degraded, falling back to keyword search", "creator", creatorID)
		return s.keywordSearch(ctx, creatorID, keyword, memoryType, limit, true)
	}

	scored, err := s.store.HybridSearch(ctx, &store.HybridSearchOptions{
		Vector:     vector,
		CreatorID:  creatorID,
		Keyword:    keyword,
		MemoryType: memoryType,
		Limit:      limit,
	})
	if err != nil {
		slog.Warn("hybrid search failed, falling back to keyword search", "creator", creatorID, "error", err)
		return s.keywordSearch(ctx, creatorID, keyword, memoryType, limit, true)
	}

	return &SearchResponse{
		Results: toResults(scored),
		Mode:    "hybrid",
	}, nil
}

func (s *Service) keywordSearch(ctx context.Context, creatorID int32, keyword string, memoryType *string, limit int, degraded bool) (*SearchResponse, error) {
	memories, err := s.store.ListMemories(ctx, &store.FindMemory{
		CreatorID:  &creatorID,
		MemoryType: memoryType,
		Keyword:    &keyword,
		Limit:      limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "keyword search failed")
	}

	results := make([]Result, 0, len(memories))
	for _, memory := range memories {
		result := toResult(memory)
		result.Similarity = 1.0 // Sentinel: keyword matches carry no similarity semantics.
		results = append(results, result)
	}

	return &SearchResponse{
		Results:  results,
		Mode:     "keyword",
		Degraded: degraded,
	}, nil
}

// GetRecentMemories lists the most recent memories by creation time.
func (s *Service) GetRecentMemories(ctx context.Context, creatorID int32, memoryType *string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	memories, err := s.store.ListMemories(ctx, &store.FindMemory{
		CreatorID:  &creatorID,
		MemoryType: memoryType,
		Limit:      limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recent memories")
	}

	results := make([]Result, 0, len(memories))
	for _, memory := range memories {
		results = append(results, toResult(memory))
	}
	return results, nil
}

// GetUserProfile aggregates the user's most recent memories into merged
// preference key/value pairs, recent goals, recent reflections, and a
// total count.
func (s *Service) GetUserProfile(ctx context.Context, creatorID int32) (*UserProfile, error) {
	recent, err := s.GetRecentMemories(ctx, creatorID, nil, 50)
	if err != nil {
		return nil, err
	}

	profile := &UserProfile{
		Preferences:       map[string]any{},
		RecentGoals:       []any{},
		RecentReflections: []any{},
		TotalMemories:     len(recent),
	}

	for _, memory := range recent {
		switch memory.MemoryType {
		case "preference":
			if m, ok := memory.Content.(map[string]any); ok {
				for k, v := range m {
					profile.Preferences[k] = v
				}
			} else {
				profile.Preferences[fmt.Sprint(memory.Content)] = true
			}
		case "goal":
			if len(profile.RecentGoals) < 5 {
				profile.RecentGoals = append(profile.RecentGoals, memory.Content)
			}
		case "reflection":
			if len(profile.RecentReflections) < 5 {
				profile.RecentReflections = append(profile.RecentReflections, memory.Content)
			}
		}
	}
	return profile, nil
}

// RebuildMissingEmbeddings finds memories lacking an embedding record,
// optionally scoped by owner and type, and regenerates their vectors in
// the background. The caller receives only the count of records queued;
// the job is idempotent and re-running it with no new memories produces
// no additional embeddings.
func (s *Service) RebuildMissingEmbeddings(ctx context.Context, creatorID *int32, memoryType *string) (*RebuildReport, error) {
	missing, err := s.store.FindMemoriesWithoutEmbedding(ctx, &store.FindMemoriesWithoutEmbedding{
		CreatorID:  creatorID,
		MemoryType: memoryType,
		Limit:      rebuildScanLimit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to find memories without embedding")
	}

	report := &RebuildReport{
		JobID:        uuid.NewString(),
		TotalMissing: len(missing),
		Status:       "rebuilding in background",
	}
	if len(missing) == 0 {
		report.Status = "nothing to rebuild"
		return report, nil
	}

	// Detach from the request context: the repair outlives the caller.
	jobCtx := context.WithoutCancel(ctx)
	go s.rebuild(jobCtx, report.JobID, missing)

	return report, nil
}

func (s *Service) rebuild(ctx context.Context, jobID string, missing []*store.Memory) {
	texts := make([]string, len(missing))
	for i, memory := range missing {
		texts[i] = embeddingText(memory.Content)
	}

	rebuilt := 0
	_, _, err := s.embedder.GenerateStreamingWithCallback(ctx, texts, embedding.DefaultChunkSize,
		func(chunkIndex int, vectors [][]float32, degraded bool) error {
			if degraded {
				slog.Warn("rebuild chunk degraded, skipping persistence", "job", jobID, "chunk", chunkIndex)
				return nil
			}

			start := chunkIndex * embedding.DefaultChunkSize
			now := time.Now().Unix()
			embeddings := make([]*store.MemoryEmbedding, len(vectors))
			for i, vector := range vectors {
				memory := missing[start+i]
				embeddings[i] = &store.MemoryEmbedding{
					MemoryID:   memory.ID,
					CreatorID:  memory.CreatorID,
					MemoryType: memory.MemoryType,
					Embedding:  vector,
					CreatedTs:  now,
				}
			}
			if err := s.store.UpsertMemoryEmbeddings(ctx, embeddings); err != nil {
				return errors.Wrapf(err, "failed to persist rebuild chunk %d", chunkIndex)
			}
			rebuilt += len(embeddings)
			return nil
		})
	if err != nil {
		slog.Error("embedding rebuild aborted", "job", jobID, "rebuilt", rebuilt, "error", err)
		return
	}
	slog.Info("embedding rebuild finished", "job", jobID, "rebuilt", rebuilt, "missing", len(missing))
}

// embeddingText recovers the embedder input from stored content:
// {"text": ...} unwraps to the raw string, everything else embeds as
// its canonical JSON.
func embeddingText(stored string) string {
	var wrapped map[string]any
	if err := json.Unmarshal([]byte(stored), &wrapped); err == nil && len(wrapped) == 1 {
		if text, ok := wrapped["text"].(string); ok {
			return text
		}
	}
	return stored
}

func toResult(memory *store.Memory) Result {
	result := Result{
		ID:         memory.ID,
		UID:        memory.UID,
		MemoryType: memory.MemoryType,
		CreatedTs:  memory.CreatedTs,
	}

	var content any
	if err := json.Unmarshal([]byte(memory.Content), &content); err != nil {
		content = memory.Content
	}
	result.Content = content

	if memory.Context != "" {
		var contextValue any
		if err := json.Unmarshal([]byte(memory.Context), &contextValue); err == nil {
			result.Context = contextValue
		}
	}
	return result
}

func toResults(scored []*store.MemoryWithScore) []Result {
	results := make([]Result, 0, len(scored))
	for _, item := range scored {
		result := toResult(item.Memory)
		result.Similarity = item.Score
		results = append(results, result)
	}
	return results
}
