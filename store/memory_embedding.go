package store

import (
	"context"

	"github.com/pkg/errors"
)

// MemoryEmbedding represents the vector embedding of a memory. At most
// one embedding exists per memory; a memory may have none, which is the
// expected repairable inconsistency rather than a corruption.
type MemoryEmbedding struct {
	ID       int32
	MemoryID int32
	// CreatorID and MemoryType are denormalized from the memory record
	// for filter pushdown without a join.
	CreatorID  int32
	MemoryType string
	Embedding  []float32
	CreatedTs  int64
}

// FindMemoriesWithoutEmbedding is the find condition for memories that
// lack an embedding record.
type FindMemoriesWithoutEmbedding struct {
	CreatorID  *int32
	MemoryType *string
	Limit      int
}

// MemoryWithScore is a vector search result: the memory joined with its
// similarity score. A keyword-only match carries the sentinel score 1.0,
// which has no similarity semantics.
type MemoryWithScore struct {
	Memory *Memory
	Score  float64
}

// VectorSearchOptions are the options for similarity search over
// memory embeddings.
type VectorSearchOptions struct {
	Vector     []float32
	CreatorID  int32
	MemoryType *string
	Limit      int
	// Threshold drops candidates with similarity below this value.
	Threshold float64
}

// Validate validates the VectorSearchOptions.
func (o *VectorSearchOptions) Validate() error {
	if o.CreatorID <= 0 {
		return errors.Errorf("invalid CreatorID: %d", o.CreatorID)
	}
	if len(o.Vector) == 0 {
		return errors.Errorf("vector cannot be empty")
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 10 // Default limit
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large (max 1000): %d", o.Limit)
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return errors.Errorf("threshold must be in [0,1]: %f", o.Threshold)
	}
	return nil
}

// HybridSearchOptions are the options for hybrid search: a case-
// insensitive keyword pre-filter followed by similarity ranking. No
// similarity threshold applies; the keyword filter already narrows the
// candidate set.
type HybridSearchOptions struct {
	Vector     []float32
	CreatorID  int32
	Keyword    string
	MemoryType *string
	Limit      int
}

// Validate validates the HybridSearchOptions.
func (o *HybridSearchOptions) Validate() error {
	if o.CreatorID <= 0 {
		return errors.Errorf("invalid CreatorID: %d", o.CreatorID)
	}
	if len(o.Vector) == 0 {
		return errors.Errorf("vector cannot be empty")
	}
	if o.Keyword == "" {
		return errors.Errorf("keyword cannot be empty")
	}
	if o.Limit <= 0 {
		o.Limit = 10
	}
	return nil
}

// UpsertMemoryEmbedding inserts or replaces a memory embedding.
func (s *Store) UpsertMemoryEmbedding(ctx context.Context, embedding *MemoryEmbedding) (*MemoryEmbedding, error) {
	if err := s.validateDimension(embedding.Embedding); err != nil {
		return nil, err
	}
	return s.driver.UpsertMemoryEmbedding(ctx, embedding)
}

// UpsertMemoryEmbeddings bulk-inserts memory embeddings.
func (s *Store) UpsertMemoryEmbeddings(ctx context.Context, embeddings []*MemoryEmbedding) error {
	for _, embedding := range embeddings {
		if err := s.validateDimension(embedding.Embedding); err != nil {
			return err
		}
	}
	return s.driver.UpsertMemoryEmbeddings(ctx, embeddings)
}

// DeleteMemoryEmbedding deletes the embedding of a memory.
func (s *Store) DeleteMemoryEmbedding(ctx context.Context, memoryID int32) error {
	return s.driver.DeleteMemoryEmbedding(ctx, memoryID)
}

// FindMemoriesWithoutEmbedding finds memories that have no embedding record.
func (s *Store) FindMemoriesWithoutEmbedding(ctx context.Context, find *FindMemoriesWithoutEmbedding) ([]*Memory, error) {
	return s.driver.FindMemoriesWithoutEmbedding(ctx, find)
}

// VectorSearch performs similarity search over memory embeddings,
// scoped to one owner. Results are ordered by similarity descending,
// ties broken by most recent creation time.
func (s *Store) VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*MemoryWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateDimension(opts.Vector); err != nil {
		return nil, err
	}
	return s.driver.VectorSearch(ctx, opts)
}

// HybridSearch pre-filters by keyword, then ranks by similarity.
func (s *Store) HybridSearch(ctx context.Context, opts *HybridSearchOptions) ([]*MemoryWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateDimension(opts.Vector); err != nil {
		return nil, err
	}
	return s.driver.HybridSearch(ctx, opts)
}

func (s *Store) validateDimension(vec []float32) error {
	if len(vec) != s.profile.EmbeddingDim {
		return errors.Errorf("vector dimension mismatch: got %d, want %d", len(vec), s.profile.EmbeddingDim)
	}
	return nil
}
