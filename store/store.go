// Package store provides database access to memory and embedding
// records through a driver-agnostic facade.
package store

import (
	"context"

	"github.com/hbt123-123/firemark/internal/profile"
)

// Driver is the database driver contract. The relational and vector
// writes are independently transactional resources: no two-phase commit
// is attempted across them.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateMemory(ctx context.Context, create *Memory) (*Memory, error)
	CreateMemories(ctx context.Context, creates []*Memory) ([]*Memory, error)
	ListMemories(ctx context.Context, find *FindMemory) ([]*Memory, error)
	DeleteMemory(ctx context.Context, delete *DeleteMemory) error

	UpsertMemoryEmbedding(ctx context.Context, embedding *MemoryEmbedding) (*MemoryEmbedding, error)
	UpsertMemoryEmbeddings(ctx context.Context, embeddings []*MemoryEmbedding) error
	DeleteMemoryEmbedding(ctx context.Context, memoryID int32) error
	FindMemoriesWithoutEmbedding(ctx context.Context, find *FindMemoriesWithoutEmbedding) ([]*Memory, error)

	VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*MemoryWithScore, error)
	HybridSearch(ctx context.Context, opts *HybridSearchOptions) ([]*MemoryWithScore, error)
}

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateMemory(ctx context.Context, create *Memory) (*Memory, error) {
	return s.driver.CreateMemory(ctx, create)
}

// CreateMemories bulk-inserts memories, reducing round trips versus
// calling CreateMemory in a loop.
func (s *Store) CreateMemories(ctx context.Context, creates []*Memory) ([]*Memory, error) {
	return s.driver.CreateMemories(ctx, creates)
}

func (s *Store) ListMemories(ctx context.Context, find *FindMemory) ([]*Memory, error) {
	return s.driver.ListMemories(ctx, find)
}

func (s *Store) DeleteMemory(ctx context.Context, delete *DeleteMemory) error {
	return s.driver.DeleteMemory(ctx, delete)
}
