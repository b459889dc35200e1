package sqlite

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hbt123-123/firemark/ai/embedding"
	"github.com/hbt123-123/firemark/store"
)

func (d *DB) UpsertMemoryEmbedding(ctx context.Context, emb *store.MemoryEmbedding) (*store.MemoryEmbedding, error) {
	stmt := `
		INSERT INTO memory_embedding (memory_id, creator_id, memory_type, embedding, created_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (memory_id) DO UPDATE SET
			embedding = excluded.embedding,
			created_ts = excluded.created_ts
		RETURNING id, created_ts
	`
	err := d.db.QueryRowContext(ctx, stmt,
		emb.MemoryID,
		emb.CreatorID,
		emb.MemoryType,
		embedding.Encode(emb.Embedding),
		emb.CreatedTs,
	).Scan(&emb.ID, &emb.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert memory embedding")
	}
	return emb, nil
}

func (d *DB) UpsertMemoryEmbeddings(ctx context.Context, embeddings []*store.MemoryEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	stmt := `
		INSERT INTO memory_embedding (memory_id, creator_id, memory_type, embedding, created_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (memory_id) DO UPDATE SET
			embedding = excluded.embedding,
			created_ts = excluded.created_ts
	`
	for _, emb := range embeddings {
		if _, err := tx.ExecContext(ctx, stmt,
			emb.MemoryID,
			emb.CreatorID,
			emb.MemoryType,
			embedding.Encode(emb.Embedding),
			emb.CreatedTs,
		); err != nil {
			return errors.Wrap(err, "failed to upsert memory embedding in batch")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit embedding batch")
	}
	return nil
}

func (d *DB) DeleteMemoryEmbedding(ctx context.Context, memoryID int32) error {
	stmt := `DELETE FROM memory_embedding WHERE memory_id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, memoryID); err != nil {
		return errors.Wrap(err, "failed to delete memory embedding")
	}
	return nil
}

func (d *DB) FindMemoriesWithoutEmbedding(ctx context.Context, find *store.FindMemoriesWithoutEmbedding) ([]*store.Memory, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	where, args := []string{"e.id IS NULL", "LENGTH(m.content) > 0"}, []any{}
	if find.CreatorID != nil {
		where, args = append(where, "m.creator_id = ?"), append(args, *find.CreatorID)
	}
	if find.MemoryType != nil {
		where, args = append(where, "m.memory_type = ?"), append(args, *find.MemoryType)
	}

	query := `
		SELECT m.id, m.uid, m.creator_id, m.memory_type, m.content, m.context, m.created_ts
		FROM memory m
		LEFT JOIN memory_embedding e ON m.id = e.memory_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY m.created_ts DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find memories without embedding")
	}
	defer rows.Close()

	list := []*store.Memory{}
	for rows.Next() {
		var memory store.Memory
		if err := rows.Scan(
			&memory.ID,
			&memory.UID,
			&memory.CreatorID,
			&memory.MemoryType,
			&memory.Content,
			&memory.Context,
			&memory.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory")
		}
		list = append(list, &memory)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

type candidate struct {
	memory *store.Memory
	vector []float32
}

// VectorSearch loads the owner's candidate vectors and computes cosine
// similarity in the application layer (O(n) linear scan). A record with
// a malformed blob is skipped, not fatal to the whole search.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryWithScore, error) {
	candidates, err := d.loadCandidates(ctx, opts.CreatorID, opts.MemoryType, "")
	if err != nil {
		return nil, err
	}
	return rankCandidates(candidates, opts.Vector, opts.Threshold, opts.Limit), nil
}

// noThreshold disables the similarity floor. Hybrid search ranks the
// keyword-filtered set as a whole, including negative similarities.
var noThreshold = math.Inf(-1)

// HybridSearch pre-filters candidates by case-insensitive substring on
// content, then ranks by similarity without a threshold.
func (d *DB) HybridSearch(ctx context.Context, opts *store.HybridSearchOptions) ([]*store.MemoryWithScore, error) {
	candidates, err := d.loadCandidates(ctx, opts.CreatorID, opts.MemoryType, opts.Keyword)
	if err != nil {
		return nil, err
	}
	return rankCandidates(candidates, opts.Vector, noThreshold, opts.Limit), nil
}

func (d *DB) loadCandidates(ctx context.Context, creatorID int32, memoryType *string, keyword string) ([]candidate, error) {
	where, args := []string{"e.creator_id = ?"}, []any{creatorID}
	if memoryType != nil {
		where, args = append(where, "e.memory_type = ?"), append(args, *memoryType)
	}

	query := `
		SELECT m.id, m.uid, m.creator_id, m.memory_type, m.content, m.context, m.created_ts, e.embedding
		FROM memory_embedding e
		INNER JOIN memory m ON m.id = e.memory_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY m.created_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load vector search candidates")
	}
	defer rows.Close()

	needle := strings.ToLower(keyword)
	candidates := []candidate{}
	for rows.Next() {
		var memory store.Memory
		var blob []byte
		if err := rows.Scan(
			&memory.ID,
			&memory.UID,
			&memory.CreatorID,
			&memory.MemoryType,
			&memory.Content,
			&memory.Context,
			&memory.CreatedTs,
			&blob,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan candidate")
		}

		if needle != "" && !strings.Contains(strings.ToLower(memory.Content), needle) {
			continue
		}

		vector, err := embedding.Decode(blob)
		if err != nil {
			// Malformed blob is fatal to this record only.
			continue
		}
		candidates = append(candidates, candidate{memory: &memory, vector: vector})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

func rankCandidates(candidates []candidate, query []float32, threshold float64, limit int) []*store.MemoryWithScore {
	scored := []*store.MemoryWithScore{}
	for _, cand := range candidates {
		score := embedding.CosineSimilarity(query, cand.vector)
		if score < threshold {
			continue
		}
		scored = append(scored, &store.MemoryWithScore{Memory: cand.memory, Score: score})
	}

	// Similarity descending, ties broken by most recent first.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.CreatedTs > scored[j].Memory.CreatedTs
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
