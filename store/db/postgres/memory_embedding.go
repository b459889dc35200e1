package postgres

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hbt123-123/firemark/store"
)

func (d *DB) UpsertMemoryEmbedding(ctx context.Context, embedding *store.MemoryEmbedding) (*store.MemoryEmbedding, error) {
	stmt := `
		INSERT INTO memory_embedding (memory_id, creator_id, memory_type, embedding, created_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (memory_id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			created_ts = EXCLUDED.created_ts
		RETURNING id, created_ts
	`

	vector := pgvector.NewVector(embedding.Embedding)
	err := d.db.QueryRowContext(ctx, stmt,
		embedding.MemoryID,
		embedding.CreatorID,
		embedding.MemoryType,
		vector,
		embedding.CreatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert memory embedding")
	}
	return embedding, nil
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
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (memory_id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			created_ts = EXCLUDED.created_ts
	`
	for _, embedding := range embeddings {
		if _, err := tx.ExecContext(ctx, stmt,
			embedding.MemoryID,
			embedding.CreatorID,
			embedding.MemoryType,
			pgvector.NewVector(embedding.Embedding),
			embedding.CreatedTs,
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
	stmt := `DELETE FROM memory_embedding WHERE memory_id = ` + placeholder(1)
	if _, err := d.db.ExecContext(ctx, stmt, memoryID); err != nil {
		return errors.Wrap(err, "failed to delete memory embedding")
	}
	return nil
}

// FindMemoriesWithoutEmbedding finds memories that lack an embedding
// record, via a left anti-join.
func (d *DB) FindMemoriesWithoutEmbedding(ctx context.Context, find *store.FindMemoriesWithoutEmbedding) ([]*store.Memory, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	where, args := []string{"e.id IS NULL", "LENGTH(m.content) > 0"}, []any{}
	if find.CreatorID != nil {
		where, args = append(where, "m.creator_id = "+placeholder(len(args)+1)), append(args, *find.CreatorID)
	}
	if find.MemoryType != nil {
		where, args = append(where, "m.memory_type = "+placeholder(len(args)+1)), append(args, *find.MemoryType)
	}

	query := `
		SELECT m.id, m.uid, m.creator_id, m.memory_type, m.content, m.context, m.created_ts
		FROM memory m
		LEFT JOIN memory_embedding e ON m.id = e.memory_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY m.created_ts DESC
		LIMIT ` + placeholder(len(args)+1)
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

// VectorSearch performs similarity search with the pgvector cosine
// distance operator. The <=> operator computes cosine distance
// (1 - cosine_similarity), so similarity >= threshold becomes
// distance <= 1 - threshold, and ordering by distance ascending yields
// most similar first.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryWithScore, error) {
	vector := pgvector.NewVector(opts.Vector)

	where := []string{"e.creator_id = " + placeholder(1)}
	args := []any{opts.CreatorID}

	if opts.MemoryType != nil {
		where = append(where, "e.memory_type = "+placeholder(len(args)+1))
		args = append(args, *opts.MemoryType)
	}

	vecIdx := len(args) + 1
	args = append(args, vector)
	where = append(where, "(e.embedding <=> "+placeholder(vecIdx)+") <= "+placeholder(vecIdx+1))
	args = append(args, 1-opts.Threshold)

	query := `
		SELECT
			m.id, m.uid, m.creator_id, m.memory_type, m.content, m.context, m.created_ts,
			1 - (e.embedding <=> ` + placeholder(vecIdx) + `) AS score
		FROM memory_embedding e
		INNER JOIN memory m ON m.id = e.memory_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.embedding <=> ` + placeholder(vecIdx) + `, m.created_ts DESC
		LIMIT ` + placeholder(len(args)+1)
	args = append(args, opts.Limit)

	return d.scanScoredMemories(ctx, query, args...)
}

// HybridSearch pre-filters by case-insensitive substring on content,
// then ranks the filtered set by similarity without a threshold.
func (d *DB) HybridSearch(ctx context.Context, opts *store.HybridSearchOptions) ([]*store.MemoryWithScore, error) {
	vector := pgvector.NewVector(opts.Vector)

	where := []string{"e.creator_id = " + placeholder(1)}
	args := []any{opts.CreatorID}

	if opts.MemoryType != nil {
		where = append(where, "e.memory_type = "+placeholder(len(args)+1))
		args = append(args, *opts.MemoryType)
	}

	where = append(where, "m.content ILIKE "+placeholder(len(args)+1))
	args = append(args, "%"+opts.Keyword+"%")

	vecIdx := len(args) + 1
	args = append(args, vector)

	query := `
		SELECT
			m.id, m.uid, m.creator_id, m.memory_type, m.content, m.context, m.created_ts,
			1 - (e.embedding <=> ` + placeholder(vecIdx) + `) AS score
		FROM memory_embedding e
		INNER JOIN memory m ON m.id = e.memory_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.embedding <=> ` + placeholder(vecIdx) + `, m.created_ts DESC
		LIMIT ` + placeholder(len(args)+1)
	args = append(args, opts.Limit)

	return d.scanScoredMemories(ctx, query, args...)
}

func (d *DB) scanScoredMemories(ctx context.Context, query string, args ...any) ([]*store.MemoryWithScore, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run vector search")
	}
	defer rows.Close()

	results := []*store.MemoryWithScore{}
	for rows.Next() {
		var memory store.Memory
		var score float64
		if err := rows.Scan(
			&memory.ID,
			&memory.UID,
			&memory.CreatorID,
			&memory.MemoryType,
			&memory.Content,
			&memory.Context,
			&memory.CreatedTs,
			&score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		results = append(results, &store.MemoryWithScore{Memory: &memory, Score: score})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
