package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hbt123-123/firemark/store"
)

func (d *DB) CreateMemory(ctx context.Context, create *store.Memory) (*store.Memory, error) {
	stmt := `
		INSERT INTO memory (uid, creator_id, memory_type, content, context, created_ts)
		VALUES (` + placeholders(6) + `)
		RETURNING id, created_ts
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.CreatorID,
		create.MemoryType,
		create.Content,
		create.Context,
		create.CreatedTs,
	).Scan(&create.ID, &create.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create memory")
	}
	return create, nil
}

func (d *DB) CreateMemories(ctx context.Context, creates []*store.Memory) ([]*store.Memory, error) {
	if len(creates) == 0 {
		return creates, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	stmt := `
		INSERT INTO memory (uid, creator_id, memory_type, content, context, created_ts)
		VALUES (` + placeholders(6) + `)
		RETURNING id, created_ts
	`
	for _, create := range creates {
		err := tx.QueryRowContext(ctx, stmt,
			create.UID,
			create.CreatorID,
			create.MemoryType,
			create.Content,
			create.Context,
			create.CreatedTs,
		).Scan(&create.ID, &create.CreatedTs)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create memory in batch")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit memory batch")
	}
	return creates, nil
}

func (d *DB) ListMemories(ctx context.Context, find *store.FindMemory) ([]*store.Memory, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *find.CreatorID)
	}
	if find.MemoryType != nil {
		where, args = append(where, "memory_type = "+placeholder(len(args)+1)), append(args, *find.MemoryType)
	}
	if find.Keyword != nil {
		where, args = append(where, "content ILIKE "+placeholder(len(args)+1)), append(args, "%"+*find.Keyword+"%")
	}

	query := `
		SELECT id, uid, creator_id, memory_type, content, context, created_ts
		FROM memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC
	`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memories")
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

func (d *DB) DeleteMemory(ctx context.Context, delete *store.DeleteMemory) error {
	where, args := []string{"1 = 1"}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *delete.ID)
	}
	if delete.CreatorID != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *delete.CreatorID)
	}
	if len(where) == 1 {
		return errors.New("refusing to delete memories without a condition")
	}

	stmt := `DELETE FROM memory WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete memory")
	}
	return nil
}
