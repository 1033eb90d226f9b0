package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/recommender/internal/embedding"
	"github.com/hyperengineering/recommender/internal/types"
)

// PutFeatures inserts catalog features in one transaction. Feature
// embeddings are immutable, so an id that already exists fails the call.
func (s *SQLiteStore) PutFeatures(ctx context.Context, ns types.Namespace, features []types.Feature) (_ int, err error) {
	defer observe("put_features", time.Now(), &err)

	t, err := tablesFor(ns)
	if err != nil {
		return 0, err
	}
	if len(features) == 0 {
		return 0, nil
	}
	for _, f := range features {
		if len(f.Embedding) == 0 {
			return 0, fmt.Errorf("%w: feature %d has no components", ErrInvalidEmbedding, f.ID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+t.features+" (id, description, embedding) VALUES (?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", classify(err))
	}
	defer stmt.Close()

	for _, f := range features {
		var desc sql.NullString
		if f.Description != nil {
			desc = sql.NullString{String: *f.Description, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, f.ID, desc, embedding.Pack(f.Embedding)); err != nil {
			return 0, fmt.Errorf("insert feature %d: %w", f.ID, classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", classify(err))
	}
	return len(features), nil
}

// FetchFeatures returns the features with the given ids ordered by id.
// Unknown ids are omitted.
func (s *SQLiteStore) FetchFeatures(ctx context.Context, ns types.Namespace, featureIDs []int64) (_ []types.Feature, err error) {
	defer observe("fetch_features", time.Now(), &err)

	t, err := tablesFor(ns)
	if err != nil {
		return nil, err
	}
	return fetchFeatures(ctx, s.db, t, featureIDs)
}

func fetchFeatures(ctx context.Context, q querier, t tables, ids []int64) ([]types.Feature, error) {
	if len(ids) == 0 {
		return []types.Feature{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := q.QueryContext(ctx,
		"SELECT id, description, embedding FROM "+t.features+" WHERE id IN ("+placeholders+") ORDER BY id",
		args...)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", classify(err))
	}
	defer rows.Close()

	features := make([]types.Feature, 0, len(ids))
	for rows.Next() {
		var (
			f    types.Feature
			desc sql.NullString
			blob []byte
		)
		if err := rows.Scan(&f.ID, &desc, &blob); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		if desc.Valid {
			d := desc.String
			f.Description = &d
		}
		if f.Embedding, err = embedding.Unpack(blob); err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.ID, err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", classify(err))
	}
	return features, nil
}
