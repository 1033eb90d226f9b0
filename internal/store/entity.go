package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/recommender/internal/embedding"
	"github.com/hyperengineering/recommender/internal/types"
)

// UpsertEntityFeatures creates the entity if needed and links it to each
// feature. An unknown feature id is an integrity violation. Nothing is
// written unless every link succeeds, including the entity row itself.
func (s *SQLiteStore) UpsertEntityFeatures(ctx context.Context, ns types.Namespace, entityID int64, featureIDs []int64) (err error) {
	defer observe("upsert_entity_features", time.Now(), &err)

	t, err := tablesFor(ns)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO "+t.entity+" (id) VALUES (?)", entityID); err != nil {
		return fmt.Errorf("insert %s %d: %w", ns, entityID, classify(err))
	}

	verb := "INSERT"
	if s.policy == PolicyInsertOrIgnore {
		verb = "INSERT OR IGNORE"
	}
	stmt, err := tx.PrepareContext(ctx,
		verb+" INTO "+t.description+" ("+t.entityCol+", feature_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", classify(err))
	}
	defer stmt.Close()

	for _, fid := range featureIDs {
		if _, err := stmt.ExecContext(ctx, entityID, fid); err != nil {
			return fmt.Errorf("link %s %d to feature %d: %w", ns, entityID, fid, classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// FetchEntityProfile returns the entity with the sum of its feature
// embeddings and the features themselves, read from one snapshot.
func (s *SQLiteStore) FetchEntityProfile(ctx context.Context, ns types.Namespace, entityID int64) (_ *types.Profile, err error) {
	defer observe("fetch_entity_profile", time.Now(), &err)

	t, err := tablesFor(ns)
	if err != nil {
		return nil, err
	}

	tx, err := s.readTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		blob []byte
		ids  sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		SELECT vec_sum(f.embedding ORDER BY f.id), group_concat(d.feature_id, ',' ORDER BY d.feature_id)
		FROM `+t.entity+` e
		LEFT JOIN `+t.description+` d ON d.`+t.entityCol+` = e.id
		LEFT JOIN `+t.features+` f ON f.id = d.feature_id
		WHERE e.id = ?
		GROUP BY e.id
	`, entityID).Scan(&blob, &ids)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", classify(err))
	}

	p := &types.Profile{ID: entityID}
	if blob != nil {
		if p.Embedding, err = embedding.Unpack(blob); err != nil {
			return nil, fmt.Errorf("%s %d profile: %w", ns, entityID, err)
		}
	}
	if p.FeatureIDs, err = parseIDList(ids); err != nil {
		return nil, err
	}
	if p.Features, err = fetchFeatures(ctx, tx, t, p.FeatureIDs); err != nil {
		return nil, err
	}
	return p, nil
}

func parseIDList(s sql.NullString) ([]int64, error) {
	if !s.Valid || s.String == "" {
		return []int64{}, nil
	}
	parts := strings.Split(s.String, ",")
	ids := make([]int64, len(parts))
	for i, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse feature id %q: %w", p, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// DeleteEntity removes the entity. Its descriptions and interactions go with it.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, ns types.Namespace, entityID int64) (err error) {
	defer observe("delete_entity", time.Now(), &err)

	t, err := tablesFor(ns)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM "+t.entity+" WHERE id = ?", entityID)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", ns, entityID, classify(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// EntityExists reports whether the entity row is present.
func (s *SQLiteStore) EntityExists(ctx context.Context, ns types.Namespace, entityID int64) (_ bool, err error) {
	defer observe("entity_exists", time.Now(), &err)

	t, err := tablesFor(ns)
	if err != nil {
		return false, err
	}
	return exists(ctx, s.db, t.entity, entityID)
}
