package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/recommender/internal/types"
)

// RecordInteraction appends a user-item interaction.
func (s *SQLiteStore) RecordInteraction(ctx context.Context, userID, itemID int64) (err error) {
	defer observe("record_interaction", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	for _, check := range []struct {
		table string
		id    int64
	}{{"users", userID}, {"items", itemID}} {
		ok, err := exists(ctx, tx, check.table, check.id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s %d", ErrNotFound, check.table, check.id)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO interactions (user_id, item_id) VALUES (?, ?)", userID, itemID); err != nil {
		return fmt.Errorf("insert interaction: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// FetchHistory returns the user's interactions, most recent first.
func (s *SQLiteStore) FetchHistory(ctx context.Context, userID int64, limit int) (_ []types.HistoryEntry, err error) {
	defer observe("fetch_history", time.Now(), &err)

	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	tx, err := s.readTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ok, err := exists(ctx, tx, "users", userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, item_id FROM interactions
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", classify(err))
	}
	defer rows.Close()

	history := make([]types.HistoryEntry, 0)
	for rows.Next() {
		var h types.HistoryEntry
		if err := rows.Scan(&h.InteractionID, &h.ItemID); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", classify(err))
	}
	return history, nil
}

// LatestItems returns up to limit item ids, highest first.
func (s *SQLiteStore) LatestItems(ctx context.Context, limit int) (_ []int64, err error) {
	defer observe("latest_items", time.Now(), &err)

	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM items ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query latest items: %w", classify(err))
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", classify(err))
	}
	return ids, nil
}
