package store

import (
	"context"

	"github.com/hyperengineering/recommender/internal/types"
)

// Store defines the contract for the feature catalog, entity descriptions
// and the interaction log.
//
// Every write is a single transaction: either all of its rows become visible
// or none do.
type Store interface {
	// PutFeatures seeds the catalog. Existing feature ids are rejected.
	PutFeatures(ctx context.Context, ns types.Namespace, features []types.Feature) (int, error)
	// UpsertEntityFeatures ensures the entity exists and links it to featureIDs.
	UpsertEntityFeatures(ctx context.Context, ns types.Namespace, entityID int64, featureIDs []int64) error
	// FetchEntityProfile returns the entity with its derived embedding and features.
	FetchEntityProfile(ctx context.Context, ns types.Namespace, entityID int64) (*types.Profile, error)
	FetchFeatures(ctx context.Context, ns types.Namespace, featureIDs []int64) ([]types.Feature, error)
	DeleteEntity(ctx context.Context, ns types.Namespace, entityID int64) error
	EntityExists(ctx context.Context, ns types.Namespace, entityID int64) (bool, error)

	RecordInteraction(ctx context.Context, userID, itemID int64) error
	// FetchHistory returns at most limit interactions, most recent first.
	FetchHistory(ctx context.Context, userID int64, limit int) ([]types.HistoryEntry, error)
	// LatestItems returns up to limit item ids, newest (highest) first.
	LatestItems(ctx context.Context, limit int) ([]int64, error)

	GetStats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}
