package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Namespace selects the user or item family of tables. User ids and item ids
// are independent spaces, and so are user features and item features.
type Namespace string

const (
	NamespaceUser Namespace = "user"
	NamespaceItem Namespace = "item"
)

// Valid reports whether n is a known namespace.
func (n Namespace) Valid() bool {
	return n == NamespaceUser || n == NamespaceItem
}

// ParseNamespace converts a string to a Namespace.
func ParseNamespace(s string) (Namespace, error) {
	n := Namespace(s)
	if !n.Valid() {
		return "", fmt.Errorf("unknown namespace %q (want %q or %q)", s, NamespaceUser, NamespaceItem)
	}
	return n, nil
}

// Feature is a catalog entry carrying a fixed-length embedding.
type Feature struct {
	ID          int64     `json:"id" yaml:"id"`
	Description *string   `json:"description" yaml:"description,omitempty"`
	Embedding   []float64 `json:"embedding" yaml:"embedding"`
}

// Profile is an entity together with its derived embedding.
// Embedding is nil when the entity has no features ("no profile data"),
// which is not the same as a zero vector.
type Profile struct {
	ID         int64     `json:"id"`
	Embedding  []float64 `json:"embedding"`
	FeatureIDs []int64   `json:"feature_ids"`
	Features   []Feature `json:"features"`
}

// MarshalJSON keeps empty feature lists as [] while an absent embedding stays null.
func (p Profile) MarshalJSON() ([]byte, error) {
	if p.FeatureIDs == nil {
		p.FeatureIDs = []int64{}
	}
	if p.Features == nil {
		p.Features = []Feature{}
	}
	type Alias Profile
	return json.Marshal(Alias(p))
}

// HistoryEntry is one recorded interaction resolved to its item.
type HistoryEntry struct {
	InteractionID int64 `json:"-"`
	ItemID        int64 `json:"id"`
}

// RecommendationSource tells callers where a recommendation list came from.
type RecommendationSource string

const (
	// SourcePersonalized lists are ranked; index 0 is the best match.
	SourcePersonalized RecommendationSource = "personalized"
	// SourceFallback lists are a random draw from the shared pool and carry
	// no ranking.
	SourceFallback RecommendationSource = "fallback"
	// SourceNone means neither a user list nor a pool was available.
	SourceNone RecommendationSource = "none"
)

// Recommendations is the result of a cache read.
type Recommendations struct {
	Items  []int64
	Source RecommendationSource
}

// StoreStats holds row counts for health reporting.
type StoreStats struct {
	Users        int64 `json:"users"`
	Items        int64 `json:"items"`
	UserFeatures int64 `json:"user_features"`
	ItemFeatures int64 `json:"item_features"`
	Interactions int64 `json:"interactions"`
}

// --- API payloads ---

// EntityRequest is the body of PUT /users/{id} and PUT /items/{id}.
type EntityRequest struct {
	FeatureIDs []int64 `json:"feature_ids"`
}

// ItemRef is a single item in list responses.
type ItemRef struct {
	ID int64 `json:"id"`
}

// ProfileResponse wraps a profile for GET /users/{id} and GET /items/{id}.
type ProfileResponse struct {
	Data Profile `json:"data"`
}

// ItemListResponse is returned by the history and recommendation endpoints.
type ItemListResponse struct {
	Data   []ItemRef            `json:"data"`
	Source RecommendationSource `json:"source,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string     `json:"status"`
	Version string     `json:"version"`
	Cache   string     `json:"cache"`
	Stats   StoreStats `json:"stats"`
}

// ItemRefs converts item ids to their response form.
func ItemRefs(ids []int64) []ItemRef {
	refs := make([]ItemRef, len(ids))
	for i, id := range ids {
		refs[i] = ItemRef{ID: id}
	}
	return refs
}

// --- Offline trainer output ---

// TrainerOutput is the file the offline trainer hands to `recommender cache load`.
// Users maps a user id to its ranked item ids; Latest is the fallback pool.
type TrainerOutput struct {
	Users  map[string][]int64 `json:"users" yaml:"users"`
	Latest []int64            `json:"latest" yaml:"latest"`
}

// UserList is one parsed entry of TrainerOutput.Users.
type UserList struct {
	UserID int64
	Items  []int64
}

// UserLists parses the user keys, returning lists sorted by user id.
func (o TrainerOutput) UserLists() ([]UserList, error) {
	lists := make([]UserList, 0, len(o.Users))
	for key, items := range o.Users {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id %q", key)
		}
		lists = append(lists, UserList{UserID: id, Items: items})
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].UserID < lists[j].UserID })
	return lists, nil
}
