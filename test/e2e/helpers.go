package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hyperengineering/recommender/internal/api"
	"github.com/hyperengineering/recommender/internal/cache"
	"github.com/hyperengineering/recommender/internal/store"
	"github.com/hyperengineering/recommender/internal/types"
	"github.com/hyperengineering/recommender/internal/worker"
	"github.com/hyperengineering/recommender/pkg/client"
)

// env is a full server stack: SQLite on disk, Redis (miniredis) and the
// real router behind an httptest server.
type env struct {
	store     *store.SQLiteStore
	cache     *cache.RedisCache
	redis     *miniredis.Miniredis
	refresher *worker.FallbackRefresher
	client    *client.Client
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "recommender.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.RedisOptions{
		Addr:        mr.Addr(),
		DialTimeout: time.Second,
		ReadTimeout: time.Second,
		MaxRetries:  -1,
	}, nil)
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	metered := cache.WithMetrics(rc)

	h := api.NewHandler(s, metered, "e2e", api.DefaultLimits())
	srv := httptest.NewServer(api.NewRouter(h, api.NewDeleteRateLimiter(1000, time.Millisecond)))
	t.Cleanup(srv.Close)

	cl, err := client.New(srv.URL, client.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	return &env{
		store:     s,
		cache:     rc,
		redis:     mr,
		refresher: worker.NewFallbackRefresher(s, metered, time.Minute, 100, time.Hour),
		client:    cl,
	}
}

func strPtr(s string) *string { return &s }

// seedCatalog loads a small catalog into both namespaces.
func (e *env) seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	users := []types.Feature{
		{ID: 1, Description: strPtr("age:18-24"), Embedding: []float64{1, 0, 0}},
		{ID: 2, Description: strPtr("country:FR"), Embedding: []float64{0, 1}},
	}
	items := []types.Feature{
		{ID: 1, Description: strPtr("genre:drama"), Embedding: []float64{0.5, 0.5}},
		{ID: 2, Description: strPtr("genre:comedy"), Embedding: []float64{0, 0, 2}},
	}
	if _, err := e.store.PutFeatures(ctx, types.NamespaceUser, users); err != nil {
		t.Fatalf("PutFeatures(user) error = %v", err)
	}
	if _, err := e.store.PutFeatures(ctx, types.NamespaceItem, items); err != nil {
		t.Fatalf("PutFeatures(item) error = %v", err)
	}
}

// createEntities creates entities without features through the API.
func (e *env) createEntities(t *testing.T, ns client.Namespace, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if err := e.client.PutEntity(context.Background(), ns, id, nil); err != nil {
			t.Fatalf("PutEntity(%s %d) error = %v", ns, id, err)
		}
	}
}
