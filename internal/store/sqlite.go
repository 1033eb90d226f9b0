package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/recommender/internal/metrics"
	"github.com/hyperengineering/recommender/internal/types"
	_ "modernc.org/sqlite"
)

// DescriptionPolicy controls what happens when an entity is linked to a
// feature it is already linked to.
type DescriptionPolicy string

const (
	// PolicyInsertOnly rejects a duplicate (entity, feature) pair with
	// ErrIntegrityViolation and rolls back the whole call.
	PolicyInsertOnly DescriptionPolicy = "insert-only"
	// PolicyInsertOrIgnore skips duplicate pairs, making repeated calls idempotent.
	PolicyInsertOrIgnore DescriptionPolicy = "insert-or-ignore"
)

// ParseDescriptionPolicy converts a config value to a DescriptionPolicy.
// The empty string selects PolicyInsertOnly.
func ParseDescriptionPolicy(s string) (DescriptionPolicy, error) {
	switch DescriptionPolicy(s) {
	case "", PolicyInsertOnly:
		return PolicyInsertOnly, nil
	case PolicyInsertOrIgnore:
		return PolicyInsertOrIgnore, nil
	}
	return "", fmt.Errorf("unknown description policy %q", s)
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithDescriptionPolicy sets the duplicate-description behaviour.
func WithDescriptionPolicy(p DescriptionPolicy) Option {
	return func(s *SQLiteStore) {
		s.policy = p
	}
}

// SQLiteStore is the SQLite-backed Store.
type SQLiteStore struct {
	db     *sql.DB
	policy DescriptionPolicy
}

var _ Store = (*SQLiteStore)(nil)

// DSN builds the connection string for dbPath. Pragmas are carried in the DSN
// so that every pooled connection enforces foreign keys, and write
// transactions take the write lock when they begin.
func DSN(dbPath string) string {
	q := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=synchronous(NORMAL)",
	}
	if !isMemory(dbPath) {
		q = append(q, "_pragma=journal_mode(WAL)")
	}
	q = append(q, "_txlock=immediate")
	return dbPath + "?" + strings.Join(q, "&")
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// NewSQLiteStore opens the database at dbPath and applies migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if !isMemory(dbPath) {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if isMemory(dbPath) {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, policy: PolicyInsertOnly}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for migrations tooling and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// GetStats returns row counts across the schema.
func (s *SQLiteStore) GetStats(ctx context.Context) (_ *types.StoreStats, err error) {
	defer observe("get_stats", time.Now(), &err)

	var st types.StoreStats
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM items),
			(SELECT COUNT(*) FROM user_features),
			(SELECT COUNT(*) FROM item_features),
			(SELECT COUNT(*) FROM interactions)
	`).Scan(&st.Users, &st.Items, &st.UserFeatures, &st.ItemFeatures, &st.Interactions)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", classify(err))
	}
	return &st, nil
}

// tables names the table family for a namespace.
type tables struct {
	entity      string
	features    string
	description string
	entityCol   string
}

func tablesFor(ns types.Namespace) (tables, error) {
	switch ns {
	case types.NamespaceUser:
		return tables{entity: "users", features: "user_features", description: "user_description", entityCol: "user_id"}, nil
	case types.NamespaceItem:
		return tables{entity: "items", features: "item_features", description: "item_description", entityCol: "item_id"}, nil
	}
	return tables{}, fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) readTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", classify(err))
	}
	return tx, nil
}

func exists(ctx context.Context, q querier, table string, id int64) (bool, error) {
	var ok bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE id = ?)", id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check %s existence: %w", table, classify(err))
	}
	return ok, nil
}

func observe(operation string, start time.Time, err *error) {
	metrics.RecordStoreOperation(operation, time.Since(start), errorKind(*err))
}
