package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps summaries in a single table keyed by the serialized
// summary key.
type PostgresStore struct {
	db    *pgxpool.Pool
	table string
	now   func() time.Time
}

type PostgresConfig struct {
	DSN   string
	Table string
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewPostgresStore connects, pings, and creates the table when missing.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if cfg.Table == "" {
		cfg.Table = "product_summaries"
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid postgres table name %q", cfg.Table)
	}

	db, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postgres ping: %w", ErrStoreUnavailable, err)
	}

	s := &PostgresStore{db: db, table: cfg.Table, now: time.Now}
	if _, err := db.Exec(ctx, s.createTableSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres create table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
        id          TEXT PRIMARY KEY,
        product_id  TEXT NOT NULL,
        site        TEXT NOT NULL,
        prompt_type TEXT NOT NULL,
        summary     TEXT NOT NULL,
        updated_at  TIMESTAMPTZ NOT NULL
);`
}

func (s *PostgresStore) selectSQL() string {
	return `SELECT summary, updated_at FROM ` + s.table + ` WHERE id = $1;`
}

// upsertSQL overwrites the whole row in one statement.
func (s *PostgresStore) upsertSQL() string {
	return `INSERT INTO ` + s.table + ` (id, product_id, site, prompt_type, summary, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE
        SET summary = EXCLUDED.summary, updated_at = EXCLUDED.updated_at;`
}

func (s *PostgresStore) Get(ctx context.Context, key SummaryKey) (Record, bool, error) {
	rec := Record{Key: key}
	err := s.db.QueryRow(ctx, s.selectSQL(), key.String()).Scan(&rec.Summary, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, unavailable("postgres select", key, err)
	}
	return rec, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, key SummaryKey, summary string) error {
	_, err := s.db.Exec(ctx, s.upsertSQL(),
		key.String(), key.ProductID, key.Site, string(key.PromptType), summary, s.now().UTC())
	if err != nil {
		return unavailable("postgres upsert", key, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
