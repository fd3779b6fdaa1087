package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend string
	// Timeout bounds every Get/Put. Zero disables it.
	Timeout time.Duration
	// Prefix namespaces Redis keys.
	Prefix string
	// Collection is the Mongo collection or Postgres table name.
	Collection string

	RedisAddr     string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
}

// Open builds the configured backend and fails fast if it is unreachable.
// The returned store honors Config.Timeout; callers should Close it via
// the optional Close() error method.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var store Store

	switch cfg.Backend {
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rs := NewRedisStore(client, RedisConfig{Prefix: cfg.Prefix})
		if err := rs.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		store = rs
	case BackendMongo:
		ms, err := NewMongoStore(ctx, MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.Collection,
		})
		if err != nil {
			return nil, err
		}
		store = ms
	case BackendPostgres:
		ps, err := NewPostgresStore(ctx, PostgresConfig{
			DSN:   cfg.PostgresDSN,
			Table: postgresTableName(cfg.Collection),
		})
		if err != nil {
			return nil, err
		}
		store = ps
	case BackendMemory, "":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	return WithTimeout(store, cfg.Timeout), nil
}

// postgresTableName maps the document-store collection name onto a
// conventional snake_case table name.
func postgresTableName(collection string) string {
	if collection == "" || collection == "productSummaries" {
		return "product_summaries"
	}
	return collection
}
