package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore keeps every summary as one document of a flat collection,
// with the serialized key as _id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type mongoSummaryDocument struct {
	ID         string    `bson:"_id"`
	ProductID  string    `bson:"productId"`
	Site       string    `bson:"site"`
	PromptType string    `bson:"promptType"`
	Summary    string    `bson:"summary"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func newMongoSummaryDocument(key SummaryKey, summary string, now time.Time) mongoSummaryDocument {
	return mongoSummaryDocument{
		ID:         key.String(),
		ProductID:  key.ProductID,
		Site:       key.Site,
		PromptType: string(key.PromptType),
		Summary:    summary,
		UpdatedAt:  now.UTC(),
	}
}

func (d mongoSummaryDocument) toRecord() Record {
	return Record{
		Key: SummaryKey{
			ProductID:  d.ProductID,
			Site:       d.Site,
			PromptType: PromptType(d.PromptType),
		},
		Summary:   d.Summary,
		UpdatedAt: d.UpdatedAt,
	}
}

// NewMongoStore connects and pings the server before returning.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("mongo collection name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("%w: mongo connect: %w", ErrStoreUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: mongo ping: %w", ErrStoreUnavailable, err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		now:        time.Now,
	}, nil
}

func (s *MongoStore) Get(ctx context.Context, key SummaryKey) (Record, bool, error) {
	var doc mongoSummaryDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, unavailable("mongo find", key, err)
	}
	return doc.toRecord(), true, nil
}

// Put replaces the whole document, inserting it when absent.
func (s *MongoStore) Put(ctx context.Context, key SummaryKey, summary string) error {
	doc := newMongoSummaryDocument(key, summary, s.now())
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return unavailable("mongo replace", key, err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
