// Package database provides the MongoDB client and index bootstrap used by
// the persistence layer.
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// BooksCollection is the single collection the engine persists into. Every
// book document embeds its plan and story state, so commits and branch cache
// CAS updates stay single-document atomic.
const BooksCollection = "books"

const connectTimeout = 10 * time.Second

// Client wraps the Mongo client and the application database handle.
type Client struct {
	mongo *mongo.Client
	db    *mongo.Database
}

// NewClientFromMongo wraps an existing Mongo client (useful for testing).
func NewClientFromMongo(mc *mongo.Client, database string) *Client {
	return &Client{
		mongo: mc,
		db:    mc.Database(database),
	}
}

// NewClient connects to MongoDB, verifies connectivity, and ensures indexes.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := mc.Ping(ctx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	client := NewClientFromMongo(mc, cfg.Database)
	if err := client.EnsureIndexes(ctx); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	return client, nil
}

// Database returns the application database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Books returns the books collection.
func (c *Client) Books() *mongo.Collection {
	return c.db.Collection(BooksCollection)
}

// Ping checks connectivity against the primary.
func (c *Client) Ping(ctx context.Context) error {
	return c.mongo.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying Mongo client.
func (c *Client) Close(ctx context.Context) error {
	return c.mongo.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the queries rely on. Safe to call on
// every startup; CreateOne is a no-op for existing indexes.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	books := c.Books()

	ownerIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
	}
	if _, err := books.Indexes().CreateOne(ctx, ownerIndex); err != nil {
		return err
	}

	updatedIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "updatedAt", Value: 1}},
	}
	if _, err := books.Indexes().CreateOne(ctx, updatedIndex); err != nil {
		return err
	}

	return nil
}
