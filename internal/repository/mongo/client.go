// Package mongo is the MongoDB store. Overlap protection for bookings comes
// from a unique partial index on slotKey (service id plus start instant),
// which is removed from a booking when it is cancelled.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/slotbook/internal/repository"
)

const (
	servicesCollection = "services"
	bookingsCollection = "bookings"
)

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type Client struct {
	DB *mongo.Database
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.URI).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := m.Ping(ctx, nil); err != nil {
		_ = m.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return &Client{DB: m.Database(cfg.Database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

func (c *Client) Services() repository.ServiceRepository {
	return NewServiceRepository(c.DB)
}

func (c *Client) Bookings() repository.BookingRepository {
	return NewBookingRepository(c.DB)
}

// EnsureIndexes creates the indexes both repositories rely on. It is
// idempotent and safe to run on every start.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	bookings := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "slotKey", Value: 1}},
			Options: options.Index().
				SetName("uniq_slot_key").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"slotKey": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "serviceId", Value: 1}, {Key: "startTime", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "startTime", Value: -1}}},
		{Keys: bson.D{{Key: "providerId", Value: 1}, {Key: "startTime", Value: -1}}},
	}
	if _, err := c.DB.Collection(bookingsCollection).Indexes().CreateMany(ctx, bookings); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}

	services := []mongo.IndexModel{
		{Keys: bson.D{{Key: "providerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "category", Value: 1}}},
	}
	if _, err := c.DB.Collection(servicesCollection).Indexes().CreateMany(ctx, services); err != nil {
		return fmt.Errorf("failed to create service indexes: %w", err)
	}
	return nil
}
