package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relaypanel/go-relay-backend/internal/storage"
	"github.com/relaypanel/go-relay-backend/pkg/config"
)

// Store implements MongoDB storage
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	cfg      *config.MongoDBConfig

	servers *ServerStore
	rooms   *RoomStore
	events  *EventStore
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *config.MongoDBConfig) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)
	counters := database.Collection("counters")

	s := &Store{
		client:   client,
		database: database,
		cfg:      cfg,
	}

	s.servers = &ServerStore{collection: database.Collection("servers"), counter: counters}
	s.rooms = &RoomStore{collection: database.Collection("rooms"), counter: counters}
	s.events = &EventStore{collection: database.Collection("events"), counter: counters}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	// Servers collection indexes
	_, err := s.servers.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "subdomain", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create server indexes: %w", err)
	}

	// Rooms collection indexes
	_, err = s.rooms.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "server_id", Value: 1}, {Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "server_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create room indexes: %w", err)
	}

	// Events collection indexes
	_, err = s.events.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "server_name", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}

	return nil
}

func (s *Store) Servers() storage.ServerStore { return s.servers }
func (s *Store) Rooms() storage.RoomStore     { return s.rooms }
func (s *Store) Events() storage.EventStore   { return s.events }

// Close closes the MongoDB connection
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks if the MongoDB connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// nextID increments and returns the named auto-increment counter. The
// upsert creates the counter document on first use, so concurrent callers
// always see distinct values.
func nextID(ctx context.Context, counter *mongo.Collection, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc struct {
		Value int64 `bson:"value"`
	}
	err := counter.FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Value, nil
}
