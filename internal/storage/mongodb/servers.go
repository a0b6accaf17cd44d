package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/relaypanel/go-relay-backend/internal/domain"
	"github.com/relaypanel/go-relay-backend/internal/storage"
)

// ServerStore implements MongoDB server record storage
type ServerStore struct {
	collection *mongo.Collection
	counter    *mongo.Collection // For auto-increment IDs
}

func (s *ServerStore) Create(ctx context.Context, server *domain.Server) error {
	id, err := nextID(ctx, s.counter, "server_id")
	if err != nil {
		return fmt.Errorf("failed to allocate server ID: %w", err)
	}

	server.ID = id
	server.CreatedAt = time.Now()
	server.UpdatedAt = time.Now()

	_, err = s.collection.InsertOne(ctx, server)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create server: %w", err)
	}
	return nil
}

func (s *ServerStore) GetByName(ctx context.Context, name string) (*domain.Server, error) {
	var server domain.Server
	err := s.collection.FindOne(ctx, bson.M{"name": name}).Decode(&server)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return &server, nil
}

func (s *ServerStore) GetAll(ctx context.Context) ([]*domain.Server, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to get servers: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var servers []*domain.Server
	if err := cursor.All(ctx, &servers); err != nil {
		return nil, fmt.Errorf("failed to decode servers: %w", err)
	}
	return servers, nil
}

func (s *ServerStore) GetByStatus(ctx context.Context, status domain.Status) ([]*domain.Server, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("failed to get servers by status: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var servers []*domain.Server
	if err := cursor.All(ctx, &servers); err != nil {
		return nil, fmt.Errorf("failed to decode servers: %w", err)
	}
	return servers, nil
}

func (s *ServerStore) UpdateStatus(ctx context.Context, name string, status domain.Status) error {
	result, err := s.collection.UpdateOne(
		ctx,
		bson.M{"name": name},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update server status: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *ServerStore) MaxPort(ctx context.Context) (int, error) {
	cursor, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": nil, "max": bson.M{"$max": "$port"}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate max port: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var results []struct {
		Max int `bson:"max"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode max port: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Max, nil
}

func (s *ServerStore) Delete(ctx context.Context, id int64) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
