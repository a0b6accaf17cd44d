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

// RoomStore implements MongoDB room record storage
type RoomStore struct {
	collection *mongo.Collection
	counter    *mongo.Collection
}

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	id, err := nextID(ctx, s.counter, "room_id")
	if err != nil {
		return fmt.Errorf("failed to allocate room ID: %w", err)
	}

	room.ID = id
	room.CreatedAt = time.Now()

	_, err = s.collection.InsertOne(ctx, room)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

func (s *RoomStore) GetByServer(ctx context.Context, serverID int64) ([]*domain.Room, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"server_id": serverID})
	if err != nil {
		return nil, fmt.Errorf("failed to get rooms: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var rooms []*domain.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	return rooms, nil
}

func (s *RoomStore) GetByServerAndName(ctx context.Context, serverID int64, name string) (*domain.Room, error) {
	var room domain.Room
	err := s.collection.FindOne(ctx, bson.M{"server_id": serverID, "name": name}).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

func (s *RoomStore) DeleteByServer(ctx context.Context, serverID int64) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"server_id": serverID})
	if err != nil {
		return fmt.Errorf("failed to delete rooms: %w", err)
	}
	return nil
}
